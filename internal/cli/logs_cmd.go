package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	syslogger "github.com/lyra-agent/lyra/internal/system/logger"
)

var (
	logsTailN      int
	logsTailFollow bool
	logsMaxAge     int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Read and clean the log files in logs_dir",
}

// resolveLogDir falls back to the default directory so logs stay readable
// when the config itself is broken.
func resolveLogDir() string {
	cfg, err := loadConfig()
	if err != nil {
		return syslogger.DefaultConfig().Dir
	}
	return cfg.LogsDir()
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all log files",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		dir := resolveLogDir()
		files, err := syslogger.ListLogFiles(dir)
		if err != nil {
			return fmt.Errorf("list log files: %w", err)
		}
		if len(files) == 0 {
			fmt.Fprintf(out, "No log files found in %s\n", dir)
			return nil
		}

		total, _ := syslogger.TotalSize(dir)
		fmt.Fprintf(out, "Log files (%d, total %.1f MB):\n\n", len(files), float64(total)/1024/1024)
		for _, f := range files {
			fmt.Fprintf(out, "  %-28s  %8.2f MB  %s\n", f.Name, float64(f.Size)/1024/1024, f.ModTime.Local().Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintf(out, "\nLog directory: %s\n", dir)
		return nil
	},
}

var logsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the end of the newest log file",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		dir := resolveLogDir()
		files, err := syslogger.ListLogFiles(dir)
		if err != nil {
			return fmt.Errorf("list log files: %w", err)
		}
		if len(files) == 0 {
			fmt.Fprintf(out, "No log files found in %s\n", dir)
			return nil
		}

		latest := files[0].Path
		lines, err := syslogger.TailFile(latest, logsTailN)
		if err != nil {
			return err
		}
		for _, line := range lines {
			fmt.Fprintln(out, line)
		}
		if !logsTailFollow {
			return nil
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		done := make(chan struct{})
		go func() {
			<-ctx.Done()
			close(done)
		}()
		return syslogger.FollowFile(latest, out, done)
	},
}

var logsCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove log files older than --max-age days",
	RunE: func(cmd *cobra.Command, args []string) error {
		lc := syslogger.DefaultConfig()
		lc.Dir = resolveLogDir()
		if logsMaxAge > 0 {
			lc.MaxAgeDays = logsMaxAge
		}
		mgr, err := syslogger.New(lc)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer mgr.Close()

		removed, err := mgr.Cleanup()
		if err != nil {
			return fmt.Errorf("cleanup logs: %w", err)
		}
		if removed == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No expired log files to clean.")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired log files (older than %d days)\n", removed, lc.MaxAgeDays)
		}
		return nil
	},
}

func init() {
	logsTailCmd.Flags().IntVarP(&logsTailN, "lines", "n", 50, "number of lines")
	logsTailCmd.Flags().BoolVarP(&logsTailFollow, "follow", "f", false, "keep printing new lines")
	logsCleanCmd.Flags().IntVar(&logsMaxAge, "max-age", 0, "age limit in days (default 30)")

	logsCmd.AddCommand(logsListCmd)
	logsCmd.AddCommand(logsTailCmd)
	logsCmd.AddCommand(logsCleanCmd)
}
