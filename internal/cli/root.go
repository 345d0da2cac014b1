package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

// SetBuildInfo sets version info injected at build time.
func SetBuildInfo(v, date, commit string) {
	version = v
	buildDate = date
	gitCommit = commit
}

var (
	configFlag  string
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "lyra [polecenie...]",
	Short: "Lyra: asystent operacyjny systemu Linux",
	Long: `Lyra: lokalny asystent operacyjny systemu Linux.

Bez argumentów uruchamia sesję interaktywną. Z argumentami wykonuje jedno
polecenie, np.:

  lyra pokaż dyski
  lyra która jest godzina`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), appOptions{
			interactive: len(args) == 0,
			in:          cmd.InOrStdin(),
			out:         cmd.OutOrStdout(),
		})
		if err != nil {
			return err
		}
		defer a.Close()
		if len(args) > 0 {
			return runOnce(cmd.Context(), a, strings.Join(args, " "), cmd.OutOrStdout())
		}
		return runREPL(cmd.Context(), a, cmd.OutOrStdout())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "lyra %s\n", version)
		fmt.Fprintf(out, "  build:  %s\n", buildDate)
		fmt.Fprintf(out, "  commit: %s\n", gitCommit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default: $LYRA_CONFIG, ./config.json, ~/.lyra/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "mirror logs to stderr")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(toolsCmd)
}

// Execute runs the root command. SIGINT and SIGTERM cancel its context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
