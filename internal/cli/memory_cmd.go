package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lyra-agent/lyra/internal/config"
	"github.com/lyra-agent/lyra/internal/store"
	"github.com/lyra-agent/lyra/internal/tui"
)

var (
	memoryTailN       int
	memoryArchiveKeep int
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openMemory(cfg *config.Store) *store.MemoryLog {
	snap := cfg.Snapshot()
	return store.NewMemoryLog(cfg.Resolve(snap.MemoryFile), store.MemoryOptions{
		Threshold: snap.MemoryArchiveThreshold,
		Keep:      snap.MemoryArchiveKeep,
	}, discardLogger())
}

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect the conversation memory log",
}

var memoryTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the newest memory entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		entries, err := openMemory(cfg).Tail(memoryTailN)
		if err != nil {
			return fmt.Errorf("read memory: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "Memory is empty.")
			return nil
		}
		for _, e := range entries {
			fmt.Fprintln(out, formatEntry(e))
		}
		return nil
	},
}

func formatEntry(e store.Entry) string {
	head := tui.Muted(fmt.Sprintf("%s %-12s", e.Timestamp, e.Type))
	var body string
	switch e.Type {
	case store.EntryText:
		who := e.Backend
		if e.Model != "" {
			who += "/" + e.Model
		}
		body = fmt.Sprintf("%s → [%s] %s", e.User, who, oneLine(e.Assistant))
	case store.EntryTool:
		body = fmt.Sprintf("%s(%s) → %s", e.Tool, e.Args, oneLine(e.Output))
	case store.EntrySystem:
		body = fmt.Sprintf("$ %s → %s", e.Command, oneLine(e.Output))
	case store.EntryProposeTool:
		body = e.Proposal
	}
	return head + " " + body
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 100 {
		return string(r[:100]) + "…"
	}
	return s
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory log sizes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		mem := openMemory(cfg)
		entries, err := mem.All()
		if err != nil {
			return fmt.Errorf("read memory: %w", err)
		}
		archived, err := mem.ArchiveLen()
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		byType := map[string]int{}
		for _, e := range entries {
			byType[e.Type]++
		}
		snap := cfg.Snapshot()
		var b strings.Builder
		fmt.Fprintf(&b, "File:      %s\n", mem.Path())
		fmt.Fprintf(&b, "Entries:   %d\n", len(entries))
		for _, t := range []string{store.EntryText, store.EntryTool, store.EntrySystem, store.EntryProposeTool} {
			fmt.Fprintf(&b, "  %-12s %d\n", t, byType[t])
		}
		fmt.Fprintf(&b, "Archive:   %s (%d)\n", mem.ArchivePath(), archived)
		fmt.Fprintf(&b, "Threshold: %d, keep %d", snap.MemoryArchiveThreshold, snap.MemoryArchiveKeep)
		fmt.Fprintln(cmd.OutOrStdout(), tui.Box("Pamięć", b.String()))
		return nil
	},
}

var memoryArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Move old entries to the archive now",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		keep := memoryArchiveKeep
		if keep < 0 {
			keep = cfg.Snapshot().MemoryArchiveKeep
		}
		mem := openMemory(cfg)
		moved, err := mem.ArchiveNow(keep)
		if err != nil {
			return fmt.Errorf("archive memory: %w", err)
		}
		if moved == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to archive.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), tui.Success(fmt.Sprintf("Archived %d entries to %s", moved, mem.ArchivePath())))
		return nil
	},
}

func init() {
	memoryTailCmd.Flags().IntVarP(&memoryTailN, "lines", "n", 20, "number of entries")
	memoryArchiveCmd.Flags().IntVar(&memoryArchiveKeep, "keep", -1, "entries to keep (default: memory_archive_keep)")

	memoryCmd.AddCommand(memoryTailCmd)
	memoryCmd.AddCommand(memoryStatsCmd)
	memoryCmd.AddCommand(memoryArchiveCmd)
}
