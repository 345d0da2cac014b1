package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lyra-agent/lyra/internal/system/tasklog"
)

var (
	auditLimit   int
	auditOffset  int
	auditAction  string
	auditName    string
	auditStatus  string
	auditSession string
	auditSince   string
	auditMaxAge  int
	auditMaxN    int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Browse the audit trail of tools, commands and model answers",
	Long: `View and manage the audit trail stored in logs_dir/audit.db.
Every handled input (tool run, shell command, model answer, control command)
is recorded there.`,
}

func withAudit(fn func(*tasklog.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openAudit(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent audit records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAudit(func(store *tasklog.Store) error {
			records, total, err := store.Query(tasklog.Query{
				Action:    auditAction,
				Name:      auditName,
				Status:    auditStatus,
				SessionID: auditSession,
				Since:     auditSince,
				Limit:     auditLimit,
				Offset:    auditOffset,
			})
			if err != nil {
				return fmt.Errorf("query audit: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No audit records found.")
				return nil
			}
			fmt.Fprintf(out, "Audit records (%d/%d):\n\n", len(records), total)
			for _, r := range records {
				printRecord(out, r)
			}
			if total > auditOffset+auditLimit {
				fmt.Fprintf(out, "\n  ... %d more records. Use --offset %d to see next page.\n", total-auditOffset-auditLimit, auditOffset+auditLimit)
			}
			return nil
		})
	},
}

func printRecord(out io.Writer, r tasklog.Record) {
	fmt.Fprintf(out, "  #%-6d [%s] %-8s %-16s %s\n", r.ID, formatAuditTime(r.CreatedAt), r.Action, r.Name, r.Status)
	if in := truncateString(r.Input, 60); in != "" {
		fmt.Fprintf(out, "          in:  %s\n", in)
	}
	if res := truncateString(r.Output, 60); res != "" {
		fmt.Fprintf(out, "          out: %s\n", res)
	}
	if r.Error != "" {
		fmt.Fprintf(out, "          err: %s\n", truncateString(r.Error, 60))
	}
	if r.DurationMs > 0 {
		fmt.Fprintf(out, "          duration: %dms", r.DurationMs)
		if r.Model != "" {
			fmt.Fprintf(out, "  model: %s", r.Model)
		}
		if r.TokensIn > 0 || r.TokensOut > 0 {
			fmt.Fprintf(out, "  tokens: %d/%d", r.TokensIn, r.TokensOut)
		}
		fmt.Fprintln(out)
	}
}

var auditGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print one audit record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id int64
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return fmt.Errorf("invalid record ID: %s", args[0])
		}
		return withAudit(func(store *tasklog.Store) error {
			rec, err := store.Get(id)
			if err != nil {
				return fmt.Errorf("get record: %w", err)
			}
			if rec == nil {
				return fmt.Errorf("record #%d not found", id)
			}
			data, _ := json.MarshalIndent(rec, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		})
	},
}

var auditSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over inputs, outputs and errors",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		return withAudit(func(store *tasklog.Store) error {
			records, total, err := store.Query(tasklog.Query{Search: query, Limit: auditLimit, Offset: auditOffset})
			if err != nil {
				return fmt.Errorf("search audit: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No matching audit records found.")
				return nil
			}
			fmt.Fprintf(out, "Search results for %q (%d/%d):\n\n", query, len(records), total)
			for _, r := range records {
				printRecord(out, r)
			}
			return nil
		})
	},
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show audit statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAudit(func(store *tasklog.Store) error {
			st, err := store.GetStats()
			if err != nil {
				return fmt.Errorf("audit stats: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Audit Statistics:")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  Total records:  %d\n", st.TotalRecords)
			fmt.Fprintf(out, "  Tokens:         %d in / %d out\n", st.TotalTokensIn, st.TotalTokensOut)
			fmt.Fprintf(out, "  Avg duration:   %.0fms\n", st.AvgDurationMs)
			if st.EarliestRecord != "" {
				fmt.Fprintf(out, "  Time range:     %s → %s\n", formatAuditTime(st.EarliestRecord), formatAuditTime(st.LatestRecord))
			}
			printCounts(out, "By action", st.ByAction)
			printCounts(out, "By name", st.ByName)
			printCounts(out, "By status", st.ByStatus)
			fmt.Fprintf(out, "\n  Database: %s\n", store.DBPath())
			return nil
		})
	},
}

func printCounts(out io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	fmt.Fprintf(out, "\n  %s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(out, "    %-18s %d\n", k, counts[k])
	}
}

var auditCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old audit records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAudit(func(store *tasklog.Store) error {
			deleted, err := store.Cleanup(auditMaxAge, auditMaxN)
			if err != nil {
				return fmt.Errorf("clean audit: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d audit records.\n", deleted)
			return nil
		})
	},
}

func formatAuditTime(s string) string {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncateString(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func init() {
	for _, c := range []*cobra.Command{auditListCmd, auditSearchCmd} {
		c.Flags().IntVar(&auditLimit, "limit", 20, "max records")
		c.Flags().IntVar(&auditOffset, "offset", 0, "skip records")
	}
	auditListCmd.Flags().StringVar(&auditAction, "action", "", "filter by action (tool, system, model, control, propose)")
	auditListCmd.Flags().StringVar(&auditName, "name", "", "filter by tool, backend or command name")
	auditListCmd.Flags().StringVar(&auditStatus, "status", "", "filter by status")
	auditListCmd.Flags().StringVar(&auditSession, "session", "", "filter by session id")
	auditListCmd.Flags().StringVar(&auditSince, "since", "", "RFC3339 lower bound")
	auditCleanCmd.Flags().IntVar(&auditMaxAge, "max-age", 90, "delete records older than N days (0 keeps all)")
	auditCleanCmd.Flags().IntVar(&auditMaxN, "max-records", 50000, "keep at most N newest records (0 is unlimited)")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditGetCmd)
	auditCmd.AddCommand(auditSearchCmd)
	auditCmd.AddCommand(auditStatsCmd)
	auditCmd.AddCommand(auditCleanCmd)
}
