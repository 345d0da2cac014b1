package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lyra-agent/lyra/internal/agent"
	"github.com/lyra-agent/lyra/internal/agent/tools"
	"github.com/lyra-agent/lyra/internal/tui"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the built-in tools and what the current exec level allows",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		level := agent.ClampLevel(cfg.Snapshot().ExecLevel)
		policy := agent.ExecPolicy{Level: level}
		registry := agent.NewToolRegistry(nil, nil, discardLogger())
		if err := registry.RegisterAll(tools.Builtin(tools.Options{})); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Tools (exec level %d):\n\n", level)
		for _, s := range registry.Specs() {
			mark := tui.Success("✓")
			if !policy.AllowsTool(s.Capability) {
				mark = tui.Warn("✗")
			}
			fmt.Fprintf(out, "  %s %-18s %-9s %s\n", mark, s.Name, s.Capability, s.Description)
		}
		return nil
	},
}
