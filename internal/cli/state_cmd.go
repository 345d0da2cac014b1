package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lyra-agent/lyra/internal/config"
	"github.com/lyra-agent/lyra/internal/store"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect the persistent agent state",
}

func openState(cfg *config.Store) *store.StateStore {
	return store.NewStateStore(cfg.Resolve(cfg.Snapshot().StateFile), discardLogger())
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print agent_state.json",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openState(cfg).Load()
		if err != nil {
			return fmt.Errorf("load state: %w", err)
		}
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var stateClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Reset the state to an empty object",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st := openState(cfg)
		if err := st.Clear(); err != nil {
			return fmt.Errorf("clear state: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "State cleared: %s\n", st.Path())
		return nil
	},
}

func init() {
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateClearCmd)
}
