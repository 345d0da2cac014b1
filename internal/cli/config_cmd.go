package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lyra-agent/lyra/internal/config"
)

var (
	configShowYAML   bool
	configShowReveal bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and edit config.json",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configuration (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		raw := cfg.Raw()
		var data []byte
		if configShowYAML {
			data, err = config.MarshalYAML(raw, !configShowReveal)
		} else {
			if !configShowReveal {
				raw = config.Redacted(raw)
			}
			data, err = json.MarshalIndent(raw, "", "  ")
			data = append(data, '\n')
		}
		if err != nil {
			return fmt.Errorf("render config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one config value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		v, ok := cfg.Get(args[0])
		if !ok {
			return fmt.Errorf("unknown config key %q", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one config value",
	Long: `Set one config value. The value is parsed according to the type of the
key's default, so "exec_level 3" stores a number.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Set(args[0], args[1]); err != nil {
			return fmt.Errorf("set %s: %w", args[0], err)
		}
		v, _ := cfg.Get(args[0])
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", args[0], v)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Run: func(cmd *cobra.Command, args []string) {
		path := configFlag
		if path == "" {
			path = config.ConfigPath()
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
	},
}

func init() {
	configShowCmd.Flags().BoolVar(&configShowYAML, "yaml", false, "print as YAML")
	configShowCmd.Flags().BoolVar(&configShowReveal, "reveal", false, "do not mask secrets")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
}
