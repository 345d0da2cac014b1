package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/lyra-agent/lyra/internal/config"
	"github.com/lyra-agent/lyra/internal/tui"
)

var (
	initForce    bool
	initDefaults bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config.json with a short setup wizard",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFlag
		if path == "" {
			path = config.ConfigPath()
		}
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("config already exists: %s (use --force to overwrite)", path)
		}

		out := cmd.OutOrStdout()
		values := map[string]any{}
		if !initDefaults && canPrompt(cmd.InOrStdin()) {
			fmt.Fprintf(out, "\n  %s  setup\n\n", tui.MiniLogo())
			answers, err := runInitForm(config.Default())
			if err != nil {
				return fmt.Errorf("setup cancelled: %w", err)
			}
			values = answers.values()
		}

		cfg, err := config.Create(path, values, initForce)
		if err != nil {
			return err
		}
		snap := cfg.Snapshot()
		fmt.Fprintln(out, tui.Success("✓ Config written to "+cfg.Path()))
		fmt.Fprintln(out, tui.Muted(fmt.Sprintf("  model %s via %s, exec level %d, cloud consent %s",
			snap.LocalModelName(), snap.LocalBackend, snap.ExecLevel, snap.CloudConsent)))
		fmt.Fprintln(out, tui.Muted("  Run `lyra` to start a session."))
		return nil
	},
}

type initAnswers struct {
	userName     string
	localBackend string
	localModel   string
	apiKey       string
	consent      string
	execLevel    int
}

func (a initAnswers) values() map[string]any {
	v := map[string]any{
		"local_backend": a.localBackend,
		"cloud_consent": a.consent,
		"exec_level":    a.execLevel,
	}
	if s := strings.TrimSpace(a.userName); s != "" {
		v["user_name"] = s
	}
	if s := strings.TrimSpace(a.localModel); s != "" {
		v["local_model"] = s
		v["model"] = s
	}
	if s := strings.TrimSpace(a.apiKey); s != "" {
		v["openai_api_key"] = s
	}
	return v
}

func runInitForm(def config.Config) (initAnswers, error) {
	a := initAnswers{
		userName:     def.UserName,
		localBackend: def.LocalBackend,
		localModel:   def.LocalModelName(),
		consent:      def.CloudConsent,
		execLevel:    def.ExecLevel,
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Jak masz na imię?").
				Description("Pokazywane w znaku zachęty").
				Value(&a.userName),
			huh.NewSelect[string]().
				Title("Lokalny serwer modelu").
				Options(
					huh.NewOption("Ollama (http://127.0.0.1:11434)", config.LocalOllama),
					huh.NewOption("llama.cpp server (http://127.0.0.1:8080)", config.LocalLlama),
				).
				Value(&a.localBackend),
			huh.NewInput().
				Title("Nazwa modelu").
				Value(&a.localModel),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Klucz OpenAI API").
				Description("Opcjonalny; pusty wyłącza chmurę (można też użyć OPENAI_API_KEY)").
				EchoMode(huh.EchoModePassword).
				Value(&a.apiKey),
			huh.NewSelect[string]().
				Title("Zgoda na chmurę").
				Options(
					huh.NewOption("Pytaj za każdym razem", config.ConsentAsk),
					huh.NewOption("Zawsze", config.ConsentAlways),
					huh.NewOption("Nigdy", config.ConsentNever),
				).
				Value(&a.consent),
			huh.NewSelect[int]().
				Title("Poziom wykonywania").
				Options(
					huh.NewOption("1: tylko diagnostyka", 1),
					huh.NewOption("2: naprawy z potwierdzeniem", 2),
					huh.NewOption("3: potwierdzaj tylko ryzykowne", 3),
				).
				Value(&a.execLevel),
		),
	)
	if err := form.Run(); err != nil {
		return initAnswers{}, err
	}
	return a, nil
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config")
	initCmd.Flags().BoolVar(&initDefaults, "defaults", false, "write defaults without asking")
}
