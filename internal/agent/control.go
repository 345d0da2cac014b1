package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lyra-agent/lyra/internal/config"
)

var (
	reConsentCmd = regexp.MustCompile(`^zgoda gpt(?:\s+(.+))?$`)
	reLevelCmd   = regexp.MustCompile(`^poziom(?:\s+(\S+))?$`)
	reModelCmd   = regexp.MustCompile(`^(?:uzyj|ustaw model)\s+(\S+)$`)
	reEngineCmd  = regexp.MustCompile(`^zmien silnik na\s+(\S+)$`)
	reDryRunCmd  = regexp.MustCompile(`^(?:dry-run|dry run|tryb probny)(?:\s+(\S+))?$`)
)

var consentLabels = map[string]string{
	config.ConsentAsk:    "pytaj",
	config.ConsentOnce:   "jednorazowo",
	config.ConsentAlways: "zawsze",
	config.ConsentNever:  "nigdy",
}

// control handles session commands. cmd has the wake word stripped.
func (p *Pipeline) control(_ context.Context, cmd string) (text, name string, ok bool) {
	f := strings.TrimRight(Fold(cmd), " .!")
	switch f {
	case "":
		return "👂 Słucham. Wpisz polecenie albo pytanie.", "wake", true
	case "uzyj gpt", "uzyj online", "uzyj chmury":
		p.session.Forced = ForceCloud
		return "☁️ Do końca sesji używam modelu w chmurze (GPT). Powrót: użyj auto.", "force-cloud", true
	case "uzyj local", "uzyj lokalnego", "uzyj lokalnego modelu":
		p.session.Forced = ForceLocal
		return "🖥️ Do końca sesji używam tylko modelu lokalnego. Powrót: użyj auto.", "force-local", true
	case "uzyj auto":
		p.session.Forced = ForceNone
		return "🔀 Automatyczny wybór modelu: lokalny, potem chmura za zgodą.", "force-auto", true
	case "status":
		return p.statusText(), "status", true
	case "lista modeli", "pokaz modele":
		return p.modelList(), "models", true
	}

	if m := reEngineCmd.FindStringSubmatch(f); m != nil {
		return p.setLocalBackend(m[1]), "engine", true
	}
	if m := reModelCmd.FindStringSubmatch(f); m != nil {
		if m[1] == config.LocalOllama || m[1] == config.LocalLlama {
			return p.setLocalBackend(m[1]), "engine", true
		}
		return p.setLocalModel(lastField(cmd)), "model", true
	}
	if m := reDryRunCmd.FindStringSubmatch(f); m != nil {
		return p.dryRunCommand(m[1]), "dry-run", true
	}

	if m := reConsentCmd.FindStringSubmatch(f); m != nil {
		if strings.TrimSpace(m[1]) == "" {
			return "Zgoda GPT: " + consentLabels[p.consent.Policy()], "consent", true
		}
		policy, err := p.consent.Set(m[1])
		if err != nil {
			return "⚠️ Użycie: zgoda gpt zawsze|raz|nie|pytaj", "consent", true
		}
		return "✅ Zgoda GPT ustawiona: " + consentLabels[policy], "consent", true
	}

	if m := reLevelCmd.FindStringSubmatch(f); m != nil {
		if m[1] == "" {
			return fmt.Sprintf("Poziom wykonania: %d", ClampLevel(p.cfg.Snapshot().ExecLevel)), "level", true
		}
		level, err := strconv.Atoi(m[1])
		if err != nil || level < 1 || level > 3 {
			return "⚠️ Użycie: poziom 1|2|3", "level", true
		}
		if err := p.cfg.SetValue("exec_level", level); err != nil {
			return "❌ Nie udało się zapisać poziomu: " + err.Error(), "level", true
		}
		return fmt.Sprintf("✅ Ustawiono poziom wykonania: %d", level), "level", true
	}
	return "", "", false
}

// lastField returns the last word of s with its original case.
func lastField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimRight(fields[len(fields)-1], "!.")
}

func (p *Pipeline) setLocalBackend(name string) string {
	switch name {
	case config.LocalOllama, config.LocalLlama:
	default:
		return "⚠️ Użycie: zmień silnik na ollama|llama"
	}
	if err := p.cfg.SetValue("local_backend", name); err != nil {
		return "❌ Nie udało się zmienić silnika: " + err.Error()
	}
	p.reconfigureLocked()
	return fmt.Sprintf("✅ Silnik lokalny: %s (model %s)", name, p.cfg.Snapshot().LocalModelName())
}

func (p *Pipeline) setLocalModel(model string) string {
	if model == "" {
		return "⚠️ Użycie: użyj <model> albo ustaw model <nazwa>"
	}
	if err := p.cfg.SetValue("local_model", model); err != nil {
		return "❌ Nie udało się zmienić modelu: " + err.Error()
	}
	p.reconfigureLocked()
	text := fmt.Sprintf("✅ Model lokalny: %s (%s)", model, p.cfg.Snapshot().LocalBackend)
	catalog := loadModelCatalog(p.cfg.Resolve(p.cfg.Snapshot().ModelsFile))
	if _, known := catalog[model]; len(catalog) > 0 && !known {
		text += "\nUwaga: tego modelu nie ma w pliku modeli."
	}
	return text
}

func (p *Pipeline) modelList() string {
	cfg := p.cfg.Snapshot()
	current := cfg.LocalModelName()
	catalog := loadModelCatalog(p.cfg.Resolve(cfg.ModelsFile))
	if len(catalog) == 0 {
		return fmt.Sprintf("📚 Brak listy modeli (%s). Aktywny: %s (%s)", cfg.ModelsFile, current, cfg.LocalBackend)
	}
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "📚 Modele lokalne (%s):", cfg.LocalBackend)
	for _, name := range names {
		mark := "  "
		if name == current {
			mark = "▶ "
		}
		fmt.Fprintf(&b, "\n%s%s", mark, name)
		if desc := catalog[name]; desc != "" {
			b.WriteString(" – " + desc)
		}
	}
	if _, ok := catalog[current]; !ok {
		fmt.Fprintf(&b, "\nAktywny spoza listy: %s", current)
	}
	return b.String()
}

func (p *Pipeline) dryRunCommand(arg string) string {
	var on bool
	switch arg {
	case "", "status":
		return "Tryb próbny: " + onOff(p.cfg.Snapshot().DryRun)
	case "on", "wlacz", "tak":
		on = true
	case "off", "wylacz", "nie":
	default:
		return "⚠️ Użycie: dry-run on|off|status"
	}
	if err := p.cfg.SetValue("dry_run", on); err != nil {
		return "❌ Nie udało się zapisać trybu próbnego: " + err.Error()
	}
	return "✅ Tryb próbny: " + onOff(on)
}

func onOff(v bool) string {
	if v {
		return "włączony (polecenia nie są wykonywane)"
	}
	return "wyłączony"
}

func (p *Pipeline) statusText() string {
	cfg := p.cfg.Snapshot()
	var b strings.Builder
	b.WriteString("📊 Status Lyry\n")

	mode := "auto (lokalny → chmura za zgodą)"
	switch {
	case p.session.Forced == ForceCloud:
		mode = "wymuszona chmura"
	case p.session.Forced == ForceLocal:
		mode = "wymuszony model lokalny"
	case cfg.Backend == config.BackendOpenAI:
		mode = "chmura (backend: openai)"
	}
	fmt.Fprintf(&b, "Tryb: %s\n", mode)

	local := cfg.LocalModelName()
	if desc := modelDescription(p.cfg.Resolve(cfg.ModelsFile), local); desc != "" {
		local += " – " + desc
	}
	fmt.Fprintf(&b, "Model lokalny: %s (%s)\n", local, cfg.LocalBackend)
	fmt.Fprintf(&b, "Model w chmurze: %s\n", cfg.OpenAIModel)
	if p.session.LastBackend != "" {
		fmt.Fprintf(&b, "Ostatnio: %s / %s (%s)\n", p.session.LastBackend, p.session.LastModel, p.session.LastInference)
	}
	fmt.Fprintf(&b, "Zgoda GPT: %s\n", consentLabels[p.consent.Policy()])
	fmt.Fprintf(&b, "Poziom wykonania: %d\n", ClampLevel(cfg.ExecLevel))
	fmt.Fprintf(&b, "Tryb próbny: %s\n", onOff(cfg.DryRun))
	if cmd, ok := p.session.Confirm.Pending(); ok {
		fmt.Fprintf(&b, "Oczekuje na potwierdzenie: %s\n", cmd)
	} else {
		b.WriteString("Oczekuje na potwierdzenie: nic\n")
	}

	st := p.session.LastStats
	if st.IsZero() && p.stats != nil {
		st = p.stats.Load()
	}
	if st.IsZero() {
		b.WriteString("Statystyki: brak\n")
	} else {
		fmt.Fprintf(&b, "Statystyki: prompt %.1f tok/s, generacja %.1f tok/s (%s %s)\n", st.PromptTPS, st.GenTPS, st.Backend, st.Model)
	}
	fmt.Fprintf(&b, "Sesja: %s", p.session.ID)
	return b.String()
}

func modelDescription(path, model string) string {
	return loadModelCatalog(path)[model]
}

// loadModelCatalog reads models_file: a JSON object mapping a model name to
// a description string or to an object with a "description" field.
func loadModelCatalog(path string) map[string]string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	out := make(map[string]string, len(raw))
	for name, v := range raw {
		switch v := v.(type) {
		case string:
			out[name] = v
		case map[string]any:
			d, _ := v["description"].(string)
			out[name] = d
		default:
			out[name] = ""
		}
	}
	return out
}
