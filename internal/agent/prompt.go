package agent

import (
	"fmt"
	"strings"

	"github.com/lyra-agent/lyra/internal/store"
)

// Persona opens every model prompt.
const Persona = "Jesteś Lyra, asystentem operacyjnym systemu Linux. Odpowiadasz po polsku, krótko i rzeczowo."

const directiveHelp = `Gdy trzeba wykonać polecenie powłoki, odpowiedz jedną linią: SYSTEM: <polecenie>
Gdy wystarczy narzędzie, odpowiedz: TOOL: <NAZWA> | <argument>
Pomysł na nowe narzędzie zgłoś jako: PROPOSE_TOOL: <opis>`

// state keys worth showing to the model, in display order
var promptStateKeys = []string{
	store.KeyOS,
	store.KeyKernel,
	store.KeyLastTool,
	store.KeyLastToolArg,
	store.KeyLastSystemCmd,
	store.KeyLastFile,
	store.KeyLastBackend,
	store.KeyLastModel,
}

const maxContextChars = 400

// PromptBuilder turns history, state and the question into a Query.
type PromptBuilder struct {
	ToolNames []string
}

// Build composes the system preamble and the prompt body. history should
// already be the last context_window TEXT entries.
func (b PromptBuilder) Build(history []store.Entry, state map[string]any, user string) (system, prompt string) {
	var sys strings.Builder
	sys.WriteString(Persona)
	sys.WriteString("\n\n")
	sys.WriteString(directiveHelp)
	if len(b.ToolNames) > 0 {
		sys.WriteString("\nNarzędzia: ")
		sys.WriteString(strings.Join(b.ToolNames, ", "))
	}

	var p strings.Builder
	if len(history) > 0 {
		p.WriteString("KONTEKST LOKALNY:\n")
		for _, e := range history {
			fmt.Fprintf(&p, "U: %s\nL: %s\n", clip(e.User, maxContextChars), clip(e.Assistant, maxContextChars))
		}
		p.WriteString("\n")
	}
	if summary := stateSummary(state); summary != "" {
		p.WriteString("STAN:\n")
		p.WriteString(summary)
		p.WriteString("\n")
	}
	p.WriteString("Zapytanie: ")
	p.WriteString(user)
	return sys.String(), p.String()
}

func stateSummary(state map[string]any) string {
	var b strings.Builder
	for _, k := range promptStateKeys {
		v, ok := state[k]
		if !ok {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		if s == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", k, clip(s, 200))
	}
	return b.String()
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
