package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/lyra-agent/lyra/internal/agent/tools"
)

var (
	yesTokens = map[string]bool{"tak": true, "yes": true, "y": true, "potwierdzam": true}
	noTokens  = map[string]bool{"nie": true, "no": true, "n": true, "anuluj": true}
)

// Outcome of feeding one line to a pending confirmation.
type Outcome int

const (
	Reprompted Outcome = iota
	Executed
	Cancelled
)

// Resolution is what Confirmation.Resolve did.
type Resolution struct {
	Outcome Outcome
	Command string
	Output  string
	Text    string
}

// Confirmation holds at most one shell command waiting for tak/nie.
// The zero value is idle.
type Confirmation struct {
	command string
}

// Pending returns the waiting command.
func (c *Confirmation) Pending() (string, bool) {
	return c.command, c.command != ""
}

// Prompt renders the question for the waiting command.
func (c *Confirmation) Prompt() string {
	if c.command == "" {
		return ""
	}
	return fmt.Sprintf("⚠️ To polecenie wymaga potwierdzenia:\n    %s\nWykonać? (tak/nie)", c.command)
}

// Request parks cmd. While another command is waiting the request is
// rejected and the existing prompt is returned with accepted=false.
func (c *Confirmation) Request(cmd string) (prompt string, accepted bool) {
	cmd = strings.TrimSpace(cmd)
	if c.command != "" {
		return "⏳ Najpierw odpowiedz na oczekujące pytanie.\n" + c.Prompt(), false
	}
	if cmd == "" {
		return "", false
	}
	c.command = cmd
	return c.Prompt(), true
}

// Reset drops the waiting command without running it.
func (c *Confirmation) Reset() { c.command = "" }

// Resolve consumes one input line. Only yes and no tokens leave the
// waiting state; anything else re-emits the prompt.
func (c *Confirmation) Resolve(ctx context.Context, input string, sh tools.Shell) Resolution {
	cmd := c.command
	switch answerToken(input) {
	case "yes":
		c.command = ""
		out := sh.Run(ctx, cmd)
		return Resolution{Outcome: Executed, Command: cmd, Output: out, Text: out}
	case "no":
		c.command = ""
		return Resolution{Outcome: Cancelled, Command: cmd, Text: "❎ Anulowano: " + cmd}
	}
	return Resolution{Outcome: Reprompted, Command: cmd, Text: c.Prompt()}
}

// answerToken classifies a reply as "yes", "no" or "".
func answerToken(input string) string {
	t := strings.Trim(Fold(stripWake(Normalize(input).Text)), " .!")
	switch {
	case yesTokens[t]:
		return "yes"
	case noTokens[t]:
		return "no"
	}
	return ""
}
