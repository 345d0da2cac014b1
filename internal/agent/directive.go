package agent

import (
	"strings"
)

// Directive prefixes a model may answer with.
const (
	PrefixSystem  = "SYSTEM:"
	PrefixTool    = "TOOL:"
	PrefixPropose = "PROPOSE_TOOL:"
)

// DirectiveKind classifies a model answer.
type DirectiveKind int

const (
	DirectiveNone DirectiveKind = iota
	DirectiveSystem
	DirectiveTool
	DirectivePropose
)

// Directive is a parsed model instruction.
type Directive struct {
	Kind     DirectiveKind
	Command  string // SYSTEM
	Tool     string // TOOL
	Arg      string // TOOL
	Proposal string // PROPOSE_TOOL
	Line     string
}

// ParseDirective looks for a directive line. SYSTEM: wins over TOOL:,
// which wins over PROPOSE_TOOL:, wherever the lines appear.
func ParseDirective(text string) Directive {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for _, prefix := range []string{PrefixSystem, PrefixTool, PrefixPropose} {
		for _, raw := range lines {
			line := strings.TrimSpace(raw)
			if !strings.HasPrefix(line, prefix) {
				continue
			}
			body := strings.TrimSpace(line[len(prefix):])
			switch prefix {
			case PrefixSystem:
				cmd := unquoteCommand(body)
				if cmd == "" {
					continue
				}
				return Directive{Kind: DirectiveSystem, Command: cmd, Line: line}
			case PrefixTool:
				name, arg, _ := strings.Cut(body, "|")
				name = strings.ToUpper(strings.TrimSpace(name))
				if name == "" {
					continue
				}
				return Directive{Kind: DirectiveTool, Tool: name, Arg: strings.TrimSpace(arg), Line: line}
			default:
				if body == "" {
					continue
				}
				return Directive{Kind: DirectivePropose, Proposal: body, Line: line}
			}
		}
	}
	return Directive{}
}

// unquoteCommand drops one pair of enclosing backticks.
func unquoteCommand(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '`' && s[len(s)-1] == '`' && strings.Count(s, "`") == 2 {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
