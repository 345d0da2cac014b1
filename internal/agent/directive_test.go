package agent

import "testing"

func TestParseDirective(t *testing.T) {
	cases := []struct {
		name string
		text string
		want Directive
	}{
		{"plain", "Dzień dobry!", Directive{}},
		{"system", "SYSTEM: df -h", Directive{Kind: DirectiveSystem, Command: "df -h"}},
		{"system backticks", "SYSTEM: `uptime`", Directive{Kind: DirectiveSystem, Command: "uptime"}},
		{"system after prose", "Sprawdzę to.\nSYSTEM: free -m\n", Directive{Kind: DirectiveSystem, Command: "free -m"}},
		{"tool", "TOOL: disk_diag | ", Directive{Kind: DirectiveTool, Tool: "DISK_DIAG"}},
		{"tool arg", "TOOL: FILE_READ | /etc/hosts", Directive{Kind: DirectiveTool, Tool: "FILE_READ", Arg: "/etc/hosts"}},
		{"tool no pipe", "TOOL: NET_INFO", Directive{Kind: DirectiveTool, Tool: "NET_INFO"}},
		{"propose", "PROPOSE_TOOL: narzędzie do kopii zapasowych", Directive{Kind: DirectivePropose, Proposal: "narzędzie do kopii zapasowych"}},
		{"system beats tool", "TOOL: NET_INFO\nSYSTEM: ip a", Directive{Kind: DirectiveSystem, Command: "ip a"}},
		{"tool beats propose", "PROPOSE_TOOL: x\nTOOL: NET_INFO | a", Directive{Kind: DirectiveTool, Tool: "NET_INFO", Arg: "a"}},
		{"empty system skipped", "SYSTEM:\nTOOL: NET_INFO", Directive{Kind: DirectiveTool, Tool: "NET_INFO"}},
		{"lowercase prefix ignored", "system: ls", Directive{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseDirective(tc.text)
			got.Line = ""
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}
