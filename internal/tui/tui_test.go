package tui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestBannerCentersLogo(t *testing.T) {
	out := Banner(80, "asystent systemu")
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != len(logo)+1 {
		t.Fatalf("banner has %d lines", len(lines))
	}
	if w := lipgloss.Width(lines[0]); w <= lipgloss.Width(logo[0]) {
		t.Fatalf("logo line not padded: width %d", w)
	}
	if !strings.Contains(out, "asystent systemu") {
		t.Fatal("subtitle missing")
	}
}

func TestReplyKeepsText(t *testing.T) {
	for _, kind := range []string{"confirm", "error", "tool", "control", "model", ""} {
		if got := Reply(kind, "Wykonać? (tak/nie)"); !strings.Contains(got, "Wykonać? (tak/nie)") {
			t.Errorf("%s: text lost: %q", kind, got)
		}
	}
	if Reply("model", "x") != "x" {
		t.Fatal("model answers are printed unstyled")
	}
}

func TestPromptShowsUser(t *testing.T) {
	if p := Prompt("Tomek"); !strings.Contains(p, "Tomek") || !strings.Contains(p, " > ") {
		t.Fatalf("prompt = %q", p)
	}
}
