// Package tui renders Lyra's terminal output: the banner, the REPL prompt
// and replies colored by the stage that produced them.
package tui

import "github.com/charmbracelet/lipgloss"

// Theme holds the palette used by every renderer in this package.
type Theme struct {
	text      lipgloss.Color
	textMuted lipgloss.Color
	primary   lipgloss.Color
	success   lipgloss.Color
	warning   lipgloss.Color
	error     lipgloss.Color
	border    lipgloss.Color
}

// dark palette, Lyra violet as the accent
func getTheme() Theme {
	return Theme{
		text:      lipgloss.Color("#e0e0e0"),
		textMuted: lipgloss.Color("#6b7280"),
		primary:   lipgloss.Color("#a78bfa"),
		success:   lipgloss.Color("#22c55e"),
		warning:   lipgloss.Color("#eab308"),
		error:     lipgloss.Color("#ef4444"),
		border:    lipgloss.Color("#3f3f46"),
	}
}
