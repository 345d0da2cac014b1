package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Prompt renders the REPL prompt "<user> > ".
func Prompt(user string) string {
	theme := getTheme()
	return lipgloss.NewStyle().Foreground(theme.primary).Bold(true).Render(user) +
		lipgloss.NewStyle().Foreground(theme.textMuted).Render(" > ")
}

// Reply colors text by the pipeline stage that produced it. Unknown kinds
// are printed as is.
func Reply(kind, text string) string {
	theme := getTheme()
	var style lipgloss.Style
	switch kind {
	case "confirm":
		style = lipgloss.NewStyle().Foreground(theme.warning)
	case "error":
		style = lipgloss.NewStyle().Foreground(theme.error)
	case "tool", "system":
		style = lipgloss.NewStyle().Foreground(theme.text)
	case "control", "proposal":
		style = lipgloss.NewStyle().Foreground(theme.primary)
	default:
		return text
	}
	return style.Render(text)
}

// Box frames a block of text, used for status style summaries.
func Box(title, body string) string {
	theme := getTheme()
	head := lipgloss.NewStyle().Foreground(theme.primary).Bold(true).Render(title)
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.border).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}

// Success, Warn and Muted style one-line CLI messages.
func Success(s string) string { return lipgloss.NewStyle().Foreground(getTheme().success).Render(s) }
func Warn(s string) string    { return lipgloss.NewStyle().Foreground(getTheme().warning).Render(s) }
func Muted(s string) string   { return lipgloss.NewStyle().Foreground(getTheme().textMuted).Render(s) }
