package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var logo = []string{
	"█    █  █ █▀▀█ █▀▀█",
	"█    █▄▄█ █▄▄▀ █▄▄█",
	"█▄▄▄ ▄▄▄█ █  █ █  █",
}

// Banner renders the logo centered in width columns with a subtitle line.
func Banner(width int, subtitle string) string {
	theme := getTheme()
	logoStyle := lipgloss.NewStyle().Foreground(theme.primary).Bold(true)
	subStyle := lipgloss.NewStyle().Foreground(theme.textMuted)

	var b strings.Builder
	for _, line := range logo {
		b.WriteString(center(logoStyle.Render(line), width))
		b.WriteString("\n")
	}
	if subtitle != "" {
		b.WriteString(center(subStyle.Render(subtitle), width))
		b.WriteString("\n")
	}
	return b.String()
}

func center(line string, width int) string {
	padding := (width - lipgloss.Width(line)) / 2
	if padding > 0 {
		return lipgloss.NewStyle().PaddingLeft(padding).Render(line)
	}
	return line
}

// MiniLogo is the one-word header used by the init wizard.
func MiniLogo() string {
	theme := getTheme()
	return lipgloss.NewStyle().Foreground(theme.primary).Bold(true).Render("ly") +
		lipgloss.NewStyle().Foreground(theme.text).Bold(true).Render("ra")
}
