// Package render formats inspection reports for the terminal.
package render

import (
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	// TitleStyle is used for the report title.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")) // Purple

	// SectionStyle is used for section headers.
	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	// ValidStyle marks projects with a complete status field.
	ValidStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")). // Green
			Bold(true)

	// ErrorStyle marks invalid projects and failures.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	// MatchStyle highlights the issue's own card.
	MatchStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")). // Light purple
			Bold(true)

	// NormalItemStyle is used for other cards.
	NormalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")) // Light gray

	// DimStyle is used for ids and secondary text.
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")) // Dark gray
)

// ColorsEnabled reports whether styled output should be produced.
// NO_COLOR (any value) and TERM=dumb turn it off.
func ColorsEnabled() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}

// style renders s with st when colors are enabled.
func style(st lipgloss.Style, s string) string {
	if !ColorsEnabled() {
		return s
	}
	return st.Render(s)
}
