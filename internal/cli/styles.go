// Package cli provides styled terminal output using lipgloss.
package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/hed1ad/fieldtrust/pkg/trust"
)

var (
	// PrimaryColor is the main theme color.
	PrimaryColor = lipgloss.Color("#10a37f")
	// WarningColor indicates warnings.
	WarningColor = lipgloss.Color("#f39c12")
	// ErrorColor indicates errors.
	ErrorColor = lipgloss.Color("#e74c3c")
	// SubtleColor indicates less prominent text.
	SubtleColor = lipgloss.Color("#666666")

	// TitleStyle is used for section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor)

	// SubtleStyle formats less prominent text.
	SubtleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor)

	// WarningStyle formats warning messages.
	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor)

	// ErrorStyle formats error messages.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor)

	// HeaderStyle is used for table headers.
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	// BoxStyle is used for the report summary.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(0, 1)
)

// FormatTitle renders a section title.
func FormatTitle(s string) string {
	return TitleStyle.Render(s)
}

// FormatWarning renders a warning line.
func FormatWarning(s string) string {
	return WarningStyle.Render("⚠ " + s)
}

// FormatError renders an error line.
func FormatError(s string) string {
	return ErrorStyle.Render("✗ " + s)
}

// GradeStyle returns the style for a trust score, coloured by its band.
func GradeStyle(score float64) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(trust.Color(score)))
}

// FormatScore renders a score with its grade in the band colour.
func FormatScore(score float64) string {
	return GradeStyle(score).Render(trust.Grade(score))
}
