package main

import "github.com/charmbracelet/lipgloss"

var (
	passStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#22C55E"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// verdictStyle picks the style for a verdict line.
func verdictStyle(valid bool, warnings int) lipgloss.Style {
	switch {
	case !valid:
		return errorStyle
	case warnings > 0:
		return warnStyle
	default:
		return passStyle
	}
}
