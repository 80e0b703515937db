package main

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	colorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	colorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	colorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	colorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	colorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	colorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	colorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorWhite).
	Background(colorBlue).
	Padding(0, 1)

var panelStyle = lipgloss.NewStyle().
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorBorder)

var labelStyle = lipgloss.NewStyle().
	Foreground(colorGray).
	Width(14)

var subtleStyle = lipgloss.NewStyle().
	Foreground(colorGray).
	Italic(true)

var errorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorRed)

// classStyle returns a color-coded style for a response class or outcome.
func classStyle(class string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch class {
	case "Success", "success":
		return base.Foreground(colorGreen)
	case "Warning":
		return base.Foreground(colorYellow)
	default:
		return base.Foreground(colorRed)
	}
}

// field renders a label/value line.
func field(label, value string) string {
	return labelStyle.Render(label) + value
}
