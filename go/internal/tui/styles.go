package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e4e4ec")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#c0c4d0"))

	accentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#34d474")).
			Bold(true)

	goldStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4a844")).
			Bold(true)

	rejectStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#b45555"))

	liveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e06060")).
			Bold(true)

	trackStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#343c4a"))

	thumbStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ade80")).
			Bold(true)

	inputPromptStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#34d474")).
				Bold(true)

	inputPlaceholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#343c4a"))

	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#d4a844")).
			Padding(0, 2)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	helpLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))
)

// fadeColors step a comment from full brightness down to the background
var fadeColors = []lipgloss.Color{
	lipgloss.Color("#1e1e2a"),
	lipgloss.Color("#343c4a"),
	lipgloss.Color("#606878"),
	lipgloss.Color("#8890a0"),
	lipgloss.Color("#c0c4d0"),
}

// fadeColor picks the foreground for an opacity in [0, 1]
func fadeColor(opacity float64) lipgloss.Color {
	if opacity < 0 {
		opacity = 0
	}
	i := int(opacity * float64(len(fadeColors)-1))
	if i >= len(fadeColors) {
		i = len(fadeColors) - 1
	}
	return fadeColors[i]
}

func fadeStyle(opacity float64) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(fadeColor(opacity))
}
