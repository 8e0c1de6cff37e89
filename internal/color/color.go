package color

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#007A3D", Dark: "#5AF78E"})
	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#A36A00", Dark: "#F3F99D"})
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B00020", Dark: "#FF5C57"}).Bold(true)
	MutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6C6C6C", Dark: "#8A8A8A"})
	HeaderStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	CellStyle    = lipgloss.NewStyle().Padding(0, 1)
	BorderStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#BBBBBB", Dark: "#444444"})
)

// Initialize selects the palette for a dark or light terminal background.
func Initialize(isDarkMode bool) {
	lipgloss.SetHasDarkBackground(isDarkMode)
}

// Status renders a session status or lifecycle state.
func Status(status string) string {
	switch status {
	case "Running":
		return SuccessStyle.Render(status)
	case "Starting", "Deleting":
		return WarningStyle.Render(status)
	case "Stopped", "NoSession":
		return MutedStyle.Render(status)
	default:
		return ErrorStyle.Render(status)
	}
}

// Error renders an error message.
func Error(msg string) string {
	return ErrorStyle.Render(msg)
}
