package ui

import "github.com/charmbracelet/lipgloss"

var (
	docStyle     = lipgloss.NewStyle().Margin(1, 2)
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("228")).Bold(true).Render
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Width(14)
	promptStyle  = lipgloss.NewStyle().MarginTop(1)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// phaseStyle 按阶段着色
func phaseStyle(phase string) lipgloss.Style {
	switch phase {
	case "WAITING_FOR_PLAYERS":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("117"))
	case "READY_TO_START":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	case "IN_PROGRESS":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	default:
		return mutedStyle
	}
}
