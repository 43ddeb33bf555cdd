package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/ordo/internal/solver"
)

var (
	// Colors
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	fgColor      = lipgloss.Color("#F9FAFB")
	cyanColor    = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	headerCellStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Bold(true)

	goalRowStyle = lipgloss.NewStyle().
			Padding(0, 2)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	valueStyle = lipgloss.NewStyle().
			Foreground(cyanColor).
			Bold(true)

	messageStyle = lipgloss.NewStyle().Foreground(successColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
)

func stateStyle(s solver.State) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch s {
	case solver.StateIterating:
		return base.Foreground(cyanColor)
	case solver.StatePaused, solver.StateLoading, solver.StateCommitting:
		return base.Foreground(warningColor)
	case solver.StateCommitted, solver.StateIdle:
		return base.Foreground(successColor)
	case solver.StateLoadFailed, solver.StateCancelled:
		return base.Foreground(errorColor)
	default:
		return base.Foreground(mutedColor)
	}
}
