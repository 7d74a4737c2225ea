package ui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("#1E88E5")
	colorAccent  = lipgloss.Color("#43A047")
	colorMuted   = lipgloss.Color("#8A8F98")
	colorWarning = lipgloss.Color("#FFB300")
	colorError   = lipgloss.Color("#E53935")
)

// Styles groups the lipgloss styles of the chat window.
type Styles struct {
	Header     lipgloss.Style
	Title      lipgloss.Style
	User       lipgloss.Style
	Assistant  lipgloss.Style
	Muted      lipgloss.Style
	Ready      lipgloss.Style
	Busy       lipgloss.Style
	Error      lipgloss.Style
	Reference  lipgloss.Style
	Input      lipgloss.Style
	Panel      lipgloss.Style
	PanelFocus lipgloss.Style
	Selected   lipgloss.Style
}

// DefaultStyles returns the stock palette.
func DefaultStyles() Styles {
	return Styles{
		Header:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(colorPrimary).Padding(0, 1),
		Title:      lipgloss.NewStyle().Foreground(colorMuted).Italic(true),
		User:       lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).MarginTop(1),
		Assistant:  lipgloss.NewStyle().Bold(true).Foreground(colorAccent).MarginTop(1),
		Muted:      lipgloss.NewStyle().Foreground(colorMuted),
		Ready:      lipgloss.NewStyle().Foreground(colorAccent),
		Busy:       lipgloss.NewStyle().Foreground(colorWarning),
		Error:      lipgloss.NewStyle().Foreground(colorError),
		Reference:  lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(colorMuted).PaddingLeft(1),
		Input:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorAccent).Padding(0, 1),
		Panel:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorMuted).Padding(0, 1),
		PanelFocus: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorPrimary).Padding(0, 1),
		Selected:   lipgloss.NewStyle().Bold(true).Foreground(colorPrimary),
	}
}
