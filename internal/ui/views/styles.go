// Package views renders UI state to strings.
package views

import "github.com/charmbracelet/lipgloss"

var (
	ColorPrimary = lipgloss.Color("63")
	ColorMuted   = lipgloss.Color("241")
	ColorSuccess = lipgloss.Color("42")
	ColorError   = lipgloss.Color("196")
	ColorWarning = lipgloss.Color("214")
)

var (
	UserMessageStyle      lipgloss.Style
	AssistantMessageStyle lipgloss.Style
	ReasoningStyle        lipgloss.Style
	ToolMessageStyle      lipgloss.Style
	SystemMessageStyle    lipgloss.Style
	DiffAddedStyle        lipgloss.Style
	DiffRemovedStyle      lipgloss.Style

	InputStyle         lipgloss.Style
	PermissionBoxStyle lipgloss.Style

	StatusDefaultStyle   lipgloss.Style
	StatusThinkingStyle  lipgloss.Style
	StatusExecutingStyle lipgloss.Style
	StatusDoneStyle      lipgloss.Style
	StatusErrorStyle     lipgloss.Style
	StatusMutedStyle     lipgloss.Style
)

func init() {
	buildStyles()
}

// SetTheme replaces the primary and muted colors. Empty values keep the
// current color.
func SetTheme(primary, muted string) {
	if primary != "" {
		ColorPrimary = lipgloss.Color(primary)
	}
	if muted != "" {
		ColorMuted = lipgloss.Color(muted)
	}
	buildStyles()
}

func buildStyles() {
	UserMessageStyle = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	AssistantMessageStyle = lipgloss.NewStyle()
	ReasoningStyle = lipgloss.NewStyle().Foreground(ColorMuted).Italic(true)
	ToolMessageStyle = lipgloss.NewStyle().Foreground(ColorMuted).PaddingLeft(2)
	SystemMessageStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	DiffAddedStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	DiffRemovedStyle = lipgloss.NewStyle().Foreground(ColorError)

	InputStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorPrimary).
		Padding(0, 1)
	PermissionBoxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1)

	StatusDefaultStyle = lipgloss.NewStyle().Padding(0, 1)
	StatusThinkingStyle = StatusDefaultStyle.Foreground(ColorPrimary)
	StatusExecutingStyle = StatusDefaultStyle.Foreground(lipgloss.Color("39"))
	StatusDoneStyle = StatusDefaultStyle.Foreground(ColorSuccess)
	StatusErrorStyle = StatusDefaultStyle.Foreground(ColorError)
	StatusMutedStyle = StatusDefaultStyle.Foreground(ColorMuted)
}
