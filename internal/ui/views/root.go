package views

import (
	"github.com/Cyclone1070/coda/internal/ui/models"
	"github.com/Cyclone1070/coda/internal/ui/services"
	"github.com/charmbracelet/lipgloss"
)

// RenderRoot renders the complete UI layout
func RenderRoot(s models.State, renderer services.MarkdownRenderer) string {
	if s.ShowModelList {
		return lipgloss.Place(
			s.Width,
			s.Height,
			lipgloss.Center,
			lipgloss.Center,
			RenderModelPopup(s),
			lipgloss.WithWhitespaceChars(""),
			lipgloss.WithWhitespaceForeground(lipgloss.Color("0")),
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		RenderChat(s, renderer),
		RenderInput(s),
		RenderStatus(s),
	)
}
