package views

import (
	"strings"

	"github.com/Cyclone1070/coda/internal/ui/models"
	"github.com/charmbracelet/lipgloss"
)

// RenderModelPopup renders the model picker. The active model is tagged.
func RenderModelPopup(s models.State) string {
	if !s.ShowModelList || len(s.ModelList) == 0 {
		return ""
	}

	selected := lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	lines := []string{lipgloss.NewStyle().Bold(true).Render("Select Model:"), ""}
	for i, model := range s.ModelList {
		label := model
		if model == s.CurrentModel {
			label += " (current)"
		}
		if i == s.ModelListIndex {
			lines = append(lines, selected.Render("▸ "+label))
		} else {
			lines = append(lines, "  "+label)
		}
	}
	lines = append(lines, "", lipgloss.NewStyle().Faint(true).Render("↑/↓: Navigate  Enter: Select  Esc: Cancel"))

	return PermissionBoxStyle.BorderForeground(ColorPrimary).Render(strings.Join(lines, "\n"))
}
