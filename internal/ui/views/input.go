package views

import (
	"strings"

	"github.com/Cyclone1070/coda/internal/ui/models"
	"github.com/charmbracelet/lipgloss"
)

// RenderInput renders the input bar, or the pending permission prompt in
// its place.
func RenderInput(s models.State) string {
	if s.PendingPermission != nil {
		return RenderPermission(*s.PendingPermission)
	}
	return InputStyle.Render(s.Input.View())
}

// RenderPermission renders a yes/no question with its preview.
func RenderPermission(p models.PermissionRequest) string {
	var sb strings.Builder
	sb.WriteString(lipgloss.NewStyle().Bold(true).Render(p.Prompt))
	if p.Preview != "" {
		sb.WriteString("\n\n")
		sb.WriteString(colorizeDiff(p.Preview))
	}
	sb.WriteString("\n\n")

	keys := "[y] yes  [n] no"
	if p.AllowAlways {
		keys += "  [a] yes, for this session"
	}
	sb.WriteString(lipgloss.NewStyle().Faint(true).Render(keys))
	return PermissionBoxStyle.Render(sb.String())
}
