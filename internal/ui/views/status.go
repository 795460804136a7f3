package views

import (
	"fmt"
	"strings"

	"github.com/Cyclone1070/coda/internal/ui/models"
	"github.com/charmbracelet/lipgloss"
)

// Status phases.
const (
	PhaseReady     = "ready"
	PhaseThinking  = "thinking"
	PhaseExecuting = "executing"
	PhaseWaiting   = "waiting"
	PhaseDone      = "done"
	PhaseError     = "error"
)

// RenderStatus renders the status bar
func RenderStatus(s models.State) string {
	var left string
	switch s.StatusPhase {
	case PhaseThinking:
		dots := strings.Repeat(".", s.DotCount)
		left = StatusThinkingStyle.Render(fmt.Sprintf("%s Generating%s", s.Spinner.View(), dots))
	case PhaseExecuting:
		left = StatusExecutingStyle.Render(fmt.Sprintf("%s %s", s.Spinner.View(), s.StatusMessage))
	case PhaseWaiting:
		left = StatusThinkingStyle.Render("? " + s.StatusMessage)
	case PhaseDone:
		left = StatusDoneStyle.Render("✔ " + s.StatusMessage)
	case PhaseError:
		left = StatusErrorStyle.Render("✗ " + s.StatusMessage)
	default:
		status := "Ready"
		if s.StatusMessage != "" {
			status = s.StatusMessage
		}
		left = StatusDefaultStyle.Render(status)
	}

	var parts []string
	if s.Usage.TotalTokens > 0 {
		parts = append(parts, fmt.Sprintf("%d tokens", s.Usage.TotalTokens))
	}
	if s.CurrentModel != "" {
		parts = append(parts, s.CurrentModel)
	}
	if len(parts) == 0 {
		return left
	}
	right := StatusMutedStyle.Render(strings.Join(parts, " · "))

	gap := s.Width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 2 {
		gap = 2
	}
	return left + strings.Repeat(" ", gap) + right
}
