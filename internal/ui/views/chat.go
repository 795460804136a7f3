package views

import (
	"strings"

	"github.com/Cyclone1070/coda/internal/ui/models"
	"github.com/Cyclone1070/coda/internal/ui/services"
)

// RenderChat renders the message history
func RenderChat(s models.State, renderer services.MarkdownRenderer) string {
	if len(s.Messages) == 0 && s.Streaming == "" {
		return "No messages yet. Type a message to start."
	}
	return s.Viewport.View()
}

// FormatChatContent formats the messages for the viewport. A non-empty
// streaming answer is appended as plain text since it may be cut mid-markup.
func FormatChatContent(messages []models.Message, streaming string, width int, renderer services.MarkdownRenderer) string {
	var lines []string
	for _, msg := range messages {
		lines = append(lines, formatMessage(msg, width, renderer), "")
	}
	if streaming != "" {
		lines = append(lines, AssistantMessageStyle.Render(streaming), "")
	}
	return strings.Join(lines, "\n")
}

func formatMessage(msg models.Message, width int, renderer services.MarkdownRenderer) string {
	switch msg.Role {
	case models.RoleUser:
		return UserMessageStyle.Render("You: " + msg.Content)
	case models.RoleReasoning:
		return ReasoningStyle.Render(msg.Content)
	case models.RoleTool:
		return ToolMessageStyle.Render(colorizeDiff(msg.Content))
	case models.RoleSystem:
		return SystemMessageStyle.Render(msg.Content)
	default:
		rendered, err := services.RenderMarkdown(msg.Content, width, renderer)
		if err != nil {
			return AssistantMessageStyle.Render(msg.Content)
		}
		return AssistantMessageStyle.Render(rendered)
	}
}

// colorizeDiff colors unified diff lines; other lines pass through.
func colorizeDiff(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			lines[i] = DiffAddedStyle.Render(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = DiffRemovedStyle.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}
