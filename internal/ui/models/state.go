// Package models holds the state rendered by the terminal UI.
package models

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
)

// Message roles shown in the transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleReasoning = "reasoning"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// Message is one transcript entry.
type Message struct {
	Role    string
	Content string
}

// PermissionRequest is a pending yes/no question. AllowAlways enables the
// "trust for session" answer.
type PermissionRequest struct {
	Prompt      string
	Preview     string
	AllowAlways bool
}

// Usage accumulates token counts over the session.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// State is everything the views need to draw one frame.
type State struct {
	Input    textinput.Model
	Viewport viewport.Model
	Spinner  spinner.Model

	Messages []Message
	// Streaming holds the partial answer of the running completion.
	Streaming string

	Width  int
	Height int

	// CanSubmit is set while the conversation loop waits for input.
	CanSubmit bool
	// Busy is set between a submission and the next input request.
	Busy bool

	PendingPermission *PermissionRequest

	StatusPhase   string
	StatusMessage string
	DotCount      int
	CurrentModel  string
	Usage         Usage

	ModelList      []string
	ShowModelList  bool
	ModelListIndex int
}
