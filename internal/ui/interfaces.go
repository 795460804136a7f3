package ui

import "context"

// PermissionDecision represents the user's choice for a permission request
type PermissionDecision string

const (
	DecisionAllow       PermissionDecision = "allow"
	DecisionDeny        PermissionDecision = "deny"
	DecisionAllowAlways PermissionDecision = "allow_always"
)

// CommandType names a request from the UI to the application.
type CommandType string

const (
	CommandInterrupt   CommandType = "interrupt"
	CommandClear       CommandType = "clear"
	CommandListModels  CommandType = "list_models"
	CommandSwitchModel CommandType = "switch_model"
	CommandMCPStatus   CommandType = "mcp_status"
	CommandLSPStatus   CommandType = "lsp_status"
)

// UICommand is sent by the UI on slash commands and interrupts.
type UICommand struct {
	Type CommandType
	Args map[string]string
}

// UserInterface defines the contract for all user interactions.
//
// All blocking methods return ctx.Err() as soon as ctx is done.
type UserInterface interface {
	// ReadInput waits for the next user message.
	ReadInput(ctx context.Context, prompt string) (string, error)

	// ReadPermission asks a yes/no question. allowAlways offers the
	// session-wide answer.
	ReadPermission(ctx context.Context, prompt, preview string, allowAlways bool) (PermissionDecision, error)

	// WriteStatus displays ephemeral status updates (e.g., "Thinking...")
	WriteStatus(phase string, message string)

	// WriteMessage displays a note in the transcript.
	WriteMessage(content string)

	// WriteModelList opens the model picker.
	WriteModelList(models []string)

	// SetModel updates the model shown in the status bar.
	SetModel(model string)

	// Commands delivers slash commands and interrupts.
	Commands() <-chan UICommand

	// Ready is closed once the UI accepts requests.
	Ready() <-chan struct{}

	// Start runs the UI until the user quits.
	Start() error
}
