// Package ui is the bubbletea front-end. It renders workflow events and
// answers the conversation loop's approval and continuation questions.
package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/Cyclone1070/coda/internal/config"
	"github.com/Cyclone1070/coda/internal/ui/services"
	"github.com/Cyclone1070/coda/internal/ui/views"
	"github.com/Cyclone1070/coda/internal/workflow"
	"github.com/Cyclone1070/coda/internal/workflow/toolmanager"
	tea "github.com/charmbracelet/bubbletea"
)

var _ toolmanager.Approver = (*UI)(nil)

// UI implements the UserInterface using Bubble Tea
type UI struct {
	program  *tea.Program
	channels *UIChannels
}

// InputRequest asks the UI for the next user message.
type InputRequest struct {
	Prompt string
}

// PermissionPrompt asks the UI a yes/no question.
type PermissionPrompt struct {
	Prompt      string
	Preview     string
	AllowAlways bool
}

type statusMsg struct {
	phase   string
	message string
}

// UIChannels holds the channels for UI communication
type UIChannels struct {
	InputReq      chan InputRequest
	InputResp     chan string
	PermReq       chan PermissionPrompt
	PermResp      chan PermissionDecision
	StatusChan    chan statusMsg
	MessageChan   chan string
	ModelListChan chan []string
	SetModelChan  chan string
	// Events carries the conversation loop's events to the transcript.
	Events      chan workflow.Event
	CommandChan chan UICommand
	ReadyChan   chan struct{}
}

// NewUIChannels creates a new UIChannels struct with default buffers.
// Response channels hold one value so a keypress never blocks the UI when
// the asking side has already given up.
func NewUIChannels() *UIChannels {
	return &UIChannels{
		InputReq:      make(chan InputRequest),
		InputResp:     make(chan string, 1),
		PermReq:       make(chan PermissionPrompt),
		PermResp:      make(chan PermissionDecision, 1),
		StatusChan:    make(chan statusMsg, 10),
		MessageChan:   make(chan string, 10),
		ModelListChan: make(chan []string, 1),
		SetModelChan:  make(chan string, 1),
		Events:        make(chan workflow.Event, 64),
		CommandChan:   make(chan UICommand, 10),
		ReadyChan:     make(chan struct{}),
	}
}

// NewUI creates a new Bubble Tea UI
func NewUI(
	channels *UIChannels,
	cfg *config.Config,
	renderer services.MarkdownRenderer,
	spinnerFactory SpinnerFactory,
) *UI {
	views.SetTheme(cfg.UI.ColorPrimary, cfg.UI.ColorMuted)

	tickInterval := time.Duration(cfg.UI.TickIntervalMs) * time.Millisecond
	model := newBubbleTeaModel(channels, renderer, spinnerFactory, tickInterval)

	return &UI{
		program:  tea.NewProgram(model, tea.WithAltScreen()),
		channels: channels,
	}
}

// Start starts the UI program
func (u *UI) Start() error {
	_, err := u.program.Run()
	return err
}

// Events is the channel the conversation loop emits into.
func (u *UI) Events() chan<- workflow.Event {
	return u.channels.Events
}

// ReadInput prompts the user for input
func (u *UI) ReadInput(ctx context.Context, prompt string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case u.channels.InputReq <- InputRequest{Prompt: prompt}:
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case response := <-u.channels.InputResp:
		return response, nil
	}
}

// ReadPermission prompts the user for a permission decision
func (u *UI) ReadPermission(ctx context.Context, prompt, preview string, allowAlways bool) (PermissionDecision, error) {
	// Drop an answer left over from a prompt whose asker gave up.
	select {
	case <-u.channels.PermResp:
	default:
	}

	select {
	case <-ctx.Done():
		return DecisionDeny, ctx.Err()
	case u.channels.PermReq <- PermissionPrompt{Prompt: prompt, Preview: preview, AllowAlways: allowAlways}:
	}
	select {
	case <-ctx.Done():
		return DecisionDeny, ctx.Err()
	case decision := <-u.channels.PermResp:
		return decision, nil
	}
}

// ApproveTool asks whether a tool call may run. The session-wide answer is
// only offered for categories that can be trusted for the session.
func (u *UI) ApproveTool(ctx context.Context, req toolmanager.ApprovalRequest) (toolmanager.ApprovalDecision, error) {
	prompt := fmt.Sprintf("Allow %s? (%s)", services.FormatToolDescription(req.Tool, req.Args), req.Category)
	decision, err := u.ReadPermission(ctx, prompt, req.Preview, req.Category.CanTrustForSession())
	if err != nil {
		return toolmanager.ApprovalDecision{}, err
	}
	switch decision {
	case DecisionAllowAlways:
		return toolmanager.ApprovalDecision{Approved: true, TrustForSession: true}, nil
	case DecisionAllow:
		return toolmanager.ApprovalDecision{Approved: true}, nil
	default:
		return toolmanager.ApprovalDecision{}, nil
	}
}

// ContinueAfterIterations asks whether a long turn may keep going.
func (u *UI) ContinueAfterIterations(ctx context.Context, iterations int) bool {
	prompt := fmt.Sprintf("The agent has run %d iterations without finishing. Continue?", iterations)
	decision, err := u.ReadPermission(ctx, prompt, "", false)
	return err == nil && decision != DecisionDeny
}

// RetryAfterError asks whether a failed completion should be retried.
func (u *UI) RetryAfterError(ctx context.Context, err error) bool {
	decision, rerr := u.ReadPermission(ctx, "The model request failed. Retry?", err.Error(), false)
	return rerr == nil && decision != DecisionDeny
}

// WriteStatus updates the status bar
func (u *UI) WriteStatus(phase string, message string) {
	select {
	case u.channels.StatusChan <- statusMsg{phase: phase, message: message}:
	default:
	}
}

// WriteMessage sends a message to the UI
func (u *UI) WriteMessage(content string) {
	select {
	case u.channels.MessageChan <- content:
	default:
	}
}

// WriteModelList sends a list of models to the UI
func (u *UI) WriteModelList(models []string) {
	select {
	case u.channels.ModelListChan <- models:
	default:
	}
}

// SetModel updates the status bar model name.
func (u *UI) SetModel(model string) {
	select {
	case u.channels.SetModelChan <- model:
	default:
	}
}

// Commands returns the command channel
func (u *UI) Commands() <-chan UICommand {
	return u.channels.CommandChan
}

// Ready returns a channel that is closed when the UI is ready to accept requests
func (u *UI) Ready() <-chan struct{} {
	return u.channels.ReadyChan
}
