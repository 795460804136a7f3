package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Cyclone1070/coda/internal/ui/models"
	"github.com/Cyclone1070/coda/internal/ui/services"
	"github.com/Cyclone1070/coda/internal/ui/views"
	"github.com/Cyclone1070/coda/internal/workflow"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

const helpText = `Available commands:
- /models - List and switch models
- /model <name> - Switch to a model by name
- /clear - Forget the conversation
- /mcp - Show MCP server status
- /lsp - Show language server status
- /quit - Exit
- /help - Show this help

Esc or Ctrl+C interrupts a running turn. Ctrl+C quits when idle.`

// reservedLines is the space kept below the transcript for input and status.
const reservedLines = 6

// BubbleTeaModel implements tea.Model
type BubbleTeaModel struct {
	state models.State

	renderer     services.MarkdownRenderer
	tickInterval time.Duration
	// toolCalls maps in-flight call IDs to their descriptions.
	toolCalls map[string]string

	// Loop -> UI
	inputReq      <-chan InputRequest
	permReq       <-chan PermissionPrompt
	statusChan    <-chan statusMsg
	messageChan   <-chan string
	modelListChan <-chan []string
	setModelChan  <-chan string
	events        <-chan workflow.Event

	// UI -> Loop
	inputResp   chan<- string
	permResp    chan<- PermissionDecision
	commandChan chan<- UICommand

	readyChan chan<- struct{}
}

// SpinnerFactory creates a new spinner
type SpinnerFactory func() spinner.Model

func newBubbleTeaModel(
	channels *UIChannels,
	renderer services.MarkdownRenderer,
	spinnerFactory SpinnerFactory,
	tickInterval time.Duration,
) BubbleTeaModel {
	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.Focus()

	if tickInterval <= 0 {
		tickInterval = 100 * time.Millisecond
	}

	return BubbleTeaModel{
		state: models.State{
			Input:    ti,
			Viewport: viewport.New(80, 20),
			Spinner:  spinnerFactory(),
		},
		renderer:      renderer,
		tickInterval:  tickInterval,
		toolCalls:     make(map[string]string),
		inputReq:      channels.InputReq,
		permReq:       channels.PermReq,
		statusChan:    channels.StatusChan,
		messageChan:   channels.MessageChan,
		modelListChan: channels.ModelListChan,
		setModelChan:  channels.SetModelChan,
		events:        channels.Events,
		inputResp:     channels.InputResp,
		permResp:      channels.PermResp,
		commandChan:   channels.CommandChan,
		readyChan:     channels.ReadyChan,
	}
}

// Internal messages
type tickMsg time.Time
type inputRequestMsg InputRequest
type permRequestMsg PermissionPrompt
type statusUpdateMsg statusMsg
type messageReceivedMsg string
type modelListReceivedMsg []string
type setModelMsg string
type eventMsg struct{ event workflow.Event }

// Init initializes the model
func (m BubbleTeaModel) Init() tea.Cmd {
	if m.readyChan != nil {
		close(m.readyChan)
	}

	return tea.Batch(
		textinput.Blink,
		m.state.Spinner.Tick,
		m.tick(),
		listen(m.inputReq, func(v InputRequest) tea.Msg { return inputRequestMsg(v) }),
		listen(m.permReq, func(v PermissionPrompt) tea.Msg { return permRequestMsg(v) }),
		listen(m.statusChan, func(v statusMsg) tea.Msg { return statusUpdateMsg(v) }),
		listen(m.messageChan, func(v string) tea.Msg { return messageReceivedMsg(v) }),
		listen(m.modelListChan, func(v []string) tea.Msg { return modelListReceivedMsg(v) }),
		listen(m.setModelChan, func(v string) tea.Msg { return setModelMsg(v) }),
		listen(m.events, func(v workflow.Event) tea.Msg { return eventMsg{v} }),
	)
}

// View renders the UI
func (m BubbleTeaModel) View() string {
	return views.RenderRoot(m.state, m.renderer)
}

// Update handles messages
func (m BubbleTeaModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.state.Width = msg.Width
		m.state.Height = msg.Height
		m.state.Viewport.Width = msg.Width
		m.state.Viewport.Height = max(msg.Height-reservedLines, 1)
		m.state.Input.Width = max(msg.Width-6, 10)
		m.updateViewport()
		return m, nil

	case tickMsg:
		m.state.DotCount = (m.state.DotCount + 1) % 4
		return m, m.tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.state.Spinner, cmd = m.state.Spinner.Update(msg)
		return m, cmd

	case inputRequestMsg:
		m.state.CanSubmit = true
		m.state.Busy = false
		return m, listen(m.inputReq, func(v InputRequest) tea.Msg { return inputRequestMsg(v) })

	case permRequestMsg:
		m.state.PendingPermission = &models.PermissionRequest{
			Prompt:      msg.Prompt,
			Preview:     msg.Preview,
			AllowAlways: msg.AllowAlways,
		}
		m.state.StatusPhase = views.PhaseWaiting
		m.state.StatusMessage = "Waiting for your answer"
		return m, listen(m.permReq, func(v PermissionPrompt) tea.Msg { return permRequestMsg(v) })

	case statusUpdateMsg:
		m.state.StatusPhase = msg.phase
		m.state.StatusMessage = msg.message
		return m, listen(m.statusChan, func(v statusMsg) tea.Msg { return statusUpdateMsg(v) })

	case messageReceivedMsg:
		m.appendMessage(models.RoleSystem, string(msg))
		return m, listen(m.messageChan, func(v string) tea.Msg { return messageReceivedMsg(v) })

	case modelListReceivedMsg:
		m.state.ModelList = []string(msg)
		m.state.ShowModelList = len(msg) > 0
		m.state.ModelListIndex = 0
		return m, listen(m.modelListChan, func(v []string) tea.Msg { return modelListReceivedMsg(v) })

	case setModelMsg:
		m.state.CurrentModel = string(msg)
		return m, listen(m.setModelChan, func(v string) tea.Msg { return setModelMsg(v) })

	case eventMsg:
		m.handleEvent(msg.event)
		m.updateViewport()
		return m, listen(m.events, func(v workflow.Event) tea.Msg { return eventMsg{v} })
	}

	var cmd tea.Cmd
	m.state.Input, cmd = m.state.Input.Update(msg)
	return m, cmd
}

// handleEvent folds one conversation event into the transcript and status.
func (m *BubbleTeaModel) handleEvent(ev workflow.Event) {
	switch e := ev.(type) {
	case workflow.TextEvent:
		m.state.Streaming += e.Text
		m.state.StatusPhase = views.PhaseThinking

	case workflow.ThinkingEvent:
		m.state.Streaming = ""
		if e.Reasoning != "" {
			m.state.Messages = append(m.state.Messages, models.Message{Role: models.RoleReasoning, Content: e.Reasoning})
		}
		if e.Content != "" {
			m.state.Messages = append(m.state.Messages, models.Message{Role: models.RoleAssistant, Content: e.Content})
		}

	case workflow.FinalMessageEvent:
		m.state.Streaming = ""
		if e.Reasoning != "" {
			m.state.Messages = append(m.state.Messages, models.Message{Role: models.RoleReasoning, Content: e.Reasoning})
		}
		m.state.Messages = append(m.state.Messages, models.Message{Role: models.RoleAssistant, Content: e.Content})

	case workflow.UsageEvent:
		m.state.Usage.PromptTokens += e.Usage.PromptTokens
		m.state.Usage.CompletionTokens += e.Usage.CompletionTokens
		m.state.Usage.TotalTokens += e.Usage.TotalTokens

	case workflow.ToolStartEvent:
		desc := services.FormatToolDescription(e.ToolName, e.Args)
		m.toolCalls[e.CallID] = desc
		m.state.StatusPhase = views.PhaseExecuting
		m.state.StatusMessage = desc

	case workflow.ToolEndEvent:
		desc, ok := m.toolCalls[e.CallID]
		if !ok {
			desc = e.ToolName
		}
		delete(m.toolCalls, e.CallID)
		m.state.Messages = append(m.state.Messages, models.Message{
			Role:    models.RoleTool,
			Content: services.FormatToolResult(desc, e.Result),
		})
		m.state.StatusPhase = views.PhaseThinking
		m.state.StatusMessage = ""

	case workflow.InterruptedEvent:
		if m.state.Streaming != "" {
			m.state.Messages = append(m.state.Messages, models.Message{Role: models.RoleAssistant, Content: m.state.Streaming})
			m.state.Streaming = ""
		}
		m.state.PendingPermission = nil
		m.state.Messages = append(m.state.Messages, models.Message{Role: models.RoleSystem, Content: "Interrupted."})
		m.state.StatusPhase = views.PhaseReady
		m.state.StatusMessage = "Interrupted"

	case workflow.DoneEvent:
		m.state.Streaming = ""
		m.state.PendingPermission = nil
		clear(m.toolCalls)
		if m.state.StatusPhase != views.PhaseReady && m.state.StatusPhase != views.PhaseError {
			m.state.StatusPhase = views.PhaseDone
			m.state.StatusMessage = "Done"
		}
	}
}

// handleKeyPress handles keyboard input
func (m BubbleTeaModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		if !m.state.Busy {
			return m, tea.Quit
		}
		m.interrupt()
		return m, nil
	}

	if m.state.ShowModelList {
		switch key {
		case "up", "k":
			if m.state.ModelListIndex > 0 {
				m.state.ModelListIndex--
			}
		case "down", "j":
			if m.state.ModelListIndex < len(m.state.ModelList)-1 {
				m.state.ModelListIndex++
			}
		case "enter":
			if m.state.ModelListIndex < len(m.state.ModelList) {
				m.sendCommand(UICommand{
					Type: CommandSwitchModel,
					Args: map[string]string{"model": m.state.ModelList[m.state.ModelListIndex]},
				})
			}
			m.state.ShowModelList = false
		case "esc":
			m.state.ShowModelList = false
		}
		return m, nil
	}

	if p := m.state.PendingPermission; p != nil {
		var decision PermissionDecision
		switch key {
		case "y":
			decision = DecisionAllow
		case "n":
			decision = DecisionDeny
		case "a":
			if !p.AllowAlways {
				return m, nil
			}
			decision = DecisionAllowAlways
		case "esc":
			m.interrupt()
			return m, nil
		default:
			return m, nil
		}
		select {
		case m.permResp <- decision:
		default:
		}
		m.state.PendingPermission = nil
		m.state.StatusPhase = views.PhaseExecuting
		m.state.StatusMessage = ""
		return m, nil
	}

	switch key {
	case "esc":
		if m.state.Busy {
			m.interrupt()
		}
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.state.Viewport, cmd = m.state.Viewport.Update(msg)
		return m, cmd

	case "enter":
		input := strings.TrimSpace(m.state.Input.Value())
		if input == "" {
			return m, nil
		}
		if strings.HasPrefix(input, "/") {
			return m.handleCommand(input)
		}
		if !m.state.CanSubmit {
			return m, nil
		}

		m.appendMessage(models.RoleUser, input)
		select {
		case m.inputResp <- input:
		default:
		}
		m.state.Input.SetValue("")
		m.state.CanSubmit = false
		m.state.Busy = true
		m.state.StatusPhase = views.PhaseThinking
		m.state.StatusMessage = ""
		return m, nil
	}

	var cmd tea.Cmd
	m.state.Input, cmd = m.state.Input.Update(msg)
	return m, cmd
}

// handleCommand handles slash commands
func (m BubbleTeaModel) handleCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	m.state.Input.SetValue("")

	switch parts[0] {
	case "/models":
		m.sendCommand(UICommand{Type: CommandListModels})
	case "/model":
		if len(parts) < 2 {
			m.appendMessage(models.RoleSystem, "Usage: /model <name>")
			break
		}
		m.sendCommand(UICommand{Type: CommandSwitchModel, Args: map[string]string{"model": parts[1]}})
	case "/clear":
		if m.state.Busy {
			m.appendMessage(models.RoleSystem, "Cannot clear while a turn is running.")
			break
		}
		m.state.Messages = nil
		m.state.Usage = models.Usage{}
		m.sendCommand(UICommand{Type: CommandClear})
		m.updateViewport()
	case "/mcp":
		m.sendCommand(UICommand{Type: CommandMCPStatus})
	case "/lsp":
		m.sendCommand(UICommand{Type: CommandLSPStatus})
	case "/quit", "/exit":
		return m, tea.Quit
	case "/help":
		m.appendMessage(models.RoleAssistant, helpText)
	default:
		m.appendMessage(models.RoleSystem, fmt.Sprintf("Unknown command %s. Type /help for a list.", parts[0]))
	}
	return m, nil
}

func (m *BubbleTeaModel) interrupt() {
	m.sendCommand(UICommand{Type: CommandInterrupt})
	m.state.PendingPermission = nil
	m.state.StatusPhase = views.PhaseWaiting
	m.state.StatusMessage = "Interrupting"
}

// sendCommand never blocks the UI; a full queue drops the command.
func (m *BubbleTeaModel) sendCommand(cmd UICommand) {
	select {
	case m.commandChan <- cmd:
	default:
	}
}

func (m *BubbleTeaModel) appendMessage(role, content string) {
	m.state.Messages = append(m.state.Messages, models.Message{Role: role, Content: content})
	m.updateViewport()
}

// updateViewport updates the viewport content
func (m *BubbleTeaModel) updateViewport() {
	content := views.FormatChatContent(m.state.Messages, m.state.Streaming, m.state.Width-4, m.renderer)
	m.state.Viewport.SetContent(content)
	m.state.Viewport.GotoBottom()
}

// listen waits for one value on ch and wraps it as a message. A closed
// channel yields nil, which ends the listener.
func listen[T any](ch <-chan T, wrap func(T) tea.Msg) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return nil
		}
		return wrap(v)
	}
}

func (m BubbleTeaModel) tick() tea.Cmd {
	return tea.Tick(m.tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
