package ui

import (
	"testing"
	"time"

	"github.com/Cyclone1070/coda/internal/provider"
	"github.com/Cyclone1070/coda/internal/tool"
	"github.com/Cyclone1070/coda/internal/ui/models"
	"github.com/Cyclone1070/coda/internal/ui/views"
	"github.com/Cyclone1070/coda/internal/workflow"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestModel() (BubbleTeaModel, *UIChannels) {
	channels := NewUIChannels()
	return newBubbleTeaModel(channels, &MockMarkdownRenderer{}, mockSpinnerFactory, 10*time.Millisecond), channels
}

func update(t *testing.T, m BubbleTeaModel, msg tea.Msg) (BubbleTeaModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(BubbleTeaModel), cmd
}

func key(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func typeText(t *testing.T, m BubbleTeaModel, text string) BubbleTeaModel {
	t.Helper()
	for _, r := range text {
		m, _ = update(t, m, key(r))
	}
	return m
}

func TestInit_ReturnsCommandsAndSignalsReady(t *testing.T) {
	model, channels := createTestModel()
	assert.NotNil(t, model.Init())

	select {
	case <-channels.ReadyChan:
	default:
		t.Fatal("ready channel not closed")
	}
}

func TestUpdate_KeyEnter_SubmitsInput(t *testing.T) {
	model, channels := createTestModel()
	model.state.Input.SetValue("hello")
	model.state.CanSubmit = true

	m, _ := update(t, model, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, "", m.state.Input.Value())
	assert.False(t, m.state.CanSubmit)
	assert.True(t, m.state.Busy)
	require.Len(t, m.state.Messages, 1)
	assert.Equal(t, models.RoleUser, m.state.Messages[0].Role)
	assert.Equal(t, "hello", m.state.Messages[0].Content)
	assert.Equal(t, "hello", <-channels.InputResp)
}

func TestUpdate_KeyEnter_IgnoredUntilInputRequested(t *testing.T) {
	model, channels := createTestModel()
	model.state.Input.SetValue("hello")

	m, _ := update(t, model, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, "hello", m.state.Input.Value())
	assert.Empty(t, m.state.Messages)
	assert.Empty(t, channels.InputResp)
}

func TestUpdate_InputRequestEnablesSubmit(t *testing.T) {
	model, _ := createTestModel()
	model.state.Busy = true

	m, cmd := update(t, model, inputRequestMsg{Prompt: "?"})
	assert.True(t, m.state.CanSubmit)
	assert.False(t, m.state.Busy)
	assert.NotNil(t, cmd)
}

func TestUpdate_TextInput(t *testing.T) {
	model, _ := createTestModel()
	m := typeText(t, model, "abc")
	assert.Equal(t, "abc", m.state.Input.Value())
}

func TestUpdate_SlashCommands(t *testing.T) {
	tests := []struct {
		input string
		want  UICommand
	}{
		{"/models", UICommand{Type: CommandListModels}},
		{"/model gemini-2.5-flash", UICommand{Type: CommandSwitchModel, Args: map[string]string{"model": "gemini-2.5-flash"}}},
		{"/clear", UICommand{Type: CommandClear}},
		{"/mcp", UICommand{Type: CommandMCPStatus}},
		{"/lsp", UICommand{Type: CommandLSPStatus}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			model, channels := createTestModel()
			model.state.Input.SetValue(tt.input)

			m, _ := update(t, model, tea.KeyMsg{Type: tea.KeyEnter})
			assert.Equal(t, "", m.state.Input.Value())

			select {
			case cmd := <-channels.CommandChan:
				assert.Equal(t, tt.want, cmd)
			default:
				t.Fatal("no command sent")
			}
		})
	}
}

func TestUpdate_SlashClear_RefusedWhileBusy(t *testing.T) {
	model, channels := createTestModel()
	model.state.Busy = true
	model.state.Messages = []models.Message{{Role: models.RoleUser, Content: "hi"}}
	model.state.Input.SetValue("/clear")

	m, _ := update(t, model, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Empty(t, channels.CommandChan)
	assert.Len(t, m.state.Messages, 2)
	assert.Contains(t, m.state.Messages[1].Content, "Cannot clear")
}

func TestUpdate_SlashHelpAndUnknown(t *testing.T) {
	model, _ := createTestModel()

	model.state.Input.SetValue("/help")
	m, _ := update(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	require.Len(t, m.state.Messages, 1)
	assert.Contains(t, m.state.Messages[0].Content, "/models")

	m.state.Input.SetValue("/frobnicate")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Len(t, m.state.Messages, 2)
	assert.Contains(t, m.state.Messages[1].Content, "Unknown command /frobnicate")
}

func TestUpdate_CtrlC(t *testing.T) {
	t.Run("idle quits", func(t *testing.T) {
		model, channels := createTestModel()
		_, cmd := update(t, model, tea.KeyMsg{Type: tea.KeyCtrlC})
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
		assert.Empty(t, channels.CommandChan)
	})

	t.Run("busy interrupts", func(t *testing.T) {
		model, channels := createTestModel()
		model.state.Busy = true
		model.state.PendingPermission = &models.PermissionRequest{Prompt: "Allow?"}

		m, cmd := update(t, model, tea.KeyMsg{Type: tea.KeyCtrlC})
		assert.Nil(t, cmd)
		assert.Nil(t, m.state.PendingPermission)
		assert.Equal(t, CommandInterrupt, (<-channels.CommandChan).Type)
	})
}

func TestUpdate_EscInterruptsBusyTurn(t *testing.T) {
	model, channels := createTestModel()
	model.state.Busy = true

	update(t, model, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, CommandInterrupt, (<-channels.CommandChan).Type)
}

func TestUpdate_PopupNavigation(t *testing.T) {
	model, channels := createTestModel()
	m, _ := update(t, model, modelListReceivedMsg{"a", "b", "c"})
	require.True(t, m.state.ShowModelList)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 2, m.state.ModelListIndex)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 1, m.state.ModelListIndex)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.state.ShowModelList)
	cmd := <-channels.CommandChan
	assert.Equal(t, CommandSwitchModel, cmd.Type)
	assert.Equal(t, "b", cmd.Args["model"])

	m, _ = update(t, m, modelListReceivedMsg{"a"})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.state.ShowModelList)
	assert.Empty(t, channels.CommandChan)
}

func TestUpdate_Permission(t *testing.T) {
	tests := []struct {
		name        string
		key         rune
		allowAlways bool
		want        PermissionDecision
		answered    bool
	}{
		{"yes", 'y', false, DecisionAllow, true},
		{"no", 'n', false, DecisionDeny, true},
		{"always", 'a', true, DecisionAllowAlways, true},
		{"always not offered", 'a', false, "", false},
		{"other key", 'x', true, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, channels := createTestModel()
			m, _ := update(t, model, permRequestMsg{Prompt: "Allow?", AllowAlways: tt.allowAlways})
			require.NotNil(t, m.state.PendingPermission)
			assert.Equal(t, views.PhaseWaiting, m.state.StatusPhase)

			m, _ = update(t, m, key(tt.key))

			if !tt.answered {
				assert.NotNil(t, m.state.PendingPermission)
				assert.Empty(t, channels.PermResp)
				return
			}
			assert.Nil(t, m.state.PendingPermission)
			assert.Equal(t, tt.want, <-channels.PermResp)
		})
	}
}

func TestTick_DotAnimation(t *testing.T) {
	model, _ := createTestModel()
	for range 4 {
		model, _ = update(t, model, tickMsg(time.Now()))
	}
	assert.Equal(t, 0, model.state.DotCount)
}

func TestUpdate_WindowSize(t *testing.T) {
	model, _ := createTestModel()
	m, _ := update(t, model, tea.WindowSizeMsg{Width: 100, Height: 40})
	assert.Equal(t, 100, m.state.Viewport.Width)
	assert.Equal(t, 40-reservedLines, m.state.Viewport.Height)
}

func TestUpdate_StatusMessagesAndModel(t *testing.T) {
	model, _ := createTestModel()

	m, _ := update(t, model, statusUpdateMsg{phase: views.PhaseError, message: "no API key"})
	assert.Equal(t, views.PhaseError, m.state.StatusPhase)
	assert.Equal(t, "no API key", m.state.StatusMessage)

	m, _ = update(t, m, setModelMsg("gemini-2.5-pro"))
	assert.Equal(t, "gemini-2.5-pro", m.state.CurrentModel)

	m, _ = update(t, m, messageReceivedMsg("Switched model"))
	require.Len(t, m.state.Messages, 1)
	assert.Equal(t, models.RoleSystem, m.state.Messages[0].Role)
}

func TestUpdate_EventsBuildTranscript(t *testing.T) {
	model, _ := createTestModel()
	model.state.Busy = true

	events := []workflow.Event{
		workflow.TextEvent{Text: "Let me "},
		workflow.TextEvent{Text: "look."},
		workflow.ThinkingEvent{Content: "Let me look.", Reasoning: "need the file"},
		workflow.UsageEvent{Usage: provider.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
		workflow.ToolStartEvent{CallID: "c1", ToolName: "read_file", Args: map[string]any{"path": "main.go"}},
	}
	m := model
	for _, ev := range events[:2] {
		m, _ = update(t, m, eventMsg{ev})
	}
	assert.Equal(t, "Let me look.", m.state.Streaming)
	assert.Equal(t, views.PhaseThinking, m.state.StatusPhase)

	for _, ev := range events[2:] {
		m, _ = update(t, m, eventMsg{ev})
	}
	assert.Empty(t, m.state.Streaming)
	assert.Equal(t, views.PhaseExecuting, m.state.StatusPhase)
	assert.Equal(t, "read_file main.go", m.state.StatusMessage)

	res := tool.Succeeded("package main")
	res.Display = tool.StringDisplay("Read main.go (1 lines)")
	m, _ = update(t, m, eventMsg{workflow.ToolEndEvent{CallID: "c1", ToolName: "read_file", Result: res}})
	m, _ = update(t, m, eventMsg{workflow.UsageEvent{Usage: provider.Usage{TotalTokens: 5}}})
	m, _ = update(t, m, eventMsg{workflow.FinalMessageEvent{Content: "It is fine."}})
	m, _ = update(t, m, eventMsg{workflow.DoneEvent{}})

	want := []models.Message{
		{Role: models.RoleReasoning, Content: "need the file"},
		{Role: models.RoleAssistant, Content: "Let me look."},
		{Role: models.RoleTool, Content: "✓ read_file main.go\nRead main.go (1 lines)"},
		{Role: models.RoleAssistant, Content: "It is fine."},
	}
	assert.Equal(t, want, m.state.Messages)
	assert.Equal(t, 20, m.state.Usage.TotalTokens)
	assert.Equal(t, views.PhaseDone, m.state.StatusPhase)
	assert.Empty(t, m.toolCalls)
}

func TestUpdate_InterruptedEventKeepsPartialAnswer(t *testing.T) {
	model, _ := createTestModel()
	model.state.PendingPermission = &models.PermissionRequest{Prompt: "Allow?"}

	m, _ := update(t, model, eventMsg{workflow.TextEvent{Text: "half an ans"}})
	m, _ = update(t, m, eventMsg{workflow.InterruptedEvent{}})
	m, _ = update(t, m, eventMsg{workflow.DoneEvent{}})

	assert.Nil(t, m.state.PendingPermission)
	assert.Equal(t, []models.Message{
		{Role: models.RoleAssistant, Content: "half an ans"},
		{Role: models.RoleSystem, Content: "Interrupted."},
	}, m.state.Messages)
	assert.Equal(t, views.PhaseReady, m.state.StatusPhase)
	assert.Equal(t, "Interrupted", m.state.StatusMessage)
}

func TestListen_ClosedChannelEndsListener(t *testing.T) {
	ch := make(chan string)
	close(ch)
	cmd := listen(ch, func(v string) tea.Msg { return messageReceivedMsg(v) })
	assert.Nil(t, cmd())
}
