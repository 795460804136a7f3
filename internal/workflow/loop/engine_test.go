package loop

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Cyclone1070/coda/internal/logger"
	"github.com/Cyclone1070/coda/internal/provider"
	"github.com/Cyclone1070/coda/internal/tool"
	"github.com/Cyclone1070/coda/internal/workflow"
	"github.com/Cyclone1070/coda/internal/workflow/toolmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Reset()
	logger.Init(os.DevNull)
	os.Exit(m.Run())
}

// reply is one scripted completion: either chunks or an error.
type reply struct {
	chunks []*provider.Chunk
	err    error
	// block waits for the request context before failing.
	block bool
}

type mockProvider struct {
	mu       sync.Mutex
	replies  []reply
	requests []*provider.Request
	model    string
}

func (m *mockProvider) Stream(ctx context.Context, req *provider.Request) (provider.Stream, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	var r reply
	if len(m.replies) > 0 {
		r = m.replies[0]
		m.replies = m.replies[1:]
	} else {
		r = text("done")
	}
	m.mu.Unlock()

	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	return &sliceStream{chunks: r.chunks}, nil
}

func (m *mockProvider) Model() string { return m.model }

func (m *mockProvider) SetModel(model string) error {
	m.model = model
	return nil
}

func (m *mockProvider) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type sliceStream struct {
	chunks []*provider.Chunk
}

func (s *sliceStream) Next() (*provider.Chunk, error) {
	if len(s.chunks) == 0 {
		return nil, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *sliceStream) Close() error { return nil }

func text(content string) reply {
	return reply{chunks: []*provider.Chunk{
		{Delta: content},
		{FinishReason: provider.FinishReasonUsage, Usage: &provider.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
	}}
}

func toolCalls(calls ...provider.ToolCall) reply {
	return reply{chunks: []*provider.Chunk{{ToolCalls: calls, FinishReason: provider.FinishReasonToolCalls}}}
}

func tc(id, name, args string) provider.ToolCall {
	return provider.ToolCall{ID: id, Function: provider.FunctionCall{Name: name, Arguments: json.RawMessage(args)}}
}

type mockTool struct {
	name     string
	category tool.Category
	runs     int
}

func (m *mockTool) Declaration() tool.Declaration { return tool.Declaration{Name: m.name} }
func (m *mockTool) Category() tool.Category       { return m.category }
func (m *mockTool) Execute(ctx context.Context, args map[string]any) (tool.Result, error) {
	m.runs++
	return tool.Succeeded(m.name + " output"), nil
}

type mockDecider struct {
	continues []bool
	retries   []bool

	continueCalls []int
	retryErrs     []error
}

func (m *mockDecider) ContinueAfterIterations(ctx context.Context, n int) bool {
	m.continueCalls = append(m.continueCalls, n)
	if len(m.continues) == 0 {
		return false
	}
	v := m.continues[0]
	m.continues = m.continues[1:]
	return v
}

func (m *mockDecider) RetryAfterError(ctx context.Context, err error) bool {
	m.retryErrs = append(m.retryErrs, err)
	if len(m.retries) == 0 {
		return false
	}
	v := m.retries[0]
	m.retries = m.retries[1:]
	return v
}

type mockApprover struct {
	approve bool
	asked   []string
}

func (m *mockApprover) ApproveTool(ctx context.Context, req toolmanager.ApprovalRequest) (toolmanager.ApprovalDecision, error) {
	m.asked = append(m.asked, req.Tool)
	return toolmanager.ApprovalDecision{Approved: m.approve}, nil
}

func factoryFor(p provider.Provider) ProviderFactory {
	return func(ctx context.Context) (provider.Provider, error) { return p, nil }
}

func drainEvents(events chan workflow.Event) []workflow.Event {
	var out []workflow.Event
	for {
		select {
		case ev := <-events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func countFinal(events []workflow.Event) int {
	n := 0
	for _, ev := range events {
		if _, ok := ev.(workflow.FinalMessageEvent); ok {
			n++
		}
	}
	return n
}

// Scenario A: a safe tool call runs without approval and the turn ends with
// a final message.
func TestSubmit_SafeToolThenAnswer(t *testing.T) {
	listFiles := &mockTool{name: "list_files", category: tool.Safe}
	approver := &mockApprover{}
	prov := &mockProvider{replies: []reply{
		toolCalls(tc("c1", "list_files", `{"directory":"."}`)),
		text("There are two files."),
	}}
	events := make(chan workflow.Event, 64)
	pipeline := toolmanager.NewPipeline(toolmanager.NewRegistry(listFiles), approver, nil)
	e := NewEngine(factoryFor(prov), pipeline, nil, events, Options{SystemPrompt: "base", MaxIterations: 10})

	require.NoError(t, e.Submit(context.Background(), "list files"))

	history := e.History()
	require.Len(t, history, 5)
	assert.Equal(t, provider.RoleSystem, history[0].Role)
	assert.Equal(t, provider.RoleUser, history[1].Role)
	assert.Equal(t, provider.RoleAssistant, history[2].Role)
	require.Len(t, history[2].ToolCalls, 1)
	assert.Equal(t, provider.RoleTool, history[3].Role)
	assert.Equal(t, "c1", history[3].ToolCallID)
	assert.Equal(t, "list_files output", history[3].Content)
	assert.Equal(t, provider.RoleAssistant, history[4].Role)
	assert.Equal(t, "There are two files.", history[4].Content)

	assert.Equal(t, 1, listFiles.runs)
	assert.Empty(t, approver.asked)
	assert.Equal(t, StateTurnComplete, e.State())

	got := drainEvents(events)
	assert.Equal(t, 1, countFinal(got))
	assert.IsType(t, workflow.DoneEvent{}, got[len(got)-1])
	assert.Len(t, prov.requests[0].Tools, 1)
}

// Scenario B: rejecting a dangerous call halts the batch with a note and no
// final message.
func TestSubmit_RejectionHaltsBatch(t *testing.T) {
	shell := &mockTool{name: "execute_command", category: tool.Dangerous}
	listFiles := &mockTool{name: "list_files", category: tool.Safe}
	prov := &mockProvider{replies: []reply{
		toolCalls(tc("c1", "execute_command", `{"command":"rm -rf tmp"}`), tc("c2", "list_files", `{}`)),
	}}
	events := make(chan workflow.Event, 64)
	pipeline := toolmanager.NewPipeline(toolmanager.NewRegistry(shell, listFiles), &mockApprover{approve: false}, nil)
	e := NewEngine(factoryFor(prov), pipeline, nil, events, Options{MaxIterations: 10})

	require.NoError(t, e.Submit(context.Background(), "clean up"))

	history := e.History()
	require.Len(t, history, 5)
	toolMsg := history[3]
	assert.Equal(t, provider.RoleTool, toolMsg.Role)
	assert.True(t, toolMsg.UserRejected)
	note := history[4]
	assert.Equal(t, provider.RoleSystem, note.Role)
	assert.Contains(t, note.Content, "execute_command")

	assert.Equal(t, 0, shell.runs)
	assert.Equal(t, 0, listFiles.runs, "remaining calls are skipped")
	assert.Equal(t, 1, prov.requestCount(), "no further completion after a rejection")
	assert.Equal(t, 0, countFinal(drainEvents(events)))
}

func TestSubmit_IterationBoundAndReset(t *testing.T) {
	looping := &mockTool{name: "todo_read", category: tool.Safe}
	var replies []reply
	for i := 0; i < 10; i++ {
		replies = append(replies, toolCalls(tc("c", "todo_read", `{}`)))
	}
	prov := &mockProvider{replies: replies}
	decider := &mockDecider{continues: []bool{true, false}}
	pipeline := toolmanager.NewPipeline(toolmanager.NewRegistry(looping), nil, nil)
	e := NewEngine(factoryFor(prov), pipeline, decider, nil, Options{MaxIterations: 2})

	require.NoError(t, e.Submit(context.Background(), "loop"))

	assert.Equal(t, []int{2, 2}, decider.continueCalls, "the counter resets after continuing")
	assert.Equal(t, 4, prov.requestCount())
	assert.Equal(t, StateTurnComplete, e.State())
}

func TestSubmit_IterationBoundWithoutDecider(t *testing.T) {
	looping := &mockTool{name: "todo_read", category: tool.Safe}
	prov := &mockProvider{replies: []reply{
		toolCalls(tc("c", "todo_read", `{}`)),
		toolCalls(tc("c", "todo_read", `{}`)),
		toolCalls(tc("c", "todo_read", `{}`)),
	}}
	events := make(chan workflow.Event, 64)
	pipeline := toolmanager.NewPipeline(toolmanager.NewRegistry(looping), nil, nil)
	e := NewEngine(factoryFor(prov), pipeline, nil, events, Options{MaxIterations: 3})

	require.NoError(t, e.Submit(context.Background(), "loop"))

	assert.Equal(t, 3, prov.requestCount())
	assert.Equal(t, 0, countFinal(drainEvents(events)))
}

func TestInterrupt_Idempotent(t *testing.T) {
	prov := &mockProvider{replies: []reply{{block: true}}}
	events := make(chan workflow.Event, 64)
	pipeline := toolmanager.NewPipeline(toolmanager.NewRegistry(), nil, nil)
	e := NewEngine(factoryFor(prov), pipeline, nil, events, Options{MaxIterations: 5})

	done := make(chan error, 1)
	go func() { done <- e.Submit(context.Background(), "long task") }()

	require.Eventually(t, func() bool { return prov.requestCount() == 1 }, time.Second, 5*time.Millisecond)
	e.Interrupt()
	e.Interrupt()

	select {
	case err := <-done:
		assert.NoError(t, err, "interruption is absorbed")
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not return after interrupt")
	}

	notes := 0
	for _, m := range e.History() {
		if m.Content == InterruptNote {
			notes++
		}
	}
	assert.Equal(t, 1, notes)
	assert.Equal(t, StateInterrupted, e.State())

	var interrupted int
	for _, ev := range drainEvents(events) {
		if _, ok := ev.(workflow.InterruptedEvent); ok {
			interrupted++
		}
	}
	assert.Equal(t, 1, interrupted)

	// Interrupting an idle engine changes nothing.
	before := len(e.History())
	e.Interrupt()
	assert.Len(t, e.History(), before)
}

func TestInterrupt_NextTurnStartsClean(t *testing.T) {
	prov := &mockProvider{replies: []reply{{block: true}, text("fresh answer")}}
	pipeline := toolmanager.NewPipeline(toolmanager.NewRegistry(), nil, nil)
	e := NewEngine(factoryFor(prov), pipeline, nil, nil, Options{MaxIterations: 5})

	done := make(chan error, 1)
	go func() { done <- e.Submit(context.Background(), "first") }()
	require.Eventually(t, func() bool { return prov.requestCount() == 1 }, time.Second, 5*time.Millisecond)
	e.Interrupt()
	require.NoError(t, <-done)

	require.NoError(t, e.Submit(context.Background(), "second"))
	history := e.History()
	assert.Equal(t, "fresh answer", history[len(history)-1].Content)
	assert.Equal(t, StateTurnComplete, e.State())
}

func TestSubmit_AuthErrorIsFatal(t *testing.T) {
	authErr := &provider.ProviderError{Code: provider.ErrorCodeAuth, Message: "invalid key"}
	prov := &mockProvider{replies: []reply{{err: authErr}}}
	decider := &mockDecider{retries: []bool{true}}
	pipeline := toolmanager.NewPipeline(toolmanager.NewRegistry(), nil, nil)
	e := NewEngine(factoryFor(prov), pipeline, decider, nil, Options{MaxIterations: 5})

	err := e.Submit(context.Background(), "hi")

	require.Error(t, err)
	assert.ErrorIs(t, err, authErr)
	assert.Contains(t, err.Error(), "re-authenticate")
	assert.Empty(t, decider.retryErrs, "fatal errors are never offered for retry")
}

func TestSubmit_MissingCredentialsNotCached(t *testing.T) {
	attempts := 0
	prov := &mockProvider{}
	factory := func(ctx context.Context) (provider.Provider, error) {
		attempts++
		if attempts == 1 {
			return nil, provider.ErrMissingCredentials
		}
		return prov, nil
	}
	pipeline := toolmanager.NewPipeline(toolmanager.NewRegistry(), nil, nil)
	e := NewEngine(factory, pipeline, nil, nil, Options{MaxIterations: 5})

	err := e.Submit(context.Background(), "hi")
	assert.ErrorIs(t, err, provider.ErrMissingCredentials)
	assert.Equal(t, "", e.Model())

	require.NoError(t, e.Submit(context.Background(), "hi again"))
	assert.Equal(t, 2, attempts)
}

func TestSubmit_RetryRepeatsIteration(t *testing.T) {
	rateLimited := &provider.ProviderError{Code: provider.ErrorCodeRateLimit, Message: "slow down", Retryable: true}
	prov := &mockProvider{replies: []reply{{err: rateLimited}, text("recovered")}}
	decider := &mockDecider{retries: []bool{true}}
	pipeline := toolmanager.NewPipeline(toolmanager.NewRegistry(), nil, nil)
	e := NewEngine(factoryFor(prov), pipeline, decider, nil, Options{MaxIterations: 1})

	require.NoError(t, e.Submit(context.Background(), "hi"))

	require.Len(t, decider.retryErrs, 1)
	assert.ErrorIs(t, decider.retryErrs[0], rateLimited)
	history := e.History()
	require.Len(t, history, 3, "a retried failure leaves no trace in history")
	assert.Equal(t, "recovered", history[2].Content)
	assert.Empty(t, decider.continueCalls, "retries do not count as iterations")
}

func TestSubmit_DeclinedRetryEndsTurn(t *testing.T) {
	prov := &mockProvider{replies: []reply{{err: &provider.ProviderError{Code: provider.ErrorCodeUnavailable, Message: "503"}}}}
	events := make(chan workflow.Event, 16)
	pipeline := toolmanager.NewPipeline(toolmanager.NewRegistry(), nil, nil)
	e := NewEngine(factoryFor(prov), pipeline, &mockDecider{}, events, Options{MaxIterations: 5})

	require.NoError(t, e.Submit(context.Background(), "hi"))

	history := e.History()
	last := history[len(history)-1]
	assert.Equal(t, provider.RoleSystem, last.Role)
	assert.Contains(t, last.Content, "503")
	assert.Equal(t, 1, prov.requestCount())
	assert.Equal(t, 0, countFinal(drainEvents(events)))
}

// blockingDecider waits for the turn to be cancelled and then declines, the
// way the terminal prompt behaves when the user presses Ctrl+C.
type blockingDecider struct {
	waiting chan struct{}
}

func newBlockingDecider() *blockingDecider {
	return &blockingDecider{waiting: make(chan struct{}, 1)}
}

func (b *blockingDecider) wait(ctx context.Context) bool {
	b.waiting <- struct{}{}
	<-ctx.Done()
	return false
}

func (b *blockingDecider) ContinueAfterIterations(ctx context.Context, n int) bool {
	return b.wait(ctx)
}

func (b *blockingDecider) RetryAfterError(ctx context.Context, err error) bool {
	return b.wait(ctx)
}

func assertInterruptedCleanly(t *testing.T, e *Engine, events chan workflow.Event) {
	t.Helper()
	var notes []string
	for _, m := range e.History()[1:] {
		if m.Role == provider.RoleSystem {
			notes = append(notes, m.Content)
		}
	}
	assert.Equal(t, []string{InterruptNote}, notes, "only the interruption is recorded")
	assert.Equal(t, StateInterrupted, e.State())

	var interrupted int
	for _, ev := range drainEvents(events) {
		if _, ok := ev.(workflow.InterruptedEvent); ok {
			interrupted++
		}
	}
	assert.Equal(t, 1, interrupted)
}

func TestInterrupt_WhileAwaitingRetryDecision(t *testing.T) {
	prov := &mockProvider{replies: []reply{{err: &provider.ProviderError{Code: provider.ErrorCodeUnavailable, Message: "503"}}}}
	decider := newBlockingDecider()
	events := make(chan workflow.Event, 64)
	pipeline := toolmanager.NewPipeline(toolmanager.NewRegistry(), nil, nil)
	e := NewEngine(factoryFor(prov), pipeline, decider, events, Options{SystemPrompt: "base", MaxIterations: 5})

	done := make(chan error, 1)
	go func() { done <- e.Submit(context.Background(), "hi") }()

	select {
	case <-decider.waiting:
	case <-time.After(2 * time.Second):
		t.Fatal("retry decision was never requested")
	}
	assert.Equal(t, StateAwaitingErrorDecision, e.State())
	e.Interrupt()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not return after interrupt")
	}
	assertInterruptedCleanly(t, e, events)
	assert.Equal(t, 1, prov.requestCount())
}

func TestInterrupt_WhileAwaitingIterationDecision(t *testing.T) {
	looping := &mockTool{name: "todo_read", category: tool.Safe}
	prov := &mockProvider{replies: []reply{toolCalls(tc("c1", "todo_read", `{}`))}}
	decider := newBlockingDecider()
	events := make(chan workflow.Event, 64)
	pipeline := toolmanager.NewPipeline(toolmanager.NewRegistry(looping), nil, nil)
	e := NewEngine(factoryFor(prov), pipeline, decider, events, Options{SystemPrompt: "base", MaxIterations: 1})

	done := make(chan error, 1)
	go func() { done <- e.Submit(context.Background(), "loop") }()

	select {
	case <-decider.waiting:
	case <-time.After(2 * time.Second):
		t.Fatal("iteration decision was never requested")
	}
	assert.Equal(t, StateAwaitingIterationDecision, e.State())
	e.Interrupt()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not return after interrupt")
	}
	assertInterruptedCleanly(t, e, events)
	assert.Equal(t, 1, looping.runs)
}

func TestSubmit_ParentCancelledWhileAwaitingRetryDecision(t *testing.T) {
	prov := &mockProvider{replies: []reply{{err: &provider.ProviderError{Code: provider.ErrorCodeNetwork, Message: "reset"}}}}
	decider := newBlockingDecider()
	events := make(chan workflow.Event, 64)
	pipeline := toolmanager.NewPipeline(toolmanager.NewRegistry(), nil, nil)
	e := NewEngine(factoryFor(prov), pipeline, decider, events, Options{SystemPrompt: "base", MaxIterations: 5})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Submit(ctx, "hi") }()

	<-decider.waiting
	cancel()

	require.NoError(t, <-done)
	for _, m := range e.History() {
		assert.NotContains(t, m.Content, "chose not to retry")
	}
	assert.Equal(t, StateInterrupted, e.State())
}

func TestSubmit_ErrorWithoutDeciderIsRecorded(t *testing.T) {
	prov := &mockProvider{replies: []reply{{err: &provider.ProviderError{Code: provider.ErrorCodeNetwork, Message: "reset"}}, text("ok")}}
	pipeline := toolmanager.NewPipeline(toolmanager.NewRegistry(), nil, nil)
	e := NewEngine(factoryFor(prov), pipeline, nil, nil, Options{MaxIterations: 5})

	require.NoError(t, e.Submit(context.Background(), "hi"))

	history := e.History()
	require.Len(t, history, 4)
	assert.Equal(t, provider.RoleSystem, history[2].Role)
	assert.Contains(t, history[2].Content, "reset")
	assert.Equal(t, "ok", history[3].Content)
}

func TestSubmit_UsageAndStreamingEvents(t *testing.T) {
	prov := &mockProvider{replies: []reply{text("hello")}}
	events := make(chan workflow.Event, 16)
	pipeline := toolmanager.NewPipeline(toolmanager.NewRegistry(), nil, nil)
	e := NewEngine(factoryFor(prov), pipeline, nil, events, Options{MaxIterations: 5, Temperature: 0.3, MaxTokens: 99})

	require.NoError(t, e.Submit(context.Background(), "hi"))

	got := drainEvents(events)
	require.Len(t, got, 4)
	assert.Equal(t, workflow.TextEvent{Text: "hello"}, got[0])
	assert.Equal(t, workflow.UsageEvent{Usage: provider.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}, got[1])
	assert.Equal(t, workflow.FinalMessageEvent{Content: "hello"}, got[2])
	assert.IsType(t, workflow.DoneEvent{}, got[3])

	assert.Equal(t, 0.3, prov.requests[0].Temperature)
	assert.Equal(t, 99, prov.requests[0].MaxTokens)
}

func TestSubmit_Busy(t *testing.T) {
	prov := &mockProvider{replies: []reply{{block: true}}}
	pipeline := toolmanager.NewPipeline(toolmanager.NewRegistry(), nil, nil)
	e := NewEngine(factoryFor(prov), pipeline, nil, nil, Options{MaxIterations: 5})

	done := make(chan error, 1)
	go func() { done <- e.Submit(context.Background(), "first") }()
	require.Eventually(t, func() bool { return prov.requestCount() == 1 }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, e.Submit(context.Background(), "second"), ErrBusy)

	e.Interrupt()
	require.NoError(t, <-done)
}

func TestSubmit_ParentContextCancelled(t *testing.T) {
	prov := &mockProvider{replies: []reply{{block: true}}}
	pipeline := toolmanager.NewPipeline(toolmanager.NewRegistry(), nil, nil)
	e := NewEngine(factoryFor(prov), pipeline, nil, nil, Options{MaxIterations: 5})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Submit(ctx, "hi") }()
	require.Eventually(t, func() bool { return prov.requestCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	require.NoError(t, <-done)
	history := e.History()
	assert.Equal(t, InterruptNote, history[len(history)-1].Content)
}

func TestHistoryManagement(t *testing.T) {
	prov := &mockProvider{replies: []reply{text("a1")}}
	pipeline := toolmanager.NewPipeline(toolmanager.NewRegistry(), nil, nil)
	e := NewEngine(factoryFor(prov), pipeline, nil, nil, Options{SystemPrompt: "v1", MaxIterations: 5})

	require.NoError(t, e.Submit(context.Background(), "q1"))
	require.Len(t, e.History(), 3)

	e.SetSystemPrompt("v2")
	assert.Equal(t, "v2", e.History()[0].Content)

	e.ClearHistory()
	history := e.History()
	require.Len(t, history, 1)
	assert.Equal(t, provider.Message{Role: provider.RoleSystem, Content: "v2"}, history[0])
}

func TestModelPassthrough(t *testing.T) {
	prov := &mockProvider{model: "gemini-2.5-flash"}
	pipeline := toolmanager.NewPipeline(toolmanager.NewRegistry(), nil, nil)
	e := NewEngine(factoryFor(prov), pipeline, nil, nil, Options{})

	require.NoError(t, e.SetModel(context.Background(), "gemini-2.5-pro"))
	assert.Equal(t, "gemini-2.5-pro", e.Model())
}

func TestNewEngine_RequiresDependencies(t *testing.T) {
	pipeline := toolmanager.NewPipeline(toolmanager.NewRegistry(), nil, nil)
	assert.Panics(t, func() { NewEngine(nil, pipeline, nil, nil, Options{}) })
	assert.Panics(t, func() { NewEngine(factoryFor(&mockProvider{}), nil, nil, nil, Options{}) })
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_approval", StateAwaitingApproval.String())
	assert.Equal(t, "state(99)", State(99).String())
}
