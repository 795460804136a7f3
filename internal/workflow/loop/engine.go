package loop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Cyclone1070/coda/internal/logger"
	"github.com/Cyclone1070/coda/internal/provider"
	"github.com/Cyclone1070/coda/internal/workflow"
)

// Options configures an Engine.
type Options struct {
	SystemPrompt  string
	MaxIterations int
	Temperature   float64
	MaxTokens     int
}

// Engine drives one conversation: it streams completions, runs the tool
// calls they request, and loops until the model answers in plain text.
type Engine struct {
	factory  ProviderFactory
	pipeline toolPipeline
	decider  Decider
	events   chan<- workflow.Event
	opts     Options
	log      *slog.Logger

	busy        atomic.Bool
	interrupted atomic.Bool

	mu       sync.Mutex
	provider provider.Provider
	history  []provider.Message
	state    State
	cancel   context.CancelFunc
}

// NewEngine creates an engine. decider and events may be nil.
func NewEngine(factory ProviderFactory, pipeline toolPipeline, decider Decider, events chan<- workflow.Event, opts Options) *Engine {
	if factory == nil {
		panic("provider factory is required")
	}
	if pipeline == nil {
		panic("tool pipeline is required")
	}
	if opts.MaxIterations < 1 {
		opts.MaxIterations = 50
	}

	e := &Engine{
		factory:  factory,
		pipeline: pipeline,
		decider:  decider,
		events:   events,
		opts:     opts,
		log:      logger.WithComponent("loop"),
		history:  []provider.Message{{Role: provider.RoleSystem, Content: opts.SystemPrompt}},
	}

	if obs, ok := pipeline.(approvalObservable); ok {
		obs.OnAwaitApproval(func(waiting bool) {
			if waiting {
				e.setState(StateAwaitingApproval)
			} else {
				e.setState(StateExecutingTools)
			}
		})
	}
	return e
}

// Submit runs one turn for input. It returns nil when the turn ends
// normally, is declined, or is interrupted; errors are fatal (missing or
// rejected credentials).
func (e *Engine) Submit(ctx context.Context, input string) error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer e.busy.Store(false)

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.interrupted.Store(false)
	e.cancel = cancel
	e.history = append(e.history, provider.Message{Role: provider.RoleUser, Content: input})
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
		workflow.Emit(ctx, e.events, workflow.DoneEvent{})
	}()

	prov, err := e.resolveProvider(turnCtx)
	if err != nil {
		e.setState(StateIdle)
		return err
	}

	return e.run(ctx, turnCtx, prov)
}

func (e *Engine) run(ctx, turnCtx context.Context, prov provider.Provider) error {
	iterations := 0
	for {
		if e.checkInterrupted(ctx) {
			return nil
		}

		if iterations >= e.opts.MaxIterations {
			e.setState(StateAwaitingIterationDecision)
			if e.decider != nil && e.decider.ContinueAfterIterations(turnCtx, iterations) {
				e.log.Info("continuing past iteration bound", "iterations", iterations)
				iterations = 0
				continue
			}
			if e.cancelled(ctx) {
				return nil
			}
			e.log.Info("iteration bound reached", "iterations", iterations)
			e.setState(StateTurnComplete)
			return nil
		}

		e.setState(StateAwaitingCompletion)
		resp, err := e.complete(ctx, turnCtx, prov)
		if err != nil {
			if e.cancelled(ctx) {
				return nil
			}
			if provider.IsFatal(err) {
				e.setState(StateIdle)
				return fmt.Errorf("%w (re-authenticate: check the API key for %s and try again)", err, prov.Model())
			}

			e.log.Warn("completion failed", "iteration", iterations, "error", err)
			if e.decider == nil {
				e.appendMessage(provider.Message{Role: provider.RoleSystem, Content: fmt.Sprintf("Error: %v", err)})
				iterations++
				continue
			}
			e.setState(StateAwaitingErrorDecision)
			if e.decider.RetryAfterError(turnCtx, err) {
				continue
			}
			if e.cancelled(ctx) {
				return nil
			}
			e.appendMessage(provider.Message{Role: provider.RoleSystem, Content: fmt.Sprintf("The request failed and the user chose not to retry: %v", err)})
			e.setState(StateTurnComplete)
			return nil
		}

		if resp.Usage != nil {
			workflow.Emit(ctx, e.events, workflow.UsageEvent{Usage: *resp.Usage})
		}

		if len(resp.ToolCalls) == 0 {
			e.appendMessage(provider.Message{Role: provider.RoleAssistant, Content: resp.Content, Reasoning: resp.Reasoning})
			workflow.Emit(ctx, e.events, workflow.FinalMessageEvent{Content: resp.Content, Reasoning: resp.Reasoning})
			e.setState(StateTurnComplete)
			return nil
		}

		if resp.Content != "" || resp.Reasoning != "" {
			workflow.Emit(ctx, e.events, workflow.ThinkingEvent{Content: resp.Content, Reasoning: resp.Reasoning})
		}
		e.appendMessage(provider.Message{
			Role:      provider.RoleAssistant,
			Content:   resp.Content,
			Reasoning: resp.Reasoning,
			ToolCalls: resp.ToolCalls,
		})

		e.setState(StateExecutingTools)
		if done := e.runTools(ctx, turnCtx, resp.ToolCalls); done {
			return nil
		}
		iterations++
	}
}

// runTools executes calls in order and reports whether the turn is over.
func (e *Engine) runTools(ctx, turnCtx context.Context, calls []provider.ToolCall) bool {
	for _, call := range calls {
		if e.checkInterrupted(ctx) {
			return true
		}

		res := e.pipeline.Execute(turnCtx, call, e.events)
		e.appendMessage(provider.Message{
			Role:         provider.RoleTool,
			Content:      res.LLMContent(),
			ToolCallID:   call.ID,
			Name:         call.Function.Name,
			UserRejected: res.UserRejected,
		})

		if res.UserRejected {
			if e.checkInterrupted(ctx) {
				return true
			}
			e.log.Info("tool rejected, ending turn", "tool", call.Function.Name)
			e.appendMessage(provider.Message{
				Role: provider.RoleSystem,
				Content: fmt.Sprintf("The user rejected the %s tool call. The remaining tool calls were not run. "+
					"Wait for the user's next instruction.", call.Function.Name),
			})
			e.setState(StateTurnComplete)
			return true
		}
	}
	return false
}

// complete streams one completion over the current history.
func (e *Engine) complete(ctx, turnCtx context.Context, prov provider.Provider) (*provider.Response, error) {
	reqCtx, cancel := context.WithCancel(turnCtx)
	defer cancel()

	req := &provider.Request{
		Messages:    e.History(),
		Tools:       e.pipeline.Declarations(),
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
	}

	stream, err := prov.Stream(reqCtx, req)
	if err != nil {
		return nil, err
	}
	return provider.Drain(stream, func(c *provider.Chunk) {
		if c.Delta != "" {
			workflow.Emit(ctx, e.events, workflow.TextEvent{Text: c.Delta})
		}
	})
}

func (e *Engine) resolveProvider(ctx context.Context) (provider.Provider, error) {
	e.mu.Lock()
	prov := e.provider
	e.mu.Unlock()
	if prov != nil {
		return prov, nil
	}

	prov, err := e.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve provider: %w", err)
	}

	e.mu.Lock()
	e.provider = prov
	e.mu.Unlock()
	return prov, nil
}

// Interrupt stops the running turn. The in-flight request is cancelled and
// a single note is appended no matter how often it is called. It is safe
// from any goroutine and does nothing when no turn is running.
func (e *Engine) Interrupt() {
	e.mu.Lock()
	if e.cancel == nil || !e.interrupted.CompareAndSwap(false, true) {
		e.mu.Unlock()
		return
	}
	e.history = append(e.history, provider.Message{Role: provider.RoleSystem, Content: InterruptNote})
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.log.Info("turn interrupted")
}

// checkInterrupted reports an interruption, moving to the Interrupted state
// and notifying observers the first time it is seen.
func (e *Engine) checkInterrupted(ctx context.Context) bool {
	if !e.interrupted.Load() {
		return false
	}
	if e.State() != StateInterrupted {
		e.setState(StateInterrupted)
		workflow.Emit(ctx, e.events, workflow.InterruptedEvent{})
	}
	return true
}

// cancelled reports whether the turn was interrupted, treating a cancelled
// parent context as an interruption.
func (e *Engine) cancelled(ctx context.Context) bool {
	if e.checkInterrupted(ctx) {
		return true
	}
	if ctx.Err() == nil {
		return false
	}
	e.Interrupt()
	e.checkInterrupted(ctx)
	return true
}

// State returns where the engine is within the current or last turn.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) appendMessage(m provider.Message) {
	e.mu.Lock()
	e.history = append(e.history, m)
	e.mu.Unlock()
}

// History returns a copy of the conversation.
func (e *Engine) History() []provider.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]provider.Message(nil), e.history...)
}

// ClearHistory drops every non-system message.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.history[:0:0]
	for _, m := range e.history {
		if m.Role == provider.RoleSystem {
			kept = append(kept, m)
		}
	}
	e.history = kept
}

// SetSystemPrompt replaces the base system prompt.
func (e *Engine) SetSystemPrompt(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history[0] = provider.Message{Role: provider.RoleSystem, Content: text}
}

// Model returns the active model, or "" before the provider is resolved.
func (e *Engine) Model() string {
	e.mu.Lock()
	prov := e.provider
	e.mu.Unlock()
	if prov == nil {
		return ""
	}
	return prov.Model()
}

// SetModel switches the provider's model.
func (e *Engine) SetModel(ctx context.Context, model string) error {
	prov, err := e.resolveProvider(ctx)
	if err != nil {
		return err
	}
	return prov.SetModel(model)
}
