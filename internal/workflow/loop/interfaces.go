package loop

import (
	"context"

	"github.com/Cyclone1070/coda/internal/provider"
	"github.com/Cyclone1070/coda/internal/tool"
	"github.com/Cyclone1070/coda/internal/workflow"
)

// ProviderFactory resolves the model provider on first use.
type ProviderFactory func(ctx context.Context) (provider.Provider, error)

// toolPipeline runs tool calls and supplies their declarations.
type toolPipeline interface {
	// Declarations returns all tool schemas for the LLM.
	Declarations() []tool.Declaration

	// Execute runs one tool call. Failures are carried in the result.
	Execute(ctx context.Context, call provider.ToolCall, events chan<- workflow.Event) tool.Result
}

// approvalObservable is implemented by pipelines that report approval waits.
type approvalObservable interface {
	OnAwaitApproval(fn func(waiting bool))
}

// Decider answers the engine's continuation questions. A nil Decider stops
// at the iteration bound and falls back to recording errors in history.
type Decider interface {
	// ContinueAfterIterations is asked when a turn hits the iteration bound.
	ContinueAfterIterations(ctx context.Context, iterations int) bool

	// RetryAfterError is asked when a completion fails with a recoverable error.
	RetryAfterError(ctx context.Context, err error) bool
}
