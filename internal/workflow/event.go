package workflow

import (
	"context"

	"github.com/Cyclone1070/coda/internal/provider"
	"github.com/Cyclone1070/coda/internal/tool"
)

// Event is the interface for all workflow events.
// UI handles events via type switch.
type Event interface {
	isEvent()
}

// TextEvent carries a streamed content delta.
type TextEvent struct {
	Text string
}

func (TextEvent) isEvent() {}

// ThinkingEvent is emitted when the model answers with tool calls, carrying
// whatever text or reasoning came with them.
type ThinkingEvent struct {
	Content   string
	Reasoning string
}

func (ThinkingEvent) isEvent() {}

// FinalMessageEvent is emitted once when a turn ends with a plain answer.
type FinalMessageEvent struct {
	Content   string
	Reasoning string
}

func (FinalMessageEvent) isEvent() {}

// UsageEvent reports token usage for one completion.
type UsageEvent struct {
	Usage provider.Usage
}

func (UsageEvent) isEvent() {}

// ToolStartEvent is emitted when a tool execution begins.
type ToolStartEvent struct {
	CallID   string
	ToolName string
	Args     map[string]any
}

func (ToolStartEvent) isEvent() {}

// ToolEndEvent is emitted when a tool execution completes.
type ToolEndEvent struct {
	CallID   string
	ToolName string
	Result   tool.Result
}

func (ToolEndEvent) isEvent() {}

// InterruptedEvent is emitted when the user interrupts a turn.
type InterruptedEvent struct{}

func (InterruptedEvent) isEvent() {}

// DoneEvent is emitted when a turn completes, however it ended.
type DoneEvent struct{}

func (DoneEvent) isEvent() {}

// Emit sends ev unless events is nil. It gives up when ctx is done so a
// stalled reader cannot wedge the caller.
func Emit(ctx context.Context, events chan<- Event, ev Event) {
	if events == nil {
		return
	}
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}
