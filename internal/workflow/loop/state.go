package loop

import "fmt"

// State is where the engine is within a turn.
type State int

const (
	StateIdle State = iota
	StateAwaitingCompletion
	StateExecutingTools
	StateAwaitingApproval
	StateAwaitingErrorDecision
	StateAwaitingIterationDecision
	StateTurnComplete
	StateInterrupted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCompletion:
		return "awaiting_completion"
	case StateExecutingTools:
		return "executing_tools"
	case StateAwaitingApproval:
		return "awaiting_approval"
	case StateAwaitingErrorDecision:
		return "awaiting_error_decision"
	case StateAwaitingIterationDecision:
		return "awaiting_iteration_decision"
	case StateTurnComplete:
		return "turn_complete"
	case StateInterrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
