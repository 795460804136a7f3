package toolmanager

import (
	"context"

	"github.com/Cyclone1070/coda/internal/tool"
)

// Tool is implemented by built-in tools.
type Tool interface {
	Declaration() tool.Declaration
	Category() tool.Category
	Execute(ctx context.Context, args map[string]any) (tool.Result, error)
}

// validator is implemented by tools with invariants checked before approval.
type validator interface {
	Validate(args map[string]any) error
}

// previewer is implemented by tools that can describe their effect to the
// approval prompt.
type previewer interface {
	Preview(args map[string]any) string
}

// Approver is the decision point for tool invocations that need sign-off.
type Approver interface {
	ApproveTool(ctx context.Context, req ApprovalRequest) (ApprovalDecision, error)
}

// mcpRouter dispatches calls to external tool servers.
type mcpRouter interface {
	HasTool(prefixedName string) bool
	CallTool(ctx context.Context, prefixedName string, args map[string]any) (tool.Result, error)
}
