package toolmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Cyclone1070/coda/internal/logger"
	"github.com/Cyclone1070/coda/internal/provider"
	"github.com/Cyclone1070/coda/internal/tool"
	"github.com/Cyclone1070/coda/internal/workflow"
)

// errUnparsableArgs is fed back to the model when the arguments are not a
// JSON object, which is almost always a truncated generation.
const errUnparsableArgs = "arguments could not be parsed (possibly truncated) - break the change into smaller pieces"

// namespacePrefixes are prepended to tool names by some models.
var namespacePrefixes = []string{"default_api:", "default_api.", "functions.", "functions:"}

// Pipeline validates, approves and dispatches tool calls, one at a time.
type Pipeline struct {
	registry *Registry
	approver Approver
	mcp      mcpRouter
	approval *ApprovalState
	log      *slog.Logger

	// onAwaitApproval is told when an approval wait starts and ends.
	onAwaitApproval func(waiting bool)
}

// NewPipeline creates a pipeline. A nil approver rejects everything that
// needs approval; mcp may be nil when no servers are configured.
func NewPipeline(registry *Registry, approver Approver, mcp mcpRouter) *Pipeline {
	if registry == nil {
		panic("registry is required")
	}
	return &Pipeline{
		registry: registry,
		approver: approver,
		mcp:      mcp,
		approval: &ApprovalState{},
		log:      logger.WithComponent("toolmanager"),
	}
}

// Approval returns the session approval state.
func (p *Pipeline) Approval() *ApprovalState {
	return p.approval
}

// Declarations returns the registry's declarations.
func (p *Pipeline) Declarations() []tool.Declaration {
	return p.registry.Declarations()
}

// OnAwaitApproval registers an observer for approval waits.
func (p *Pipeline) OnAwaitApproval(fn func(waiting bool)) {
	p.onAwaitApproval = fn
}

// NormalizeName strips namespace prefixes some models add to tool names.
func NormalizeName(name string) string {
	for _, prefix := range namespacePrefixes {
		if trimmed, ok := strings.CutPrefix(name, prefix); ok {
			return trimmed
		}
	}
	return name
}

// Execute runs one call through parsing, validation, approval and dispatch.
// Failures are carried in the result; it never returns an error.
func (p *Pipeline) Execute(ctx context.Context, call provider.ToolCall, events chan<- workflow.Event) tool.Result {
	name := NormalizeName(call.Function.Name)

	args, err := parseArgs(call.Function.Arguments)
	if err != nil {
		p.log.Warn("unparsable tool arguments", "tool", name, "error", err)
		return tool.Result{Success: false, Error: errUnparsableArgs}
	}

	workflow.Emit(ctx, events, workflow.ToolStartEvent{CallID: call.ID, ToolName: name, Args: args})
	res := p.run(ctx, name, args)
	workflow.Emit(ctx, events, workflow.ToolEndEvent{CallID: call.ID, ToolName: name, Result: res})
	return res
}

func (p *Pipeline) run(ctx context.Context, name string, args map[string]any) tool.Result {
	def, registered := p.registry.Lookup(name)
	remote := p.mcp != nil && p.mcp.HasTool(name)

	if !registered && !remote {
		return tool.Failed("tool %q does not exist. Available tools: %s", name, strings.Join(p.registry.Names(), ", "))
	}

	category := tool.ApprovalRequired
	if registered {
		category = def.Category
		if def.Validate != nil {
			if err := def.Validate(args); err != nil {
				return tool.Failed("%v", err)
			}
		}
	}

	if category.RequiresApproval(p.approval.Approved()) {
		preview := ""
		if registered && def.Preview != nil {
			preview = def.Preview(args)
		}
		if !p.approve(ctx, ApprovalRequest{Tool: name, Category: category, Args: args, Preview: preview}) {
			p.log.Info("tool rejected", "tool", name)
			return tool.Rejected(name)
		}
	}

	// Once approved the call runs to completion even if the turn is
	// interrupted.
	execCtx := context.WithoutCancel(ctx)

	if remote {
		res, err := p.mcp.CallTool(execCtx, name, args)
		if err != nil {
			return tool.Failed("%v", err)
		}
		return res
	}
	return p.registry.Execute(execCtx, name, args)
}

func (p *Pipeline) approve(ctx context.Context, req ApprovalRequest) bool {
	if p.approver == nil {
		return false
	}
	if p.onAwaitApproval != nil {
		p.onAwaitApproval(true)
		defer p.onAwaitApproval(false)
	}

	decision, err := p.approver.ApproveTool(ctx, req)
	if err != nil || ctx.Err() != nil {
		return false
	}
	if !decision.Approved {
		return false
	}
	if p.approval.Elevate(req.Category, decision) {
		p.log.Info("approval_required tools trusted for session", "tool", req.Tool)
	}
	return true
}

func parseArgs(raw json.RawMessage) (map[string]any, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("decoding arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
