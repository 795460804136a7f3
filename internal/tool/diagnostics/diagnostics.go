// Package diagnostics exposes the language server's diagnostics to the
// model. Each tool starts the server on first use.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Cyclone1070/coda/internal/lsp"
	"github.com/Cyclone1070/coda/internal/tool"
	"go.lsp.dev/protocol"
)

// noServer is returned when no language server could be started.
const noServer = "no language server is available for this workspace"

// maxListed caps how many diagnostics one result lists.
const maxListed = 200

type pathResolver interface {
	Resolve(path string) (abs, rel string, err error)
	Rel(path string) (string, error)
}

type lspManager interface {
	TryAutoStart(ctx context.Context) bool
	Running() bool
	ServerName() string
	AnalyzeFile(ctx context.Context, path string) ([]protocol.Diagnostic, error)
	AnalyzeWorkspace(ctx context.Context, pattern string) (lsp.WorkspaceAnalysis, error)
	GetAllDiagnostics() []lsp.DiagnosticSet
	GetDiagnosticsSummary() lsp.Summary
	GetFilesWithErrors() []string
}

type base struct {
	resolver pathResolver
	manager  lspManager
}

func newBase(resolver pathResolver, manager lspManager) base {
	if resolver == nil {
		panic("resolver is required")
	}
	if manager == nil {
		panic("lsp manager is required")
	}
	return base{resolver: resolver, manager: manager}
}

func (b base) rel(abs string) string {
	if rel, err := b.resolver.Rel(abs); err == nil {
		return rel
	}
	return abs
}

func (b base) render(sets []lsp.DiagnosticSet) string {
	var lines []string
	for _, set := range sets {
		for _, d := range set.Diagnostics {
			if len(lines) == maxListed {
				lines = append(lines, fmt.Sprintf("... output capped at %d diagnostics", maxListed))
				return strings.Join(lines, "\n")
			}
			lines = append(lines, lsp.FormatDiagnostic(b.rel(set.FilePath), d))
		}
	}
	return strings.Join(lines, "\n")
}

// GetDiagnosticsTool analyses one file.
type GetDiagnosticsTool struct {
	base
}

// NewGetDiagnosticsTool creates a GetDiagnosticsTool.
func NewGetDiagnosticsTool(resolver pathResolver, manager lspManager) *GetDiagnosticsTool {
	return &GetDiagnosticsTool{base: newBase(resolver, manager)}
}

func (t *GetDiagnosticsTool) Declaration() tool.Declaration {
	return tool.Declaration{
		Name:        "get_diagnostics",
		Description: "Get compiler and linter diagnostics for a file from the workspace language server. Use after editing to check for errors.",
		Parameters: &tool.Schema{
			Type: tool.TypeObject,
			Properties: map[string]*tool.Schema{
				"path": {Type: tool.TypeString, Description: "File to analyse, relative to the workspace root"},
			},
			Required: []string{"path"},
		},
	}
}

func (t *GetDiagnosticsTool) Category() tool.Category {
	return tool.Safe
}

func (t *GetDiagnosticsTool) Execute(ctx context.Context, args map[string]any) (tool.Result, error) {
	var req struct {
		Path string `json:"path"`
	}
	if err := tool.DecodeArgs(args, &req); err != nil {
		return tool.Failed("%v", err), nil
	}
	if req.Path == "" {
		return tool.Failed("path is required"), nil
	}
	abs, rel, err := t.resolver.Resolve(req.Path)
	if err != nil {
		return tool.Failed("%v", err), nil
	}
	if !t.manager.TryAutoStart(ctx) {
		return tool.Failed(noServer), nil
	}

	diags, err := t.manager.AnalyzeFile(ctx, abs)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return tool.Result{}, err
		}
		return tool.Failed("analyse %s: %v", rel, err), nil
	}
	if len(diags) == 0 {
		res := tool.Succeeded("")
		res.Message = fmt.Sprintf("No diagnostics for %s.", rel)
		res.Display = tool.StringDisplay(res.Message)
		return res, nil
	}

	res := tool.Succeeded(t.render([]lsp.DiagnosticSet{{FilePath: abs, Diagnostics: diags}}))
	res.Message = fmt.Sprintf("%d diagnostic(s) for %s from %s.", len(diags), rel, t.manager.ServerName())
	res.Display = tool.StringDisplay(res.Message)
	return res, nil
}

// AnalyzeWorkspaceTool analyses every file matching a glob.
type AnalyzeWorkspaceTool struct {
	base
}

// NewAnalyzeWorkspaceTool creates an AnalyzeWorkspaceTool.
func NewAnalyzeWorkspaceTool(resolver pathResolver, manager lspManager) *AnalyzeWorkspaceTool {
	return &AnalyzeWorkspaceTool{base: newBase(resolver, manager)}
}

func (t *AnalyzeWorkspaceTool) Declaration() tool.Declaration {
	return tool.Declaration{
		Name:        "analyze_workspace",
		Description: "Open every workspace file matching a glob pattern in the language server and report their diagnostics. Defaults to all files.",
		Parameters: &tool.Schema{
			Type: tool.TypeObject,
			Properties: map[string]*tool.Schema{
				"pattern": {Type: tool.TypeString, Description: "Glob pattern such as **/*.ts (default **/*)"},
			},
		},
	}
}

func (t *AnalyzeWorkspaceTool) Category() tool.Category {
	return tool.Safe
}

func (t *AnalyzeWorkspaceTool) Execute(ctx context.Context, args map[string]any) (tool.Result, error) {
	var req struct {
		Pattern string `json:"pattern"`
	}
	if err := tool.DecodeArgs(args, &req); err != nil {
		return tool.Failed("%v", err), nil
	}
	if req.Pattern == "" {
		req.Pattern = "**/*"
	}

	t.manager.TryAutoStart(ctx)
	analysis, err := t.manager.AnalyzeWorkspace(ctx, req.Pattern)
	switch {
	case errors.Is(err, lsp.ErrNotStarted):
		return tool.Failed(noServer), nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return tool.Result{}, err
	case err != nil:
		return tool.Failed("%v", err), nil
	}

	res := tool.Succeeded(t.render(analysis.Diagnostics))
	res.Message = analysis.Message
	if analysis.Truncated {
		res.Message += " Only the first matches were analysed; narrow the pattern to see the rest."
	}
	res.Display = tool.StringDisplay(analysis.Message)
	return res, nil
}

// SummaryTool reports totals over everything the server has published.
type SummaryTool struct {
	base
}

// NewSummaryTool creates a SummaryTool.
func NewSummaryTool(resolver pathResolver, manager lspManager) *SummaryTool {
	return &SummaryTool{base: newBase(resolver, manager)}
}

func (t *SummaryTool) Declaration() tool.Declaration {
	return tool.Declaration{
		Name:        "diagnostics_summary",
		Description: "Summarise the diagnostics collected so far by severity and list files with errors.",
		Parameters:  &tool.Schema{Type: tool.TypeObject, Properties: map[string]*tool.Schema{}},
	}
}

func (t *SummaryTool) Category() tool.Category {
	return tool.Safe
}

func (t *SummaryTool) Execute(ctx context.Context, _ map[string]any) (tool.Result, error) {
	if !t.manager.TryAutoStart(ctx) {
		return tool.Failed(noServer), nil
	}

	summary := t.manager.GetDiagnosticsSummary()
	var b strings.Builder
	b.WriteString(summary.String())
	if files := t.manager.GetFilesWithErrors(); len(files) > 0 {
		b.WriteString("\nFiles with errors:")
		for _, f := range files {
			b.WriteString("\n  " + t.rel(f))
		}
	}

	res := tool.Succeeded(b.String())
	res.Display = tool.StringDisplay(summary.String())
	return res, nil
}
