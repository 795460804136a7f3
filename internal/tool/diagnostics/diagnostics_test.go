package diagnostics

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Cyclone1070/coda/internal/lsp"
	"github.com/Cyclone1070/coda/internal/tool"
	"github.com/Cyclone1070/coda/internal/tool/pathutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
)

type fakeManager struct {
	available bool
	starts    int
	diags     map[string][]protocol.Diagnostic
	analysis  lsp.WorkspaceAnalysis
	err       error
	summary   lsp.Summary
	withErrs  []string
}

func (f *fakeManager) TryAutoStart(context.Context) bool {
	f.starts++
	return f.available
}
func (f *fakeManager) Running() bool      { return f.available }
func (f *fakeManager) ServerName() string { return "go" }
func (f *fakeManager) AnalyzeFile(_ context.Context, path string) ([]protocol.Diagnostic, error) {
	return f.diags[path], f.err
}
func (f *fakeManager) AnalyzeWorkspace(_ context.Context, pattern string) (lsp.WorkspaceAnalysis, error) {
	if f.err != nil {
		return lsp.WorkspaceAnalysis{}, f.err
	}
	a := f.analysis
	a.Pattern = pattern
	return a, nil
}
func (f *fakeManager) GetAllDiagnostics() []lsp.DiagnosticSet { return nil }
func (f *fakeManager) GetDiagnosticsSummary() lsp.Summary      { return f.summary }
func (f *fakeManager) GetFilesWithErrors() []string            { return f.withErrs }

func newResolver(t *testing.T) *pathutil.Resolver {
	t.Helper()
	r, err := pathutil.NewResolver(t.TempDir())
	require.NoError(t, err)
	return r
}

func errorAt(line uint32, msg string) protocol.Diagnostic {
	return protocol.Diagnostic{
		Range:    protocol.Range{Start: protocol.Position{Line: line}},
		Severity: protocol.DiagnosticSeverityError,
		Message:  msg,
	}
}

func TestGetDiagnostics(t *testing.T) {
	r := newResolver(t)
	abs := filepath.Join(r.Root(), "main.go")
	mgr := &fakeManager{available: true, diags: map[string][]protocol.Diagnostic{abs: {errorAt(2, "undefined: x")}}}
	tl := NewGetDiagnosticsTool(r, mgr)

	res, err := tl.Execute(context.Background(), map[string]any{"path": "main.go"})

	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "main.go:3:1: error: undefined: x", res.Content)
	assert.Contains(t, res.Message, "1 diagnostic(s) for main.go")
	assert.Equal(t, 1, mgr.starts)
	assert.Equal(t, tool.Safe, tl.Category())
}

func TestGetDiagnostics_Clean(t *testing.T) {
	r := newResolver(t)
	tl := NewGetDiagnosticsTool(r, &fakeManager{available: true})

	res, err := tl.Execute(context.Background(), map[string]any{"path": "main.go"})

	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "No diagnostics for main.go.", res.Message)
}

func TestGetDiagnostics_Failures(t *testing.T) {
	r := newResolver(t)

	res, err := NewGetDiagnosticsTool(r, &fakeManager{}).Execute(context.Background(), map[string]any{"path": "main.go"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, noServer, res.Error)

	res, err = NewGetDiagnosticsTool(r, &fakeManager{available: true}).Execute(context.Background(), map[string]any{"path": "../x.go"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "outside")

	res, err = NewGetDiagnosticsTool(r, &fakeManager{available: true}).Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "path is required", res.Error)
}

func TestAnalyzeWorkspace_NoMatches(t *testing.T) {
	r := newResolver(t)
	mgr := &fakeManager{analysis: lsp.WorkspaceAnalysis{Message: `No files found matching pattern "**/*.ts".`}}
	tl := NewAnalyzeWorkspaceTool(r, mgr)

	res, err := tl.Execute(context.Background(), map[string]any{"pattern": "**/*.ts"})

	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Contains(t, res.Message, "No files found")
}

func TestAnalyzeWorkspace_ListsDiagnostics(t *testing.T) {
	r := newResolver(t)
	mgr := &fakeManager{available: true, analysis: lsp.WorkspaceAnalysis{
		Analyzed: 2,
		Diagnostics: []lsp.DiagnosticSet{
			{FilePath: filepath.Join(r.Root(), "a", "b.go"), Diagnostics: []protocol.Diagnostic{errorAt(0, "boom")}},
		},
		Message: "Analyzed 2 file(s).",
	}}

	res, err := NewAnalyzeWorkspaceTool(r, mgr).Execute(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, "a/b.go:1:1: error: boom", res.Content)
	assert.Equal(t, "Analyzed 2 file(s).", res.Message)
}

func TestAnalyzeWorkspace_NoServer(t *testing.T) {
	r := newResolver(t)
	res, err := NewAnalyzeWorkspaceTool(r, &fakeManager{err: lsp.ErrNotStarted}).Execute(context.Background(), map[string]any{"pattern": "*.go"})

	require.NoError(t, err)
	assert.Equal(t, noServer, res.Error)
}

func TestSummary(t *testing.T) {
	r := newResolver(t)
	mgr := &fakeManager{
		available: true,
		summary:   lsp.Summary{Total: 3, Errors: 2, Warnings: 1, Files: 2},
		withErrs:  []string{filepath.Join(r.Root(), "main.go")},
	}

	res, err := NewSummaryTool(r, mgr).Execute(context.Background(), nil)

	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "3 diagnostic(s) in 2 file(s): 2 error(s), 1 warning(s), 0 info, 0 hint(s)\nFiles with errors:\n  main.go", res.Content)
}
