package main

import (
	"fmt"
	"time"

	"github.com/Cyclone1070/coda/internal/config"
	"github.com/Cyclone1070/coda/internal/logger"
	"github.com/Cyclone1070/coda/internal/lsp"
	"github.com/Cyclone1070/coda/internal/tool/diagnostics"
	"github.com/Cyclone1070/coda/internal/tool/directory"
	"github.com/Cyclone1070/coda/internal/tool/file"
	"github.com/Cyclone1070/coda/internal/tool/ignore"
	"github.com/Cyclone1070/coda/internal/tool/pathutil"
	"github.com/Cyclone1070/coda/internal/tool/search"
	"github.com/Cyclone1070/coda/internal/tool/shell"
	"github.com/Cyclone1070/coda/internal/tool/todo"
	"github.com/Cyclone1070/coda/internal/workflow/toolmanager"
)

// workspace is the shared state the built-in tools are constructed over.
type workspace struct {
	resolver *pathutil.Resolver
	ignore   *ignore.Matcher
	lsp      *lsp.Manager
}

func openWorkspace(cfg *config.Config, root string, lspOpts lsp.Options) (*workspace, error) {
	resolver, err := pathutil.NewResolver(root)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize workspace root: %w", err)
	}

	matcher, err := ignore.Load(resolver.Root())
	if err != nil {
		logger.Get().Warn("failed to load .gitignore, continuing without it", "error", err)
		matcher = ignore.New(nil)
	}

	ws := &workspace{resolver: resolver, ignore: matcher}
	if cfg.LSP.Enabled {
		lspOpts.SettleDelay = time.Duration(cfg.LSP.SettleDelayMs) * time.Millisecond
		lspOpts.MaxScanDepth = cfg.LSP.MaxScanDepth
		lspOpts.MaxScanFiles = cfg.LSP.MaxScanFiles
		ws.lsp = lsp.NewManager(resolver.Root(), matcher, lspOpts)
	}
	return ws, nil
}

// createTools instantiates every built-in tool. The diagnostics tools are
// only present when the language server manager is enabled.
func createTools(cfg *config.Config, ws *workspace) []toolmanager.Tool {
	tracker := file.NewReadTracker()
	todoStore := todo.NewStore()

	tools := []toolmanager.Tool{
		file.NewReadFileTool(ws.resolver, tracker, cfg),
		file.NewWriteFileTool(ws.resolver, tracker, cfg),
		file.NewEditFileTool(ws.resolver, tracker, cfg),
		directory.NewListFilesTool(ws.resolver, ws.ignore, cfg),
		directory.NewFindFilesTool(ws.resolver, ws.ignore, cfg),
		search.NewSearchContentTool(ws.resolver, ws.ignore, cfg),
		shell.NewShellTool(ws.resolver, cfg),
		todo.NewReadTodosTool(todoStore),
		todo.NewWriteTodosTool(todoStore),
	}
	if ws.lsp != nil {
		tools = append(tools,
			diagnostics.NewGetDiagnosticsTool(ws.resolver, ws.lsp),
			diagnostics.NewAnalyzeWorkspaceTool(ws.resolver, ws.lsp),
			diagnostics.NewSummaryTool(ws.resolver, ws.lsp),
		)
	}
	return tools
}
