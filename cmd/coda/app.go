package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Cyclone1070/coda/internal/config"
	"github.com/Cyclone1070/coda/internal/logger"
	"github.com/Cyclone1070/coda/internal/lsp"
	"github.com/Cyclone1070/coda/internal/mcp"
	"github.com/Cyclone1070/coda/internal/tool/mcptool"
	"github.com/Cyclone1070/coda/internal/ui"
	"github.com/Cyclone1070/coda/internal/ui/views"
	"github.com/Cyclone1070/coda/internal/workflow"
	"github.com/Cyclone1070/coda/internal/workflow/loop"
	"github.com/Cyclone1070/coda/internal/workflow/toolmanager"
	"github.com/google/uuid"
)

// shutdownTimeout bounds server shutdown after the UI exits.
const shutdownTimeout = 5 * time.Second

// appUI is everything the application needs from the front-end.
type appUI interface {
	ui.UserInterface
	toolmanager.Approver
	loop.Decider
	Events() chan<- workflow.Event
}

// Dependencies holds the components required to run the application.
type Dependencies struct {
	Config          *config.Config
	UI              appUI
	ProviderFactory loop.ProviderFactory
	WorkspaceRoot   string
	MCPServers      []config.MCPServer

	// MCPDialer and LSPOptions override how servers are reached; zero
	// values use the real transports.
	MCPDialer  mcp.Dialer
	LSPOptions lsp.Options
}

// app is one running session.
type app struct {
	cfg       *config.Config
	ui        appUI
	providers loop.ProviderFactory
	engine    *loop.Engine
	pipeline  *toolmanager.Pipeline
	registry  *toolmanager.Registry
	mcp       *mcp.Manager
	bridge    *mcptool.Bridge
	servers   []config.MCPServer
	ws        *workspace
	log       *slog.Logger
}

func newApp(deps Dependencies) (*app, error) {
	cfg := deps.Config
	ws, err := openWorkspace(cfg, deps.WorkspaceRoot, deps.LSPOptions)
	if err != nil {
		return nil, err
	}

	registry := toolmanager.NewRegistry(createTools(cfg, ws)...)
	mcpManager := mcp.NewManager(deps.MCPDialer, mcp.Options{
		StartupTimeout: time.Duration(cfg.MCP.StartupTimeoutMs) * time.Millisecond,
		CallTimeout:    time.Duration(cfg.MCP.CallTimeoutMs) * time.Millisecond,
	})
	pipeline := toolmanager.NewPipeline(registry, deps.UI, mcpManager)
	providers := memoize(deps.ProviderFactory)

	engine := loop.NewEngine(providers, pipeline, deps.UI, deps.UI.Events(), loop.Options{
		SystemPrompt:  systemPrompt(ws.resolver.Root(), registry.Names()),
		MaxIterations: cfg.Orchestrator.MaxIterations,
		Temperature:   cfg.Orchestrator.Temperature,
		MaxTokens:     cfg.Orchestrator.MaxOutputTokens,
	})

	a := &app{
		cfg:       cfg,
		ui:        deps.UI,
		providers: providers,
		engine:    engine,
		pipeline:  pipeline,
		registry:  registry,
		mcp:       mcpManager,
		bridge:    mcptool.NewBridge(registry, mcpManager, deps.MCPServers),
		servers:   deps.MCPServers,
		ws:        ws,
		log:       logger.WithComponent("app").With("session", uuid.NewString()),
	}
	mcpManager.OnRestart(func(name string) {
		names := a.bridge.Sync()
		a.log.Info("mcp tools resynced after restart", "server", name, "count", len(names))
	})
	return a, nil
}

func runInteractive(ctx context.Context, deps Dependencies) error {
	a, err := newApp(deps)
	if err != nil {
		return err
	}

	appCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Go(func() {
		<-a.ui.Ready()
		a.startServers(appCtx)
		a.repl(appCtx)
	})
	wg.Go(func() {
		a.handleCommands(appCtx)
	})

	uiErr := a.ui.Start()

	// UI exited: stop the running turn and anything blocked on the UI.
	a.engine.Interrupt()
	cancel()
	wg.Wait()
	a.shutdown()

	if uiErr != nil {
		return fmt.Errorf("UI failed: %w", uiErr)
	}
	return nil
}

// startServers brings up MCP servers and, when a language is detected, a
// language server. Failures are reported and never block the session.
func (a *app) startServers(ctx context.Context) {
	a.log.Info("session started", "root", a.ws.resolver.Root(), "tools", len(a.registry.Names()))

	if a.cfg.MCP.Enabled && len(a.servers) > 0 {
		a.ui.WriteStatus(views.PhaseThinking, "Starting MCP servers")
		a.mcp.InitializeServers(ctx, a.servers)
		names := a.bridge.Sync()
		a.log.Info("mcp tools registered", "count", len(names))
		for _, st := range a.mcp.Status() {
			if st.Err != nil {
				a.ui.WriteMessage(fmt.Sprintf("MCP server %s failed to start: %v", st.Name, st.Err))
			}
		}
	}

	if a.ws.lsp != nil {
		a.ws.lsp.OnError(func(err error) {
			a.ui.WriteMessage(fmt.Sprintf("Language server: %v", err))
		})
		go a.ws.lsp.TryAutoStart(ctx)
	}

	a.ui.SetModel(a.cfg.Provider.Model)
	a.ui.WriteStatus(views.PhaseReady, "Ready")
}

// repl reads user messages and runs one turn per message until ctx ends.
func (a *app) repl(ctx context.Context) {
	for {
		input, err := a.ui.ReadInput(ctx, "What would you like to do?")
		if err != nil {
			return
		}

		if err := a.engine.Submit(ctx, input); err != nil {
			a.log.Error("turn failed", "error", err)
			a.ui.WriteStatus(views.PhaseError, "Turn failed")
			a.ui.WriteMessage(fmt.Sprintf("Error: %v", err))
			continue
		}
		if model := a.engine.Model(); model != "" {
			a.ui.SetModel(model)
		}
	}
}

func (a *app) handleCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-a.ui.Commands():
			a.handleCommand(ctx, cmd)
		}
	}
}

func (a *app) handleCommand(ctx context.Context, cmd ui.UICommand) {
	switch cmd.Type {
	case ui.CommandInterrupt:
		a.engine.Interrupt()

	case ui.CommandClear:
		a.engine.ClearHistory()
		a.ui.WriteMessage("Conversation cleared.")

	case ui.CommandListModels:
		models, err := a.listModels(ctx)
		if err != nil {
			a.ui.WriteMessage(fmt.Sprintf("Error listing models: %v", err))
			return
		}
		a.ui.WriteModelList(models)

	case ui.CommandSwitchModel:
		model := cmd.Args["model"]
		if err := a.engine.SetModel(ctx, model); err != nil {
			a.ui.WriteMessage(fmt.Sprintf("Error switching model: %v", err))
			return
		}
		a.ui.SetModel(model)
		a.ui.WriteMessage(fmt.Sprintf("Switched to model: %s", model))

	case ui.CommandMCPStatus:
		a.ui.WriteMessage(a.mcpStatus())

	case ui.CommandLSPStatus:
		a.ui.WriteMessage(a.lspStatus())
	}
}

func (a *app) listModels(ctx context.Context) ([]string, error) {
	prov, err := a.providers(ctx)
	if err != nil {
		return nil, err
	}
	lister, ok := prov.(modelLister)
	if !ok {
		return nil, errors.New("the configured provider cannot list models; use /model <name>")
	}
	return lister.ListModels(ctx)
}

func (a *app) mcpStatus() string {
	if !a.cfg.MCP.Enabled {
		return "MCP is disabled."
	}
	statuses := a.mcp.Status()
	if len(statuses) == 0 {
		return "No MCP servers configured."
	}

	lines := []string{"MCP servers:"}
	for _, st := range statuses {
		switch {
		case st.Connected:
			lines = append(lines, fmt.Sprintf("- %s: connected (%d tools)", st.Name, st.ToolCount))
		case st.Err != nil:
			lines = append(lines, fmt.Sprintf("- %s: failed: %v", st.Name, st.Err))
		default:
			lines = append(lines, fmt.Sprintf("- %s: disconnected", st.Name))
		}
	}
	return strings.Join(lines, "\n")
}

func (a *app) lspStatus() string {
	if a.ws.lsp == nil {
		return "Language servers are disabled."
	}
	if !a.ws.lsp.Running() {
		return "No language server running."
	}
	return fmt.Sprintf("%s running. %s", a.ws.lsp.ServerName(), a.ws.lsp.GetDiagnosticsSummary())
}

func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.mcp.StopAllServers(ctx)
	if a.ws.lsp != nil {
		if err := a.ws.lsp.Stop(ctx); err != nil {
			a.log.Warn("language server shutdown failed", "error", err)
		}
	}
	a.log.Info("session ended")
}
