// Package main is the coda terminal coding assistant. It wires the
// conversation engine, the built-in tools, MCP servers and the language
// server manager behind a bubbletea UI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Cyclone1070/coda/internal/config"
	"github.com/Cyclone1070/coda/internal/logger"
	"github.com/Cyclone1070/coda/internal/ui"
	uiservices "github.com/Cyclone1070/coda/internal/ui/services"
	"github.com/charmbracelet/bubbles/spinner"
)

func createRealUI(cfg *config.Config) *ui.UI {
	channels := ui.NewUIChannels()
	renderer := uiservices.NewGlamourRenderer()
	spinnerFactory := func() spinner.Model {
		return spinner.New(spinner.WithSpinner(spinner.Dot))
	}
	return ui.NewUI(channels, cfg, renderer, spinnerFactory)
}

func main() {
	// Load configuration (from defaults + ~/.config/coda/config.json)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Using default configuration.\n")
		cfg = config.DefaultConfig()
	}

	if path, err := logger.DefaultLogPath(); err == nil {
		if err := logger.Init(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to open log file: %v\n", err)
		}
	}
	defer logger.Close()
	if os.Getenv("CODA_DEBUG") != "" {
		logger.SetDebug(true)
	}

	workspaceRoot, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to get working directory: %v\n", err)
		os.Exit(1)
	}

	servers, err := config.LoadMCPServers(workspaceRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load MCP servers: %v\n", err)
	}

	deps := Dependencies{
		Config:          cfg,
		UI:              createRealUI(cfg),
		ProviderFactory: createRealProviderFactory(cfg),
		WorkspaceRoot:   workspaceRoot,
		MCPServers:      servers,
	}

	// The UI owns the lifecycle through Ctrl+C and /quit, so the root
	// context is never cancelled from outside.
	if err := runInteractive(context.Background(), deps); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
