package config

import (
	"fmt"
)

// Validate checks config values for correctness.
// Returns an error listing every invalid value.
func (c *Config) Validate() error {
	var errs []string

	// Orchestrator
	if c.Orchestrator.MaxIterations < 1 {
		errs = append(errs, "orchestrator.max_iterations must be >= 1")
	}
	if c.Orchestrator.Temperature < 0 || c.Orchestrator.Temperature > 2 {
		errs = append(errs, "orchestrator.temperature must be between 0 and 2")
	}
	if c.Orchestrator.MaxOutputTokens < 1 {
		errs = append(errs, "orchestrator.max_output_tokens must be >= 1")
	}

	// Provider
	if c.Provider.Name == "" {
		errs = append(errs, "provider.name must not be empty")
	}
	if c.Provider.Model == "" {
		errs = append(errs, "provider.model must not be empty")
	}

	// Tools
	if c.Tools.MaxFileSize < 1 {
		errs = append(errs, "tools.max_file_size must be >= 1")
	}
	if c.Tools.DefaultReadLines < 1 {
		errs = append(errs, "tools.default_read_lines must be >= 1")
	}
	if c.Tools.DefaultListDirectoryLimit < 1 {
		errs = append(errs, "tools.default_list_directory_limit must be >= 1")
	}
	if c.Tools.MaxListDirectoryLimit < 1 {
		errs = append(errs, "tools.max_list_directory_limit must be >= 1")
	}
	if c.Tools.DefaultMaxCommandOutputSize < 1 {
		errs = append(errs, "tools.default_max_command_output_size must be >= 1")
	}
	if c.Tools.DefaultShellTimeout < 1 {
		errs = append(errs, "tools.default_shell_timeout must be >= 1")
	}
	if c.Tools.MaxLineLength < 1 {
		errs = append(errs, "tools.max_line_length must be >= 1")
	}
	if c.Tools.DefaultSearchContentLimit < 1 {
		errs = append(errs, "tools.default_search_content_limit must be >= 1")
	}
	if c.Tools.MaxSearchContentLimit < 1 {
		errs = append(errs, "tools.max_search_content_limit must be >= 1")
	}
	if c.Tools.DefaultFindFileLimit < 1 {
		errs = append(errs, "tools.default_find_file_limit must be >= 1")
	}
	if c.Tools.MaxFindFileLimit < 1 {
		errs = append(errs, "tools.max_find_file_limit must be >= 1")
	}

	// Semantic validation: Default <= Max constraints
	if c.Tools.DefaultListDirectoryLimit > c.Tools.MaxListDirectoryLimit {
		errs = append(errs, "tools.default_list_directory_limit must be <= tools.max_list_directory_limit")
	}
	if c.Tools.DefaultSearchContentLimit > c.Tools.MaxSearchContentLimit {
		errs = append(errs, "tools.default_search_content_limit must be <= tools.max_search_content_limit")
	}
	if c.Tools.DefaultFindFileLimit > c.Tools.MaxFindFileLimit {
		errs = append(errs, "tools.default_find_file_limit must be <= tools.max_find_file_limit")
	}

	// LSP
	if c.LSP.SettleDelayMs < 0 {
		errs = append(errs, "lsp.settle_delay_ms must be >= 0")
	}
	if c.LSP.MaxScanDepth < 1 {
		errs = append(errs, "lsp.max_scan_depth must be >= 1")
	}
	if c.LSP.MaxScanFiles < 1 {
		errs = append(errs, "lsp.max_scan_files must be >= 1")
	}

	// MCP
	if c.MCP.StartupTimeoutMs < 1 {
		errs = append(errs, "mcp.startup_timeout_ms must be >= 1")
	}
	if c.MCP.CallTimeoutMs < 1 {
		errs = append(errs, "mcp.call_timeout_ms must be >= 1")
	}

	// UI
	if c.UI.TickIntervalMs < 1 {
		errs = append(errs, "ui.tick_interval_ms must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %v", errs)
	}

	return nil
}
