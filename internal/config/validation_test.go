package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_AllDefaults_Pass(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero max iterations", func(c *Config) { c.Orchestrator.MaxIterations = 0 }, "max_iterations"},
		{"temperature out of range", func(c *Config) { c.Orchestrator.Temperature = 3 }, "temperature"},
		{"empty provider", func(c *Config) { c.Provider.Name = "" }, "provider.name"},
		{"empty model", func(c *Config) { c.Provider.Model = "" }, "provider.model"},
		{"zero file size", func(c *Config) { c.Tools.MaxFileSize = 0 }, "max_file_size"},
		{"zero shell timeout", func(c *Config) { c.Tools.DefaultShellTimeout = 0 }, "default_shell_timeout"},
		{"negative settle delay", func(c *Config) { c.LSP.SettleDelayMs = -1 }, "settle_delay_ms"},
		{"zero scan files", func(c *Config) { c.LSP.MaxScanFiles = 0 }, "max_scan_files"},
		{"zero mcp startup", func(c *Config) { c.MCP.StartupTimeoutMs = 0 }, "startup_timeout_ms"},
		{"zero tick", func(c *Config) { c.UI.TickIntervalMs = 0 }, "tick_interval_ms"},
		{
			"default above max",
			func(c *Config) { c.Tools.DefaultSearchContentLimit = c.Tools.MaxSearchContentLimit + 1 },
			"default_search_content_limit must be <=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestValidate_ZeroSettleDelayAllowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LSP.SettleDelayMs = 0
	assert.NoError(t, cfg.Validate())
}
