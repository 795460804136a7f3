package config

// Config holds all application configuration values.
// Defaults are set in DefaultConfig() and can be overridden via dotfile.
// NOTE: Values in config files override defaults, including explicit zero values.
// Missing keys are left at their default values.
type Config struct {
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Provider     ProviderConfig     `json:"provider"`
	Tools        ToolsConfig        `json:"tools"`
	LSP          LSPConfig          `json:"lsp"`
	MCP          MCPConfig          `json:"mcp"`
	UI           UIConfig           `json:"ui"`
}

type OrchestratorConfig struct {
	MaxIterations   int     `json:"max_iterations"`    // Default: 50
	Temperature     float64 `json:"temperature"`       // Default: 0.7
	MaxOutputTokens int     `json:"max_output_tokens"` // Default: 8192
}

type ProviderConfig struct {
	// Name selects the backend: "gemini" or any vendor gollm supports
	// ("openai", "anthropic", "groq", "mistral", "ollama", ...).
	Name  string `json:"name"`  // Default: "gemini"
	Model string `json:"model"` // Default: "gemini-2.5-flash"

	// APIKeys holds stored keys by provider name. APIKey is the legacy
	// single-key fallback used when neither the environment nor APIKeys has one.
	APIKeys map[string]string `json:"api_keys"`
	APIKey  string            `json:"api_key"`
}

type ToolsConfig struct {
	// File Operations
	MaxFileSize      int64 `json:"max_file_size"`       // Default: 20 * 1024 * 1024 (20MB)
	DefaultReadLines int   `json:"default_read_lines"`  // Default: 2000

	// Directory Listing
	DefaultListDirectoryLimit int `json:"default_list_directory_limit"` // Default: 1000
	MaxListDirectoryLimit     int `json:"max_list_directory_limit"`     // Default: 10000

	// Command Execution
	DefaultMaxCommandOutputSize int64 `json:"default_max_command_output_size"` // Default: 1024 * 1024 (1MB)
	DefaultShellTimeout         int   `json:"default_shell_timeout"`           // Default: 120 (seconds)

	// Search
	MaxLineLength             int `json:"max_line_length"`              // Default: 2000
	DefaultSearchContentLimit int `json:"default_search_content_limit"` // Default: 100
	MaxSearchContentLimit     int `json:"max_search_content_limit"`     // Default: 1000
	DefaultFindFileLimit      int `json:"default_find_file_limit"`      // Default: 100
	MaxFindFileLimit          int `json:"max_find_file_limit"`          // Default: 1000
}

type LSPConfig struct {
	Enabled       bool `json:"enabled"`         // Default: true
	SettleDelayMs int  `json:"settle_delay_ms"` // Default: 1500
	MaxScanDepth  int  `json:"max_scan_depth"`  // Default: 4
	MaxScanFiles  int  `json:"max_scan_files"`  // Default: 2000
}

type MCPConfig struct {
	Enabled          bool `json:"enabled"`            // Default: true
	StartupTimeoutMs int  `json:"startup_timeout_ms"` // Default: 30000
	CallTimeoutMs    int  `json:"call_timeout_ms"`    // Default: 120000
}

type UIConfig struct {
	TickIntervalMs int    `json:"tick_interval_ms"` // Default: 100
	ColorPrimary   string `json:"color_primary"`    // Default: "63"
	ColorMuted     string `json:"color_muted"`      // Default: "241"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			MaxIterations:   50,
			Temperature:     0.7,
			MaxOutputTokens: 8192,
		},
		Provider: ProviderConfig{
			Name:    "gemini",
			Model:   "gemini-2.5-flash",
			APIKeys: map[string]string{},
		},
		Tools: ToolsConfig{
			MaxFileSize:                 20 * 1024 * 1024,
			DefaultReadLines:            2000,
			DefaultListDirectoryLimit:   1000,
			MaxListDirectoryLimit:       10000,
			DefaultMaxCommandOutputSize: 1024 * 1024,
			DefaultShellTimeout:         120,
			MaxLineLength:               2000,
			DefaultSearchContentLimit:   100,
			MaxSearchContentLimit:       1000,
			DefaultFindFileLimit:        100,
			MaxFindFileLimit:            1000,
		},
		LSP: LSPConfig{
			Enabled:       true,
			SettleDelayMs: 1500,
			MaxScanDepth:  4,
			MaxScanFiles:  2000,
		},
		MCP: MCPConfig{
			Enabled:          true,
			StartupTimeoutMs: 30000,
			CallTimeoutMs:    120000,
		},
		UI: UIConfig{
			TickIntervalMs: 100,
			ColorPrimary:   "63",
			ColorMuted:     "241",
		},
	}
}
