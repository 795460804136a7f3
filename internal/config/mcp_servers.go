package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// MCPServersDir is the per-workspace directory holding project MCP servers.
const MCPServersDir = ".coda"

var mcpServerFiles = []string{"mcp.json", "mcp.yaml", "mcp.yml"}

// MCPServer describes one external tool server. Exactly one of Command or
// URL is set: Command spawns a child speaking newline-delimited JSON-RPC on
// stdio, URL addresses a remote streamable HTTP endpoint.
type MCPServer struct {
	Name     string            `json:"name" yaml:"name"`
	Command  string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args     []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env      map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	URL      string            `json:"url,omitempty" yaml:"url,omitempty"`
	Prefix   string            `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Disabled bool              `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	// Category is "safe", "approval_required" (default) or "dangerous".
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
}

// Validate checks that the server has a name and exactly one transport.
func (s MCPServer) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("mcp server: name is required")
	}
	if s.Command == "" && s.URL == "" {
		return fmt.Errorf("mcp server %q: command or url is required", s.Name)
	}
	if s.Command != "" && s.URL != "" {
		return fmt.Errorf("mcp server %q: command and url are mutually exclusive", s.Name)
	}
	switch s.Category {
	case "", "safe", "approval_required", "dangerous":
	default:
		return fmt.Errorf("mcp server %q: unknown category %q", s.Name, s.Category)
	}
	return nil
}

// mcpServersFile is the on-disk shape: server entries keyed by name.
type mcpServersFile struct {
	Servers map[string]MCPServer `json:"mcpServers" yaml:"mcpServers"`
}

// LoadMCPServers reads the user-level server file from ~/.config/coda and the
// project-level one from <workspace>/.coda, with project entries overriding
// user entries of the same name. Missing files are not an error.
// The result is sorted by name.
func (l *Loader) LoadMCPServers(workspaceRoot string) ([]MCPServer, error) {
	merged := make(map[string]MCPServer)

	if dir, err := l.Dir(); err == nil {
		servers, err := l.readMCPServers(dir)
		if err != nil {
			return nil, err
		}
		for name, s := range servers {
			merged[name] = s
		}
	}

	if workspaceRoot != "" {
		servers, err := l.readMCPServers(filepath.Join(workspaceRoot, MCPServersDir))
		if err != nil {
			return nil, err
		}
		for name, s := range servers {
			merged[name] = s
		}
	}

	result := make([]MCPServer, 0, len(merged))
	for _, s := range merged {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// readMCPServers parses the first server file present in dir.
func (l *Loader) readMCPServers(dir string) (map[string]MCPServer, error) {
	for _, name := range mcpServerFiles {
		path := filepath.Join(dir, name)
		data, err := l.fs.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		var file mcpServersFile
		if filepath.Ext(name) == ".json" {
			err = json.Unmarshal(data, &file)
		} else {
			err = yaml.Unmarshal(data, &file)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}

		servers := make(map[string]MCPServer, len(file.Servers))
		for key, s := range file.Servers {
			if s.Name == "" {
				s.Name = key
			}
			servers[s.Name] = s
		}
		return servers, nil
	}
	return nil, nil
}

// LoadMCPServers is a convenience function using the default loader
func LoadMCPServers(workspaceRoot string) ([]MCPServer, error) {
	return NewLoader().LoadMCPServers(workspaceRoot)
}
