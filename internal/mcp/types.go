package mcp

import (
	"context"
	"fmt"

	"github.com/Cyclone1070/coda/internal/config"
)

// ProtocolVersion is the MCP revision offered during the handshake.
const ProtocolVersion = "2024-11-05"

const (
	clientName    = "coda"
	clientVersion = "0.1.0"
)

// ServerConfig describes one external tool server.
type ServerConfig = config.MCPServer

// Tool is a tool exposed by a connected server.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	ServerName  string
	// PrefixedName is the name surfaced to the model and the registry.
	PrefixedName string
}

// PrefixedName returns prefix:name, or name when prefix is empty.
func PrefixedName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return fmt.Sprintf("%s:%s", prefix, name)
}

// ToolInfo is a tool as reported by tools/list.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// CallResult is the flattened outcome of tools/call.
type CallResult struct {
	Text    string
	IsError bool
}

// Session is an initialized channel to one server.
type Session interface {
	// ListTools returns every tool, following pagination.
	ListTools(ctx context.Context) ([]ToolInfo, error)
	// CallTool invokes a tool. A dead channel yields ErrNotConnected.
	CallTool(ctx context.Context, name string, args map[string]any) (CallResult, error)
	Close() error
	// Done is closed when the channel terminates.
	Done() <-chan struct{}
}

// Dialer opens an initialized session for a server.
type Dialer func(ctx context.Context, cfg ServerConfig) (Session, error)

// Dial picks the transport from the config: URL servers are remote,
// everything else is spawned over stdio.
func Dial(ctx context.Context, cfg ServerConfig) (Session, error) {
	if cfg.URL != "" {
		return DialRemote(ctx, cfg)
	}
	return DialStdio(ctx, cfg)
}
