package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Cyclone1070/coda/internal/logger"
	"github.com/Cyclone1070/coda/internal/protocol"
)

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      implementation `json:"clientInfo"`
}

type implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ServerInfo      implementation `json:"serverInfo"`
}

type listToolsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

type listToolsResult struct {
	Tools      []ToolInfo `json:"tools"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
	URI      string `json:"uri,omitempty"`
	Resource *struct {
		URI  string `json:"uri"`
		Text string `json:"text,omitempty"`
	} `json:"resource,omitempty"`
}

type callToolResult struct {
	Content []content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// stdioSession speaks MCP over a spawned child's stdio.
type stdioSession struct {
	client *protocol.Client
	log    *slog.Logger
}

// DialStdio spawns the server and performs the MCP handshake.
func DialStdio(ctx context.Context, cfg ServerConfig) (Session, error) {
	client, err := protocol.Start(ctx, protocol.Spec{
		Name:    cfg.Name,
		Command: cfg.Command,
		Args:    cfg.Args,
		Env:     cfg.Env,
		Framing: protocol.FramingLine,
	})
	if err != nil {
		return nil, err
	}
	return newStdioSession(ctx, client, cfg.Name)
}

func newStdioSession(ctx context.Context, client *protocol.Client, name string) (*stdioSession, error) {
	s := &stdioSession{
		client: client,
		log:    logger.WithComponent("mcp").With("server", name),
	}

	client.OnRequest("ping", func(context.Context, json.RawMessage) (any, error) {
		return struct{}{}, nil
	})
	client.OnRequest("roots/list", func(context.Context, json.RawMessage) (any, error) {
		return map[string]any{"roots": []any{}}, nil
	})
	client.OnNotification("notifications/message", func(_ context.Context, params json.RawMessage) {
		s.log.Debug("server log", "params", string(params))
	})
	client.OnNotification("notifications/tools/list_changed", func(context.Context, json.RawMessage) {
		s.log.Info("server reported tool list change; restart to rediscover")
	})

	if err := s.initialize(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *stdioSession) initialize(ctx context.Context) error {
	var result initializeResult
	err := s.client.Call(ctx, "initialize", initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      implementation{Name: clientName, Version: clientVersion},
	}, &result)
	if err != nil {
		return fmt.Errorf("initialize: %w", mapClosed(err))
	}
	s.log.Info("initialized", "server_name", result.ServerInfo.Name, "protocol", result.ProtocolVersion)

	if err := s.client.Notify(ctx, "notifications/initialized", struct{}{}); err != nil {
		return fmt.Errorf("initialized notification: %w", mapClosed(err))
	}
	return nil
}

func (s *stdioSession) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var tools []ToolInfo
	cursor := ""
	for {
		var page listToolsResult
		if err := s.client.Call(ctx, "tools/list", listToolsParams{Cursor: cursor}, &page); err != nil {
			return nil, fmt.Errorf("tools/list: %w", mapClosed(err))
		}
		tools = append(tools, page.Tools...)
		if page.NextCursor == "" || page.NextCursor == cursor {
			return tools, nil
		}
		cursor = page.NextCursor
	}
}

func (s *stdioSession) CallTool(ctx context.Context, name string, args map[string]any) (CallResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	var result callToolResult
	if err := s.client.Call(ctx, "tools/call", callToolParams{Name: name, Arguments: args}, &result); err != nil {
		return CallResult{}, mapClosed(err)
	}

	parts := make([]string, 0, len(result.Content))
	for _, c := range result.Content {
		parts = append(parts, renderContent(c))
	}
	return CallResult{Text: strings.Join(parts, "\n"), IsError: result.IsError}, nil
}

func (s *stdioSession) Close() error {
	return s.client.Close()
}

func (s *stdioSession) Done() <-chan struct{} {
	return s.client.Done()
}

func renderContent(c content) string {
	switch c.Type {
	case "text":
		return c.Text
	case "image", "audio":
		return fmt.Sprintf("[%s: %s]", c.Type, c.MIMEType)
	case "resource":
		if c.Resource == nil {
			return "[resource]"
		}
		if c.Resource.Text != "" {
			return c.Resource.Text
		}
		return fmt.Sprintf("[resource: %s]", c.Resource.URI)
	case "resource_link":
		return fmt.Sprintf("[resource: %s]", c.URI)
	default:
		return fmt.Sprintf("[%s]", c.Type)
	}
}

func mapClosed(err error) error {
	if errors.Is(err, protocol.ErrClosed) {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return err
}
