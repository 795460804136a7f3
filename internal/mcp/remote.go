package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// remoteSession speaks MCP to an HTTP endpoint through the streamable
// transport.
type remoteSession struct {
	session *sdk.ClientSession
	done    chan struct{}
}

// DialRemote connects to cfg.URL and performs the handshake.
func DialRemote(ctx context.Context, cfg ServerConfig) (Session, error) {
	client := sdk.NewClient(&sdk.Implementation{Name: clientName, Version: clientVersion}, nil)
	session, err := client.Connect(ctx, &sdk.StreamableClientTransport{Endpoint: cfg.URL}, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.URL, err)
	}

	s := &remoteSession{session: session, done: make(chan struct{})}
	go func() {
		_ = session.Wait()
		close(s.done)
	}()
	return s, nil
}

func (s *remoteSession) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var tools []ToolInfo
	for t, err := range s.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("tools/list: %w", mapSDKError(err))
		}
		schema, err := schemaMap(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", t.Name, err)
		}
		tools = append(tools, ToolInfo{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return tools, nil
}

func (s *remoteSession) CallTool(ctx context.Context, name string, args map[string]any) (CallResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	res, err := s.session.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return CallResult{}, mapSDKError(err)
	}

	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		switch c := c.(type) {
		case *sdk.TextContent:
			parts = append(parts, c.Text)
		case *sdk.ImageContent:
			parts = append(parts, fmt.Sprintf("[image: %s]", c.MIMEType))
		case *sdk.AudioContent:
			parts = append(parts, fmt.Sprintf("[audio: %s]", c.MIMEType))
		case *sdk.EmbeddedResource:
			if c.Resource != nil && c.Resource.Text != "" {
				parts = append(parts, c.Resource.Text)
			} else if c.Resource != nil {
				parts = append(parts, fmt.Sprintf("[resource: %s]", c.Resource.URI))
			}
		case *sdk.ResourceLink:
			parts = append(parts, fmt.Sprintf("[resource: %s]", c.URI))
		}
	}
	return CallResult{Text: strings.Join(parts, "\n"), IsError: res.IsError}, nil
}

func (s *remoteSession) Close() error {
	return s.session.Close()
}

func (s *remoteSession) Done() <-chan struct{} {
	return s.done
}

func mapSDKError(err error) error {
	if errors.Is(err, sdk.ErrConnectionClosed) {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return err
}

// schemaMap normalizes a decoded input schema into a JSON object.
func schemaMap(schema any) (map[string]any, error) {
	switch s := schema.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return s, nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encoding input schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("input schema is not an object: %w", err)
	}
	return out, nil
}
