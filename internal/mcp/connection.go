package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Cyclone1070/coda/internal/logger"
	"github.com/Cyclone1070/coda/internal/tool"
)

// Connection is one server's session plus its discovered tools. It is
// created on start and discarded on stop; it is never reconnected in place.
type Connection struct {
	cfg  ServerConfig
	dial Dialer
	log  *slog.Logger

	mu      sync.RWMutex
	session Session
	tools   []Tool
}

// NewConnection builds an unconnected connection.
func NewConnection(cfg ServerConfig, dial Dialer) *Connection {
	if dial == nil {
		panic("dialer is required")
	}
	return &Connection{
		cfg:  cfg,
		dial: dial,
		log:  logger.WithComponent("mcp").With("server", cfg.Name),
	}
}

// Name returns the configured server name.
func (c *Connection) Name() string {
	return c.cfg.Name
}

// Config returns the server configuration.
func (c *Connection) Config() ServerConfig {
	return c.cfg
}

// Connect opens the session and discovers tools. On any failure the session
// is torn down so a connection is either fully up or not at all.
func (c *Connection) Connect(ctx context.Context) error {
	session, err := c.dial(ctx, c.cfg)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.cfg.Name, err)
	}

	infos, err := session.ListTools(ctx)
	if err != nil {
		if cerr := session.Close(); cerr != nil {
			c.log.Warn("close after failed discovery", "error", cerr)
		}
		return fmt.Errorf("discover tools on %s: %w", c.cfg.Name, err)
	}

	tools := make([]Tool, 0, len(infos))
	for _, info := range infos {
		tools = append(tools, Tool{
			Name:         info.Name,
			Description:  info.Description,
			InputSchema:  info.InputSchema,
			ServerName:   c.cfg.Name,
			PrefixedName: PrefixedName(c.cfg.Prefix, info.Name),
		})
	}

	c.mu.Lock()
	c.session = session
	c.tools = tools
	c.mu.Unlock()

	c.log.Info("connected", "tools", len(tools))
	return nil
}

// Connected reports whether the session is up and its channel alive.
func (c *Connection) Connected() bool {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == nil {
		return false
	}
	select {
	case <-session.Done():
		return false
	default:
		return true
	}
}

// Tools returns the tools discovered on connect.
func (c *Connection) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Tool(nil), c.tools...)
}

// HasTool reports whether the server exposes a tool with the unprefixed name.
func (c *Connection) HasTool(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// CallTool invokes an unprefixed tool. Tool-level failures are carried in
// the result; the error is reserved for transport problems.
func (c *Connection) CallTool(ctx context.Context, name string, args map[string]any) (tool.Result, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == nil {
		return tool.Result{}, ErrNotConnected
	}
	select {
	case <-session.Done():
		return tool.Result{}, ErrNotConnected
	default:
	}

	res, err := session.CallTool(ctx, name, args)
	if err != nil {
		return tool.Result{}, err
	}
	if res.IsError {
		return tool.Result{Success: false, Error: res.Text}, nil
	}
	return tool.Result{Success: true, Content: res.Text}, nil
}

// Disconnect closes the session and drops the cached tools.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.tools = nil
	c.mu.Unlock()

	if session == nil {
		return nil
	}
	if err := session.Close(); err != nil {
		return fmt.Errorf("disconnect %s: %w", c.cfg.Name, err)
	}
	c.log.Info("disconnected")
	return nil
}
