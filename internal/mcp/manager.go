package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Cyclone1070/coda/internal/logger"
	"github.com/Cyclone1070/coda/internal/tool"
)

// Options bounds server startup and tool calls. Zero values disable the bound.
type Options struct {
	StartupTimeout time.Duration
	CallTimeout    time.Duration
}

// ServerStatus is the outcome of the last start attempt for a server.
type ServerStatus struct {
	Name      string
	Connected bool
	ToolCount int
	Err       error
}

// Manager owns the set of server connections.
type Manager struct {
	dial Dialer
	opts Options
	log  *slog.Logger

	mu      sync.RWMutex
	configs map[string]ServerConfig
	conns   map[string]*Connection
	errs    map[string]error

	onRestart func(name string)
}

// NewManager creates a manager. A nil dialer uses Dial.
func NewManager(dial Dialer, opts Options) *Manager {
	if dial == nil {
		dial = Dial
	}
	return &Manager{
		dial:    dial,
		opts:    opts,
		log:     logger.WithComponent("mcp"),
		configs: make(map[string]ServerConfig),
		conns:   make(map[string]*Connection),
		errs:    make(map[string]error),
	}
}

// InitializeServers starts every enabled server in parallel. A failing
// server is recorded in Status and never affects the others.
func (m *Manager) InitializeServers(ctx context.Context, configs []ServerConfig) {
	var wg sync.WaitGroup
	for _, cfg := range configs {
		if cfg.Disabled {
			m.log.Info("server disabled", "server", cfg.Name)
			continue
		}
		wg.Add(1)
		go func(cfg ServerConfig) {
			defer wg.Done()
			if err := m.StartServer(ctx, cfg); err != nil {
				m.log.Warn("server failed to start", "server", cfg.Name, "error", err)
			}
		}(cfg)
	}
	wg.Wait()
}

// OnRestart registers fn to run after every restart, whether or not the
// server came back, so callers can resync the tools it exposes.
func (m *Manager) OnRestart(fn func(name string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRestart = fn
}

// StartServer connects one server, replacing any existing connection of
// the same name.
func (m *Manager) StartServer(ctx context.Context, cfg ServerConfig) error {
	m.mu.Lock()
	m.configs[cfg.Name] = cfg
	old := m.conns[cfg.Name]
	delete(m.conns, cfg.Name)
	m.mu.Unlock()

	if old != nil {
		if err := old.Disconnect(); err != nil {
			m.log.Warn("disconnect before start", "server", cfg.Name, "error", err)
		}
	}

	startCtx := ctx
	if m.opts.StartupTimeout > 0 {
		var cancel context.CancelFunc
		startCtx, cancel = context.WithTimeout(ctx, m.opts.StartupTimeout)
		defer cancel()
	}

	conn := NewConnection(cfg, m.dial)
	err := conn.Connect(startCtx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.errs[cfg.Name] = err
		return err
	}
	delete(m.errs, cfg.Name)
	m.conns[cfg.Name] = conn
	return nil
}

// StopServer disconnects a server and forgets its connection.
func (m *Manager) StopServer(name string) error {
	m.mu.Lock()
	conn, ok := m.conns[name]
	delete(m.conns, name)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return conn.Disconnect()
}

// RestartServer stops the server and connects a fresh session, rediscovering
// its tools.
func (m *Manager) RestartServer(ctx context.Context, name string) error {
	m.mu.RLock()
	cfg, ok := m.configs[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrServerNotFound, name)
	}

	m.log.Info("restarting server", "server", name)
	if err := m.StopServer(name); err != nil {
		m.log.Warn("stop during restart", "server", name, "error", err)
	}
	err := m.StartServer(ctx, cfg)

	m.mu.RLock()
	hook := m.onRestart
	m.mu.RUnlock()
	if hook != nil {
		hook(name)
	}
	return err
}

// StopAllServers disconnects everything, logging individual failures.
func (m *Manager) StopAllServers(_ context.Context) {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[string]*Connection)
	m.mu.Unlock()

	for name, conn := range conns {
		if err := conn.Disconnect(); err != nil {
			m.log.Warn("failed to stop server", "server", name, "error", err)
		}
	}
}

// GetAllTools returns the tools of connected servers, sorted by prefixed name.
func (m *Manager) GetAllTools() []Tool {
	var tools []Tool
	for _, conn := range m.connections() {
		if !conn.Connected() {
			continue
		}
		tools = append(tools, conn.Tools()...)
	}
	sort.Slice(tools, func(i, j int) bool {
		return tools[i].PrefixedName < tools[j].PrefixedName
	})
	return tools
}

// HasTool reports whether prefixedName resolves to a known server tool.
func (m *Manager) HasTool(prefixedName string) bool {
	_, _, ok := m.resolve(prefixedName)
	return ok
}

// CallTool routes a prefixed tool name to its server. A server prefix only
// ever matches names carrying that prefix. A not-connected failure restarts
// the server and retries exactly once.
func (m *Manager) CallTool(ctx context.Context, prefixedName string, args map[string]any) (tool.Result, error) {
	conn, name, ok := m.resolve(prefixedName)
	if !ok {
		return tool.Result{}, fmt.Errorf("%w: %s", ErrToolNotFound, prefixedName)
	}

	res, err := m.call(ctx, conn, name, args)
	if !errors.Is(err, ErrNotConnected) {
		return res, err
	}

	m.log.Warn("server not connected, restarting", "server", conn.Name(), "tool", name, "error", err)
	if rerr := m.RestartServer(ctx, conn.Name()); rerr != nil {
		return tool.Result{}, fmt.Errorf("restart %s after %v: %w", conn.Name(), err, rerr)
	}

	m.mu.RLock()
	fresh, ok := m.conns[conn.Name()]
	m.mu.RUnlock()
	if !ok || !fresh.HasTool(name) {
		return tool.Result{}, fmt.Errorf("%w: %s", ErrToolNotFound, prefixedName)
	}
	return m.call(ctx, fresh, name, args)
}

func (m *Manager) call(ctx context.Context, conn *Connection, name string, args map[string]any) (tool.Result, error) {
	if m.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.CallTimeout)
		defer cancel()
	}
	return conn.CallTool(ctx, name, args)
}

// resolve finds the connection and unprefixed tool name for prefixedName.
func (m *Manager) resolve(prefixedName string) (*Connection, string, bool) {
	for _, conn := range m.connections() {
		name := prefixedName
		if prefix := conn.Config().Prefix; prefix != "" {
			var ok bool
			name, ok = strings.CutPrefix(prefixedName, prefix+":")
			if !ok {
				continue
			}
		}
		if conn.HasTool(name) {
			return conn, name, true
		}
	}
	return nil, "", false
}

// connections returns a name-ordered snapshot.
func (m *Manager) connections() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].Name() < conns[j].Name() })
	return conns
}

// Status reports every configured server, sorted by name.
func (m *Manager) Status() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]ServerStatus, 0, len(m.configs))
	for name := range m.configs {
		st := ServerStatus{Name: name, Err: m.errs[name]}
		if conn, ok := m.conns[name]; ok {
			st.Connected = conn.Connected()
			st.ToolCount = len(conn.Tools())
		}
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}
