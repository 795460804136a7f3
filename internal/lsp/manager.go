// Package lsp runs a language server for the workspace and caches the
// diagnostics it publishes.
package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Cyclone1070/coda/internal/logger"
	rpc "github.com/Cyclone1070/coda/internal/protocol"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// shutdownTimeout bounds the shutdown request sent by Stop.
const shutdownTimeout = 2 * time.Second

// Launcher starts the server process and returns a connected client.
type Launcher func(ctx context.Context, spec rpc.Spec) (*rpc.Client, error)

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	// SettleDelay is how long AnalyzeFile and AnalyzeWorkspace wait for the
	// server to publish diagnostics. It is a heuristic: a slow server may
	// publish after the wait and a fast one may publish twice.
	SettleDelay  time.Duration
	MaxScanDepth int
	MaxScanFiles int
	Servers      []ServerDef
	LookPath     LookPathFunc
	Launch       Launcher
}

// Manager owns one language server session bound to a workspace root.
type Manager struct {
	root   string
	ignore ignoreMatcher
	opts   Options
	log    *slog.Logger

	// lifecycle serialises Start and Stop.
	lifecycle sync.Mutex

	mu          sync.RWMutex
	client      *rpc.Client
	starting    *rpc.Client
	server      ServerDef
	versions    map[string]int32
	diagnostics map[string]DiagnosticSet
	severity    map[string]severityCounts
	// closed holds documents closed by the client; pushes for them are
	// ignored until they are opened again.
	closed  map[string]struct{}
	onError     func(error)
}

// NewManager creates a stopped manager for root. ignore may be nil.
func NewManager(root string, ignore ignoreMatcher, opts Options) *Manager {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 1500 * time.Millisecond
	}
	if opts.MaxScanDepth <= 0 {
		opts.MaxScanDepth = 4
	}
	if opts.MaxScanFiles <= 0 {
		opts.MaxScanFiles = 2000
	}
	if opts.Servers == nil {
		opts.Servers = DefaultServers
	}
	if opts.Launch == nil {
		opts.Launch = rpc.Start
	}
	return &Manager{
		root:        filepath.Clean(root),
		ignore:      ignore,
		opts:        opts,
		log:         logger.WithComponent("lsp"),
		versions:    make(map[string]int32),
		diagnostics: make(map[string]DiagnosticSet),
		severity:    make(map[string]severityCounts),
		closed:      make(map[string]struct{}),
	}
}

// OnError registers an observer for server failures: detection and spawn
// errors from Start and unexpected server exits.
func (m *Manager) OnError(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = fn
}

func (m *Manager) reportError(err error) {
	m.mu.RLock()
	fn := m.onError
	m.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Running reports whether a server session is ready.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil
}

// ServerName returns the running server's name, or "".
func (m *Manager) ServerName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return ""
	}
	return m.server.Name
}

// Start detects a server, spawns it and completes the initialize handshake.
// It is a no-op when a session is already running.
func (m *Manager) Start(ctx context.Context) error {
	err := m.start(ctx)
	if err != nil {
		m.log.Warn("language server unavailable", "error", err)
		m.reportError(err)
	}
	return err
}

// TryAutoStart is Start without error reporting, for background activation.
func (m *Manager) TryAutoStart(ctx context.Context) bool {
	if err := m.start(ctx); err != nil {
		m.log.Debug("auto-start skipped", "error", err)
		return false
	}
	return true
}

func (m *Manager) start(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.Running() {
		return nil
	}

	det, err := detect(m.root, m.opts.Servers, m.ignore, m.opts.MaxScanDepth, m.opts.MaxScanFiles, m.opts.LookPath)
	if err != nil {
		return err
	}

	client, err := m.opts.Launch(ctx, rpc.Spec{
		Name:    det.server.Name,
		Command: det.path,
		Args:    det.server.Args,
		Dir:     m.root,
		Framing: rpc.FramingHeader,
	})
	if err != nil {
		return fmt.Errorf("start %s language server: %w", det.server.Name, err)
	}

	client.OnNotification(protocol.MethodTextDocumentPublishDiagnostics, func(ctx context.Context, raw json.RawMessage) {
		m.handlePublish(client, raw)
	})
	client.OnRequest(protocol.MethodWorkspaceConfiguration, answerConfiguration)

	m.mu.Lock()
	m.starting = client
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.starting = nil
		m.mu.Unlock()
	}()

	if err := m.initialize(ctx, client); err != nil {
		_ = client.Close()
		return fmt.Errorf("initialize %s language server: %w", det.server.Name, err)
	}

	m.mu.Lock()
	m.client = client
	m.server = det.server
	m.mu.Unlock()

	go m.watch(client)
	m.log.Info("language server ready", "server", det.server.Name, "command", det.path)
	return nil
}

func (m *Manager) initialize(ctx context.Context, client *rpc.Client) error {
	rootURI := uri.File(m.root)
	params := &protocol.InitializeParams{
		ProcessID:  int32(os.Getpid()),
		ClientInfo: &protocol.ClientInfo{Name: "coda"},
		RootURI:    rootURI,
		RootPath:   m.root,
		Capabilities: protocol.ClientCapabilities{
			TextDocument: &protocol.TextDocumentClientCapabilities{
				Synchronization:    &protocol.TextDocumentSyncClientCapabilities{},
				PublishDiagnostics: &protocol.PublishDiagnosticsClientCapabilities{RelatedInformation: true},
			},
		},
		WorkspaceFolders: []protocol.WorkspaceFolder{{URI: string(rootURI), Name: filepath.Base(m.root)}},
	}

	var result protocol.InitializeResult
	if err := client.Call(ctx, protocol.MethodInitialize, params, &result); err != nil {
		return err
	}
	return client.Notify(ctx, protocol.MethodInitialized, &protocol.InitializedParams{})
}

// watch clears the session if the server exits without Stop.
func (m *Manager) watch(client *rpc.Client) {
	<-client.Done()

	m.mu.Lock()
	current := m.client == client
	if current {
		m.client = nil
		m.resetLocked()
	}
	name := m.server.Name
	m.mu.Unlock()

	if current {
		err := fmt.Errorf("%s language server exited: %v", name, client.Err())
		if stderr := client.Stderr(); stderr != "" {
			err = fmt.Errorf("%w (stderr: %s)", err, stderr)
		}
		m.log.Warn("language server exited unexpectedly", "server", name, "error", err)
		_ = client.Close()
		m.reportError(err)
	}
}

// Stop shuts the server down and clears every document and diagnostic.
func (m *Manager) Stop(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	client := m.client
	m.client = nil
	m.resetLocked()
	m.mu.Unlock()

	if client == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := client.Call(shutdownCtx, protocol.MethodShutdown, nil, nil); err != nil {
		m.log.Debug("shutdown request failed", "error", err)
	} else if err := client.Notify(shutdownCtx, protocol.MethodExit, nil); err != nil {
		m.log.Debug("exit notification failed", "error", err)
	}
	m.log.Info("language server stopped")
	return client.Close()
}

func (m *Manager) resetLocked() {
	m.versions = make(map[string]int32)
	m.diagnostics = make(map[string]DiagnosticSet)
	m.severity = make(map[string]severityCounts)
	m.closed = make(map[string]struct{})
}

func (m *Manager) session() (*rpc.Client, ServerDef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, ServerDef{}, ErrNotStarted
	}
	return m.client, m.server, nil
}

func (m *Manager) absPath(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.root, path)
	}
	return filepath.Clean(path)
}

// handlePublish replaces the cached set for the published file. Messages
// from a client that is no longer the active session, and pushes for closed
// documents, are dropped.
func (m *Manager) handlePublish(from *rpc.Client, raw json.RawMessage) {
	var params protocol.PublishDiagnosticsParams
	if err := json.Unmarshal(raw, &params); err != nil {
		m.log.Warn("malformed diagnostics notification", "error", err)
		return
	}
	path := pathFromURI(params.URI)
	diags := params.Diagnostics
	if diags == nil {
		diags = []protocol.Diagnostic{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if from != m.client && from != m.starting {
		return
	}
	if _, ok := m.closed[path]; ok {
		return
	}
	m.diagnostics[path] = DiagnosticSet{
		URI:         params.URI,
		FilePath:    path,
		Diagnostics: diags,
		Timestamp:   time.Now(),
	}
	m.severity[path] = countSeverities(diags)
}

// answerConfiguration returns one null section per requested item.
func answerConfiguration(_ context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	return make([]any, len(params.Items)), nil
}

func pathFromURI(u protocol.DocumentURI) string {
	parsed, err := url.Parse(string(u))
	if err != nil || parsed.Scheme != uri.FileScheme {
		return string(u)
	}
	return filepath.Clean(filepath.FromSlash(parsed.Path))
}

// GetDiagnostics returns the cached diagnostics for path.
func (m *Manager) GetDiagnostics(path string) []protocol.Diagnostic {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.diagnostics[m.absPath(path)]
	if !ok {
		return nil
	}
	return append([]protocol.Diagnostic(nil), set.Diagnostics...)
}

// GetAllDiagnostics returns every cached set, sorted by path.
func (m *Manager) GetAllDiagnostics() []DiagnosticSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sets := make([]DiagnosticSet, 0, len(m.diagnostics))
	for _, set := range m.diagnostics {
		set.Diagnostics = append([]protocol.Diagnostic(nil), set.Diagnostics...)
		sets = append(sets, set)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].FilePath < sets[j].FilePath })
	return sets
}

// GetDiagnosticsSummary buckets every cached diagnostic by severity.
func (m *Manager) GetDiagnosticsSummary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s Summary
	for path, counts := range m.severity {
		n := len(m.diagnostics[path].Diagnostics)
		if n == 0 {
			continue
		}
		s.Files++
		s.Total += n
		s.Errors += counts.errors
		s.Warnings += counts.warnings
		s.Info += counts.info
		s.Hints += counts.hints
	}
	return s
}

// GetFilesWithErrors lists files with at least one error, sorted.
func (m *Manager) GetFilesWithErrors() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var files []string
	for path, counts := range m.severity {
		if counts.errors > 0 {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files
}

// Root returns the workspace root the manager is bound to.
func (m *Manager) Root() string {
	return m.root
}
