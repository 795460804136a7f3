package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Cyclone1070/coda/internal/logger"
	rpc "github.com/Cyclone1070/coda/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

func TestMain(m *testing.M) {
	logger.Reset()
	logger.Init(os.DevNull)
	os.Exit(m.Run())
}

// fakeServer is an in-process language server. It publishes the configured
// diagnostics whenever a document is opened or changed.
type fakeServer struct {
	mu      sync.Mutex
	conn    jsonrpc2.Conn
	methods []string
	publish map[string][]protocol.Diagnostic
	changes []didChangeParams
}

func newFakeServer() *fakeServer {
	return &fakeServer{publish: make(map[string][]protocol.Diagnostic)}
}

func (f *fakeServer) launch(_ context.Context, spec rpc.Spec) (*rpc.Client, error) {
	clientSide, serverSide := net.Pipe()
	conn := jsonrpc2.NewConn(rpc.NewStream(serverSide, rpc.FramingHeader))
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	conn.Go(context.Background(), f.handle)
	return rpc.New(clientSide, rpc.FramingHeader, spec.Name), nil
}

func (f *fakeServer) setDiagnostics(path string, diags ...protocol.Diagnostic) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publish[path] = diags
}

func (f *fakeServer) server() jsonrpc2.Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn
}

func (f *fakeServer) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.methods...)
}

func (f *fakeServer) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	f.mu.Lock()
	f.methods = append(f.methods, req.Method())
	f.mu.Unlock()

	switch req.Method() {
	case protocol.MethodInitialize:
		return reply(ctx, protocol.InitializeResult{}, nil)
	case protocol.MethodTextDocumentDidOpen:
		var params protocol.DidOpenTextDocumentParams
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return err
		}
		return f.publishFor(ctx, params.TextDocument.URI)
	case protocol.MethodTextDocumentDidChange:
		var params didChangeParams
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return err
		}
		f.mu.Lock()
		f.changes = append(f.changes, params)
		f.mu.Unlock()
		return f.publishFor(ctx, params.TextDocument.URI)
	}
	return reply(ctx, nil, nil)
}

func (f *fakeServer) publishFor(ctx context.Context, u protocol.DocumentURI) error {
	f.mu.Lock()
	diags, ok := f.publish[pathFromURI(u)]
	conn := f.conn
	f.mu.Unlock()
	if !ok {
		diags = []protocol.Diagnostic{}
	}
	return conn.Notify(ctx, protocol.MethodTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         u,
		Diagnostics: diags,
	})
}

func contains(list []string, s string) bool {
	return slices.Contains(list, s)
}

func onlyInstalled(names ...string) LookPathFunc {
	return func(name string) (string, error) {
		for _, n := range names {
			if n == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", exec.ErrNotFound
	}
}

func workspace(t *testing.T, files map[string]string) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	for rel, content := range files {
		abs := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
	return root
}

func newTestManager(t *testing.T, root string, server *fakeServer) *Manager {
	t.Helper()
	m := NewManager(root, nil, Options{
		SettleDelay: 100 * time.Millisecond,
		LookPath:    onlyInstalled("gopls"),
		Launch:      server.launch,
	})
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m
}

func diag(line uint32, sev protocol.DiagnosticSeverity, msg string) protocol.Diagnostic {
	return protocol.Diagnostic{
		Range:    protocol.Range{Start: protocol.Position{Line: line, Character: 4}},
		Severity: sev,
		Message:  msg,
		Source:   "compiler",
	}
}

func TestStart_Handshake(t *testing.T) {
	root := workspace(t, map[string]string{"main.go": "package main\n"})
	server := newFakeServer()
	m := newTestManager(t, root, server)

	require.NoError(t, m.Start(context.Background()))

	assert.True(t, m.Running())
	assert.Equal(t, "go", m.ServerName())
	assert.Eventually(t, func() bool { return len(server.calls()) == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{protocol.MethodInitialize, protocol.MethodInitialized}, server.calls())

	require.NoError(t, m.Start(context.Background()), "starting twice is a no-op")
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, server.calls(), 2)
}

func TestAnalyzeFile(t *testing.T) {
	root := workspace(t, map[string]string{"main.go": "package main\n"})
	server := newFakeServer()
	abs := filepath.Join(root, "main.go")
	server.setDiagnostics(abs,
		diag(2, protocol.DiagnosticSeverityError, "undefined: x"),
		diag(5, protocol.DiagnosticSeverityWarning, "unused variable"),
	)
	m := newTestManager(t, root, server)
	require.NoError(t, m.Start(context.Background()))

	diags, err := m.AnalyzeFile(context.Background(), "main.go")
	require.NoError(t, err)
	assert.Len(t, diags, 2)
	version, open := m.DocumentVersion("main.go")
	assert.True(t, open)
	assert.Equal(t, int32(1), version)

	require.NoError(t, os.WriteFile(abs, []byte("package main\n\nfunc main() {}\n"), 0o644))
	server.setDiagnostics(abs, diag(2, protocol.DiagnosticSeverityHint, "simplify"))

	diags, err = m.AnalyzeFile(context.Background(), "main.go")
	require.NoError(t, err)
	require.Len(t, diags, 1, "a new publish replaces the cached set")
	assert.Equal(t, "simplify", diags[0].Message)
	version, _ = m.DocumentVersion("main.go")
	assert.Equal(t, int32(2), version)

	server.mu.Lock()
	changes := server.changes
	server.mu.Unlock()
	require.Len(t, changes, 1)
	assert.Equal(t, int32(2), changes[0].TextDocument.Version)
	assert.Equal(t, "package main\n\nfunc main() {}\n", changes[0].ContentChanges[0].Text)
}

func TestAnalyzeFile_ContextCancelled(t *testing.T) {
	root := workspace(t, map[string]string{"main.go": "package main\n"})
	m := NewManager(root, nil, Options{
		SettleDelay: time.Minute,
		LookPath:    onlyInstalled("gopls"),
		Launch:      newFakeServer().launch,
	})
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	require.NoError(t, m.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := m.AnalyzeFile(ctx, "main.go")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseDocument_EvictsDiagnostics(t *testing.T) {
	root := workspace(t, map[string]string{"main.go": "package main\n"})
	server := newFakeServer()
	server.setDiagnostics(filepath.Join(root, "main.go"), diag(0, protocol.DiagnosticSeverityError, "boom"))
	m := newTestManager(t, root, server)
	require.NoError(t, m.Start(context.Background()))

	_, err := m.AnalyzeFile(context.Background(), "main.go")
	require.NoError(t, err)
	require.Len(t, m.GetDiagnostics("main.go"), 1)

	require.NoError(t, m.CloseDocument(context.Background(), "main.go"))

	assert.Empty(t, m.GetDiagnostics("main.go"))
	assert.Empty(t, m.GetFilesWithErrors())
	_, open := m.DocumentVersion("main.go")
	assert.False(t, open)
	assert.Eventually(t, func() bool { return contains(server.calls(), protocol.MethodTextDocumentDidClose) }, time.Second, 10*time.Millisecond)
}

func TestCloseDocument_IgnoresLatePushes(t *testing.T) {
	root := workspace(t, map[string]string{"main.go": "package main\n"})
	abs := filepath.Join(root, "main.go")
	server := newFakeServer()
	server.setDiagnostics(abs, diag(0, protocol.DiagnosticSeverityError, "boom"))
	m := newTestManager(t, root, server)
	require.NoError(t, m.Start(context.Background()))

	_, err := m.AnalyzeFile(context.Background(), "main.go")
	require.NoError(t, err)
	require.NoError(t, m.CloseDocument(context.Background(), "main.go"))

	push := func(path string, diags ...protocol.Diagnostic) {
		err := server.server().Notify(context.Background(), protocol.MethodTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
			URI:         uri.File(path),
			Diagnostics: diags,
		})
		require.NoError(t, err)
	}
	push(abs)
	push(abs, diag(0, protocol.DiagnosticSeverityError, "late"))
	// Notifications are handled in order, so once this one lands the
	// pushes for the closed file have been processed.
	other := filepath.Join(root, "other.go")
	push(other, diag(0, protocol.DiagnosticSeverityWarning, "marker"))
	require.Eventually(t, func() bool { return len(m.GetDiagnostics(other)) == 1 }, time.Second, 10*time.Millisecond)

	assert.Empty(t, m.GetDiagnostics(abs))
	for _, set := range m.GetAllDiagnostics() {
		assert.NotEqual(t, abs, set.FilePath)
	}
	assert.Empty(t, m.GetFilesWithErrors())

	// Reopening accepts pushes again.
	diags, err := m.AnalyzeFile(context.Background(), "main.go")
	require.NoError(t, err)
	assert.Len(t, diags, 1)
}

func TestDiagnosticsSummary_BucketsSumToTotal(t *testing.T) {
	root := workspace(t, map[string]string{"a.go": "package a\n", "b.go": "package a\n", "c.go": "package a\n"})
	server := newFakeServer()
	server.setDiagnostics(filepath.Join(root, "a.go"),
		diag(0, protocol.DiagnosticSeverityError, "e"),
		diag(1, protocol.DiagnosticSeverityWarning, "w"),
		diag(2, protocol.DiagnosticSeverityInformation, "i"),
		diag(3, protocol.DiagnosticSeverityHint, "h"),
		diag(4, 0, "no severity"),
	)
	server.setDiagnostics(filepath.Join(root, "b.go"), diag(0, protocol.DiagnosticSeverityWarning, "w"))
	m := newTestManager(t, root, server)
	require.NoError(t, m.Start(context.Background()))

	res, err := m.AnalyzeWorkspace(context.Background(), "**/*.go")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Analyzed)

	for _, s := range []Summary{m.GetDiagnosticsSummary(), res.Summary} {
		assert.Equal(t, 6, s.Total)
		assert.Equal(t, s.Total, s.Errors+s.Warnings+s.Info+s.Hints)
		assert.Equal(t, 2, s.Errors)
		assert.Equal(t, 2, s.Warnings)
		assert.Equal(t, 2, s.Files)
	}
	assert.Equal(t, []string{filepath.Join(root, "a.go")}, m.GetFilesWithErrors())
	assert.Len(t, m.GetAllDiagnostics(), 3, "files without diagnostics still have an empty set")
	require.Len(t, res.Diagnostics, 2)
	assert.Equal(t, filepath.Join(root, "a.go"), res.Diagnostics[0].FilePath)
}

func TestAnalyzeWorkspace_NoMatches(t *testing.T) {
	root := workspace(t, map[string]string{"main.go": "package main\n"})
	m := NewManager(root, nil, Options{LookPath: onlyInstalled()})

	res, err := m.AnalyzeWorkspace(context.Background(), "**/*.ts")

	require.NoError(t, err)
	assert.Equal(t, 0, res.Analyzed)
	assert.Contains(t, res.Message, "No files found matching pattern")
}

func TestAnalyzeWorkspace_SkipsUnhandledAndVendoredFiles(t *testing.T) {
	root := workspace(t, map[string]string{
		"main.go":                  "package main\n",
		"README.md":                "# readme\n",
		"node_modules/dep/dep.go":  "package dep\n",
		".git/hooks/pre-commit.go": "package hooks\n",
	})
	m := newTestManager(t, root, newFakeServer())
	require.NoError(t, m.Start(context.Background()))

	res, err := m.AnalyzeWorkspace(context.Background(), "**/*")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Analyzed)
	assert.Equal(t, 1, res.Skipped)

	res, err = m.AnalyzeWorkspace(context.Background(), "*.md")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Analyzed)
	assert.Contains(t, res.Message, "none are handled")

	_, err = m.AnalyzeWorkspace(context.Background(), "[")
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestAnalyzeWorkspace_NotStarted(t *testing.T) {
	root := workspace(t, map[string]string{"main.go": "package main\n"})
	m := NewManager(root, nil, Options{LookPath: onlyInstalled()})

	_, err := m.AnalyzeWorkspace(context.Background(), "*.go")
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, m.OpenDocument(context.Background(), "main.go"), ErrNotStarted)
}

func TestStop_ClearsStateAndRestartsFresh(t *testing.T) {
	root := workspace(t, map[string]string{"main.go": "package main\n"})
	server := newFakeServer()
	server.setDiagnostics(filepath.Join(root, "main.go"), diag(0, protocol.DiagnosticSeverityError, "boom"))
	m := newTestManager(t, root, server)
	require.NoError(t, m.Start(context.Background()))
	_, err := m.AnalyzeFile(context.Background(), "main.go")
	require.NoError(t, err)

	require.NoError(t, m.Stop(context.Background()))

	assert.False(t, m.Running())
	assert.Empty(t, m.GetAllDiagnostics())
	assert.Equal(t, Summary{}, m.GetDiagnosticsSummary())
	assert.Contains(t, server.calls(), protocol.MethodShutdown)
	assert.Eventually(t, func() bool { return contains(server.calls(), protocol.MethodExit) }, time.Second, 10*time.Millisecond)

	require.NoError(t, m.Start(context.Background()))
	assert.Empty(t, m.GetAllDiagnostics())
	_, open := m.DocumentVersion("main.go")
	assert.False(t, open)
}

func TestStart_Failures(t *testing.T) {
	root := workspace(t, map[string]string{"main.go": "package main\n"})

	t.Run("no server", func(t *testing.T) {
		m := NewManager(root, nil, Options{LookPath: onlyInstalled()})
		var reported []error
		m.OnError(func(err error) { reported = append(reported, err) })

		assert.False(t, m.TryAutoStart(context.Background()))
		assert.Empty(t, reported, "auto-start is silent")

		err := m.Start(context.Background())
		assert.ErrorIs(t, err, ErrNoServerDetected)
		require.Len(t, reported, 1)
		assert.ErrorIs(t, reported[0], ErrNoServerDetected)
	})

	t.Run("spawn failure", func(t *testing.T) {
		spawnErr := errors.New("exec format error")
		m := NewManager(root, nil, Options{
			LookPath: onlyInstalled("gopls"),
			Launch: func(context.Context, rpc.Spec) (*rpc.Client, error) {
				return nil, spawnErr
			},
		})
		var reported error
		m.OnError(func(err error) { reported = err })

		err := m.Start(context.Background())
		assert.ErrorIs(t, err, spawnErr)
		assert.ErrorIs(t, reported, spawnErr)
		assert.False(t, m.Running())
	})
}

func TestServerExitIsReported(t *testing.T) {
	root := workspace(t, map[string]string{"main.go": "package main\n"})
	server := newFakeServer()
	m := newTestManager(t, root, server)
	reported := make(chan error, 1)
	m.OnError(func(err error) { reported <- err })
	require.NoError(t, m.Start(context.Background()))

	require.NoError(t, server.server().Close())

	select {
	case err := <-reported:
		assert.Contains(t, err.Error(), "exited")
	case <-time.After(5 * time.Second):
		t.Fatal("exit was not reported")
	}
	assert.Eventually(t, func() bool { return !m.Running() }, time.Second, 10*time.Millisecond)
}

func TestPublishFromServer(t *testing.T) {
	root := workspace(t, map[string]string{"main.go": "package main\n"})
	server := newFakeServer()
	m := newTestManager(t, root, server)
	require.NoError(t, m.Start(context.Background()))

	abs := filepath.Join(root, "lib.go")
	err := server.server().Notify(context.Background(), protocol.MethodTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri.File(abs),
		Diagnostics: []protocol.Diagnostic{diag(0, protocol.DiagnosticSeverityError, "pushed")},
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(m.GetDiagnostics(abs)) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{abs}, m.GetFilesWithErrors())
}

func TestWorkspaceConfigurationRequest(t *testing.T) {
	root := workspace(t, map[string]string{"main.go": "package main\n"})
	server := newFakeServer()
	m := newTestManager(t, root, server)
	require.NoError(t, m.Start(context.Background()))

	var result []any
	_, err := server.server().Call(context.Background(), protocol.MethodWorkspaceConfiguration,
		map[string]any{"items": []any{map[string]any{"section": "gopls"}, map[string]any{}}}, &result)

	require.NoError(t, err)
	assert.Equal(t, []any{nil, nil}, result)
}
