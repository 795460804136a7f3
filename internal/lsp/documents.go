package lsp

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// fullChange replaces the whole document. protocol.TextDocumentContentChangeEvent
// always serialises a range, which servers read as an incremental edit.
type fullChange struct {
	Text string `json:"text"`
}

type didChangeParams struct {
	TextDocument   protocol.VersionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []fullChange                             `json:"contentChanges"`
}

// OpenDocument sends the file at version 1. A document that is already open
// is updated instead.
func (m *Manager) OpenDocument(ctx context.Context, path string) error {
	client, srv, err := m.session()
	if err != nil {
		return err
	}
	abs := m.absPath(path)

	m.mu.Lock()
	_, open := m.versions[abs]
	if !open {
		m.versions[abs] = 1
		delete(m.closed, abs)
	}
	m.mu.Unlock()
	if open {
		return m.UpdateDocument(ctx, path)
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		m.forget(abs)
		return fmt.Errorf("open document: %w", err)
	}

	err = client.Notify(ctx, protocol.MethodTextDocumentDidOpen, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        uri.File(abs),
			LanguageID: srv.LanguageID(abs),
			Version:    1,
			Text:       string(content),
		},
	})
	if err != nil {
		m.forget(abs)
		return err
	}
	m.log.Debug("document opened", "path", abs)
	return nil
}

// UpdateDocument rereads the file and resends its full content at the next
// version. A document that is not open is opened.
func (m *Manager) UpdateDocument(ctx context.Context, path string) error {
	client, _, err := m.session()
	if err != nil {
		return err
	}
	abs := m.absPath(path)

	content, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}

	m.mu.Lock()
	version, open := m.versions[abs]
	if open {
		version++
		m.versions[abs] = version
	}
	m.mu.Unlock()
	if !open {
		return m.OpenDocument(ctx, path)
	}

	return client.Notify(ctx, protocol.MethodTextDocumentDidChange, &didChangeParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri.File(abs)},
			Version:                version,
		},
		ContentChanges: []fullChange{{Text: string(content)}},
	})
}

// CloseDocument closes the document and evicts its version and diagnostics.
// Later pushes for it are ignored until it is opened again.
func (m *Manager) CloseDocument(ctx context.Context, path string) error {
	client, _, err := m.session()
	if err != nil {
		return err
	}
	abs := m.absPath(path)

	m.mu.Lock()
	_, open := m.versions[abs]
	delete(m.versions, abs)
	delete(m.diagnostics, abs)
	delete(m.severity, abs)
	if open {
		m.closed[abs] = struct{}{}
	}
	m.mu.Unlock()
	if !open {
		return nil
	}

	return client.Notify(ctx, protocol.MethodTextDocumentDidClose, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri.File(abs)},
	})
}

// DocumentVersion returns the tracked version of an open document.
func (m *Manager) DocumentVersion(path string) (int32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.versions[m.absPath(path)]
	return v, ok
}

func (m *Manager) forget(abs string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.versions, abs)
	delete(m.diagnostics, abs)
	delete(m.severity, abs)
}

// AnalyzeFile opens or updates path, waits for the settle delay and returns
// whatever diagnostics the server has published for it by then.
func (m *Manager) AnalyzeFile(ctx context.Context, path string) ([]protocol.Diagnostic, error) {
	if err := m.OpenDocument(ctx, path); err != nil {
		return nil, err
	}
	if err := m.settle(ctx); err != nil {
		return nil, err
	}
	return m.GetDiagnostics(path), nil
}

// WorkspaceAnalysis is the outcome of AnalyzeWorkspace.
type WorkspaceAnalysis struct {
	Pattern  string
	Analyzed int
	// Skipped counts matches the server does not handle or failed to open.
	Skipped   int
	Truncated bool
	Summary   Summary
	// Diagnostics holds the analysed files that have diagnostics.
	Diagnostics []DiagnosticSet
	Message     string
}

// AnalyzeWorkspace opens every workspace file matching pattern, waits once
// for the settle delay and summarises the result. No matches is not an
// error.
func (m *Manager) AnalyzeWorkspace(ctx context.Context, pattern string) (WorkspaceAnalysis, error) {
	result := WorkspaceAnalysis{Pattern: pattern}
	if !doublestar.ValidatePattern(pattern) {
		return result, fmt.Errorf("%w: %s", ErrInvalidPattern, pattern)
	}

	files, truncated, err := m.matchFiles(ctx, pattern)
	if err != nil {
		return result, err
	}
	result.Truncated = truncated
	if len(files) == 0 {
		result.Message = fmt.Sprintf("No files found matching pattern %q.", pattern)
		return result, nil
	}

	_, srv, err := m.session()
	if err != nil {
		return result, err
	}

	var analyzed []string
	for _, rel := range files {
		if !srv.Handles(filepath.Ext(rel)) {
			result.Skipped++
			continue
		}
		if err := m.OpenDocument(ctx, rel); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			m.log.Warn("skipping file", "path", rel, "error", err)
			result.Skipped++
			continue
		}
		analyzed = append(analyzed, rel)
	}
	result.Analyzed = len(analyzed)
	if result.Analyzed == 0 {
		result.Message = fmt.Sprintf("%d file(s) match %q but none are handled by the %s language server.", len(files), pattern, srv.Name)
		return result, nil
	}

	if err := m.settle(ctx); err != nil {
		return result, err
	}

	m.mu.RLock()
	for _, rel := range analyzed {
		abs := m.absPath(rel)
		set, ok := m.diagnostics[abs]
		if !ok || len(set.Diagnostics) == 0 {
			continue
		}
		counts := m.severity[abs]
		result.Summary.Files++
		result.Summary.Total += len(set.Diagnostics)
		result.Summary.Errors += counts.errors
		result.Summary.Warnings += counts.warnings
		result.Summary.Info += counts.info
		result.Summary.Hints += counts.hints
		set.Diagnostics = append([]protocol.Diagnostic(nil), set.Diagnostics...)
		result.Diagnostics = append(result.Diagnostics, set)
	}
	m.mu.RUnlock()

	sort.Slice(result.Diagnostics, func(i, j int) bool {
		return result.Diagnostics[i].FilePath < result.Diagnostics[j].FilePath
	})
	result.Message = fmt.Sprintf("Analyzed %d file(s). %s", result.Analyzed, result.Summary)
	return result, nil
}

func (m *Manager) settle(ctx context.Context) error {
	timer := time.NewTimer(m.opts.SettleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// matchFiles walks the workspace for files matching pattern, skipping
// .git, node_modules and ignored paths. A pattern without a slash matches
// base names. At most MaxScanFiles paths are returned.
func (m *Manager) matchFiles(ctx context.Context, pattern string) ([]string, bool, error) {
	basename := !strings.Contains(pattern, "/")
	var files []string
	truncated := false

	err := filepath.WalkDir(m.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != m.root {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == m.root {
			return nil
		}
		rel, err := filepath.Rel(m.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if skipDirs[d.Name()] || (m.ignore != nil && m.ignore.Match(rel, true)) {
				return filepath.SkipDir
			}
			return nil
		}
		if m.ignore != nil && m.ignore.Match(rel, false) {
			return nil
		}

		subject := rel
		if basename {
			subject = d.Name()
		}
		if !doublestar.MatchUnvalidated(pattern, subject) {
			return nil
		}
		if len(files) >= m.opts.MaxScanFiles {
			truncated = true
			return filepath.SkipAll
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return files, truncated, nil
}
