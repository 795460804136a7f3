// Package ignore answers whether a workspace path is excluded by the
// workspace .gitignore.
package ignore

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Matcher matches slash-separated paths relative to the workspace root.
type Matcher struct {
	matcher gitignore.Matcher
}

// Load reads <root>/.gitignore. A missing file yields a matcher that only
// ignores the .git directory.
func Load(root string) (*Matcher, error) {
	path := filepath.Join(root, ".gitignore")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read .gitignore at %s: %w", path, err)
	}
	return Parse(data), nil
}

// Parse builds a matcher from .gitignore content.
func Parse(data []byte) *Matcher {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return New(lines)
}

// New builds a matcher from gitignore pattern lines. Blank lines and
// comments are skipped.
func New(lines []string) *Matcher {
	patterns := []gitignore.Pattern{gitignore.ParsePattern(".git", nil)}
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return &Matcher{matcher: gitignore.NewMatcher(patterns)}
}

// Match reports whether rel is ignored. A nil Matcher ignores nothing.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m == nil || m.matcher == nil {
		return false
	}
	segments := splitPath(rel)
	if len(segments) == 0 {
		return false
	}
	return m.matcher.Match(segments, isDir)
}

// splitPath splits a path into segments, dropping empty and "." parts.
func splitPath(path string) []string {
	var segments []string
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part != "" && part != "." {
			segments = append(segments, part)
		}
	}
	return segments
}
