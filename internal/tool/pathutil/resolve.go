// Package pathutil keeps tool paths inside the workspace.
package pathutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Resolver resolves tool paths against a canonical workspace root.
type Resolver struct {
	root string
}

// NewResolver canonicalises root (absolute, symlinks resolved) and returns
// a resolver bound to it.
func NewResolver(root string) (*Resolver, error) {
	canonical, err := CanonicaliseRoot(root)
	if err != nil {
		return nil, err
	}
	return &Resolver{root: canonical}, nil
}

// CanonicaliseRoot makes root absolute and resolves symlinks. The result
// must be an existing directory.
func CanonicaliseRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", &WorkspaceRootError{Root: root, Cause: err}
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", &WorkspaceRootError{Root: abs, Cause: err}
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", &WorkspaceRootError{Root: resolved, Cause: err}
	}
	if !info.IsDir() {
		return "", &WorkspaceRootError{Root: resolved, Cause: &NotADirectoryError{Path: resolved}}
	}
	return resolved, nil
}

// Root returns the canonical workspace root.
func (r *Resolver) Root() string {
	return r.root
}

// Abs resolves path (relative to the root, or absolute) and rejects it if
// it lands outside the root, either lexically or through a symlink. The
// path does not need to exist.
func (r *Resolver) Abs(path string) (string, error) {
	var abs string
	if filepath.IsAbs(path) {
		abs = filepath.Clean(path)
	} else {
		abs = filepath.Join(r.root, path)
	}
	if !r.within(abs) {
		return "", &OutsideWorkspaceError{Path: path}
	}

	resolved, err := evalExisting(abs)
	if err != nil {
		return "", err
	}
	if !r.within(resolved) {
		return "", &OutsideWorkspaceError{Path: path}
	}
	return abs, nil
}

// Rel returns path relative to the root in slash form; the root itself is ".".
func (r *Resolver) Rel(path string) (string, error) {
	abs, err := r.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return "", &OutsideWorkspaceError{Path: path}
	}
	return filepath.ToSlash(rel), nil
}

// Resolve returns both forms of path.
func (r *Resolver) Resolve(path string) (abs, rel string, err error) {
	abs, err = r.Abs(path)
	if err != nil {
		return "", "", err
	}
	rel, err = r.Rel(abs)
	if err != nil {
		return "", "", err
	}
	return abs, rel, nil
}

func (r *Resolver) within(abs string) bool {
	return abs == r.root || strings.HasPrefix(abs, r.root+string(filepath.Separator))
}

// evalExisting resolves symlinks in the longest existing prefix of abs and
// re-appends the missing tail.
func evalExisting(abs string) (string, error) {
	var tail []string
	current := abs
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return abs, nil
		}
		tail = append([]string{filepath.Base(current)}, tail...)
		current = parent
	}
}
