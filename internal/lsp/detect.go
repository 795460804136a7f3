package lsp

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
)

// skipDirs are never scanned or analysed.
var skipDirs = map[string]bool{".git": true, "node_modules": true}

// ignoreMatcher reports whether a workspace-relative path is ignored.
type ignoreMatcher interface {
	Match(rel string, isDir bool) bool
}

// errScanLimit stops a walk once enough files have been seen.
var errScanLimit = errors.New("scan limit reached")

// scanExtensions counts file extensions under root, descending at most
// maxDepth directories and stopping after maxFiles files.
func scanExtensions(root string, ignore ignoreMatcher, maxDepth, maxFiles int) map[string]int {
	counts := make(map[string]int)
	seen := 0
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if skipDirs[d.Name()] || strings.Count(rel, "/")+1 > maxDepth || (ignore != nil && ignore.Match(rel, true)) {
				return filepath.SkipDir
			}
			return nil
		}
		if ignore != nil && ignore.Match(rel, false) {
			return nil
		}
		if ext := strings.ToLower(filepath.Ext(d.Name())); ext != "" {
			counts[ext]++
		}
		seen++
		if seen >= maxFiles {
			return errScanLimit
		}
		return nil
	})
	return counts
}

// detection is the server chosen for a workspace and its executable.
type detection struct {
	server ServerDef
	path   string
}

// detect picks the first server in table order that handles an extension
// present in the workspace and is installed. When none matches, the first
// installed server is used.
func detect(root string, servers []ServerDef, ignore ignoreMatcher, maxDepth, maxFiles int, lookPath LookPathFunc) (detection, error) {
	exts := scanExtensions(root, ignore, maxDepth, maxFiles)

	for _, srv := range servers {
		if !handlesAny(srv, exts) {
			continue
		}
		if path, ok := findExecutable(root, srv.Command, lookPath); ok {
			return detection{server: srv, path: path}, nil
		}
	}
	for _, srv := range servers {
		if path, ok := findExecutable(root, srv.Command, lookPath); ok {
			return detection{server: srv, path: path}, nil
		}
	}
	return detection{}, ErrNoServerDetected
}

func handlesAny(srv ServerDef, exts map[string]int) bool {
	for ext := range exts {
		if srv.Handles(ext) {
			return true
		}
	}
	return false
}
