package directory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Cyclone1070/coda/internal/config"
	"github.com/Cyclone1070/coda/internal/tool"
	"github.com/Cyclone1070/coda/internal/tool/paginationutil"
)

// ListFilesTool lists directory contents, optionally recursively.
type ListFilesTool struct {
	resolver pathResolver
	ignore   ignoreMatcher
	config   *config.Config
	root     string
}

// NewListFilesTool creates a ListFilesTool. ignore may be nil.
func NewListFilesTool(resolver pathResolver, ignore ignoreMatcher, cfg *config.Config) *ListFilesTool {
	if resolver == nil {
		panic("resolver is required")
	}
	if cfg == nil {
		panic("config is required")
	}
	root, _, err := resolver.Resolve(".")
	if err != nil {
		panic(fmt.Sprintf("resolving workspace root: %v", err))
	}
	return &ListFilesTool{resolver: resolver, ignore: ignore, config: cfg, root: root}
}

func (t *ListFilesTool) Declaration() tool.Declaration {
	return tool.Declaration{
		Name:        "list_files",
		Description: "List files and directories. Directories are listed first and end with '/'. Gitignored paths are skipped unless include_ignored is set.",
		Parameters: &tool.Schema{
			Type: tool.TypeObject,
			Properties: map[string]*tool.Schema{
				"path":            {Type: tool.TypeString, Description: "Directory to list, relative to the workspace root (default: root)"},
				"max_depth":       {Type: tool.TypeInteger, Description: "0 lists immediate children only, negative recurses without limit"},
				"include_ignored": {Type: tool.TypeBoolean, Description: "Include gitignored paths"},
				"offset":          {Type: tool.TypeInteger, Description: "Number of entries to skip"},
				"limit":           {Type: tool.TypeInteger, Description: "Maximum number of entries to return"},
			},
		},
	}
}

func (t *ListFilesTool) Category() tool.Category {
	return tool.Safe
}

func (t *ListFilesTool) Execute(ctx context.Context, args map[string]any) (tool.Result, error) {
	var req ListFilesRequest
	if err := tool.DecodeArgs(args, &req); err != nil {
		return tool.Failed("%v", err), nil
	}
	if err := req.Validate(t.config); err != nil {
		return tool.Failed("%v", err), nil
	}

	abs, rel, err := t.resolver.Resolve(defaultPath(req.Path))
	if err != nil {
		return tool.Failed("%v", err), nil
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return tool.Failed("%v: %s", ErrPathMissing, rel), nil
	}
	if err != nil {
		return tool.Failed("failed to stat %s: %v", rel, err), nil
	}
	if !info.IsDir() {
		return tool.Failed("%v: %s", ErrNotADirectory, rel), nil
	}

	maxDepth := req.MaxDepth
	if maxDepth < 0 {
		maxDepth = -1
	}
	w := &lister{
		tool:           t,
		includeIgnored: req.IncludeIgnored,
		maxDepth:       maxDepth,
		maxResults:     t.config.Tools.MaxListDirectoryLimit,
		visited:        make(map[string]bool),
	}
	if err := w.walk(ctx, abs, 0); err != nil {
		return tool.Result{}, err
	}

	sort.Slice(w.entries, func(i, j int) bool {
		if w.entries[i].IsDir != w.entries[j].IsDir {
			return w.entries[i].IsDir
		}
		return w.entries[i].RelativePath < w.entries[j].RelativePath
	})

	limit := req.limit(t.config)
	page, meta := paginationutil.ApplyPagination(w.entries, req.Offset, limit)

	lines := make([]string, 0, len(page))
	for _, e := range page {
		if e.IsDir {
			lines = append(lines, e.RelativePath+"/")
		} else {
			lines = append(lines, e.RelativePath)
		}
	}

	res := tool.Succeeded(strings.Join(lines, "\n"))
	res.Message = fmt.Sprintf("%d of %d entries in %s", len(page), meta.TotalCount, rel)
	switch {
	case w.capHit:
		res.Message += fmt.Sprintf(". Results capped at %d entries; list a subdirectory instead.", w.maxResults)
	case meta.Truncated:
		res.Message += fmt.Sprintf(". More results at offset %d.", req.Offset+limit)
	case meta.TotalCount == 0:
		res.Message = fmt.Sprintf("%s is empty", rel)
	}
	res.Display = tool.StringDisplay(res.Message)
	return res, nil
}

type lister struct {
	tool           *ListFilesTool
	includeIgnored bool
	maxDepth       int
	maxResults     int
	visited        map[string]bool
	entries        []Entry
	capHit         bool
}

func (w *lister) walk(ctx context.Context, abs string, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.maxDepth >= 0 && depth > w.maxDepth {
		return nil
	}

	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		canonical = abs
	}
	if w.visited[canonical] {
		return nil
	}
	w.visited[canonical] = true

	children, err := os.ReadDir(abs)
	if err != nil {
		return fmt.Errorf("failed to list directory %s: %w", abs, err)
	}

	for _, child := range children {
		if len(w.entries) >= w.maxResults {
			w.capHit = true
			return nil
		}

		childAbs := filepath.Join(abs, child.Name())
		rel, err := filepath.Rel(w.tool.root, childAbs)
		if err != nil {
			return fmt.Errorf("failed to relativize %s: %w", childAbs, err)
		}
		rel = filepath.ToSlash(rel)
		isDir := child.IsDir()

		if !w.includeIgnored && w.tool.ignore != nil && w.tool.ignore.Match(rel, isDir) {
			continue
		}

		w.entries = append(w.entries, Entry{RelativePath: rel, IsDir: isDir})
		if isDir {
			if err := w.walk(ctx, childAbs, depth+1); err != nil {
				return err
			}
			if w.capHit {
				return nil
			}
		}
	}
	return nil
}
