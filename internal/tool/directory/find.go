package directory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Cyclone1070/coda/internal/config"
	"github.com/Cyclone1070/coda/internal/tool"
	"github.com/Cyclone1070/coda/internal/tool/paginationutil"
	"github.com/bmatcuk/doublestar/v4"
)

// FindFilesTool finds files by glob pattern. Patterns support ** and brace
// expansion; a pattern without a slash matches file names at any depth.
type FindFilesTool struct {
	resolver pathResolver
	ignore   ignoreMatcher
	config   *config.Config
	root     string
}

// NewFindFilesTool creates a FindFilesTool. ignore may be nil.
func NewFindFilesTool(resolver pathResolver, ignore ignoreMatcher, cfg *config.Config) *FindFilesTool {
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
	return &FindFilesTool{resolver: resolver, ignore: ignore, config: cfg, root: root}
}

func (t *FindFilesTool) Declaration() tool.Declaration {
	return tool.Declaration{
		Name:        "find_files",
		Description: "Find files whose path matches a glob pattern such as '**/*.go' or '*_test.go'. Results are sorted and paginated.",
		Parameters: &tool.Schema{
			Type: tool.TypeObject,
			Properties: map[string]*tool.Schema{
				"pattern":         {Type: tool.TypeString, Description: "Glob pattern; ** matches any number of directories"},
				"path":            {Type: tool.TypeString, Description: "Directory to search, relative to the workspace root (default: root)"},
				"include_ignored": {Type: tool.TypeBoolean, Description: "Include gitignored paths"},
				"offset":          {Type: tool.TypeInteger, Description: "Number of matches to skip"},
				"limit":           {Type: tool.TypeInteger, Description: "Maximum number of matches to return"},
			},
			Required: []string{"pattern"},
		},
	}
}

func (t *FindFilesTool) Category() tool.Category {
	return tool.Safe
}

func (t *FindFilesTool) Execute(ctx context.Context, args map[string]any) (tool.Result, error) {
	var req FindFilesRequest
	if err := tool.DecodeArgs(args, &req); err != nil {
		return tool.Failed("%v", err), nil
	}
	if err := req.Validate(t.config); err != nil {
		return tool.Failed("%v", err), nil
	}
	pattern := filepath.ToSlash(req.Pattern)
	if !doublestar.ValidatePattern(pattern) {
		return tool.Failed("%v: %s", ErrInvalidPattern, req.Pattern), nil
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

	matches, err := Glob(ctx, abs, t.root, pattern, t.matcher(req.IncludeIgnored))
	if err != nil {
		return tool.Result{}, err
	}

	limit := req.limit(t.config)
	page, meta := paginationutil.ApplyPagination(matches, req.Offset, limit)

	res := tool.Succeeded(strings.Join(page, "\n"))
	switch {
	case meta.TotalCount == 0:
		res.Message = fmt.Sprintf("No files matching %q in %s", req.Pattern, rel)
	case meta.Truncated:
		res.Message = fmt.Sprintf("%d of %d matches. More results at offset %d.", len(page), meta.TotalCount, req.Offset+limit)
	default:
		res.Message = fmt.Sprintf("%d matches", meta.TotalCount)
	}
	res.Display = tool.StringDisplay(res.Message)
	return res, nil
}

func (t *FindFilesTool) matcher(includeIgnored bool) ignoreMatcher {
	if includeIgnored {
		return nil
	}
	return t.ignore
}

// Glob walks dir and returns the sorted workspace-relative paths of regular
// files matching pattern. The pattern is matched against the path relative
// to dir, or against the base name when it contains no slash. Ignored
// directories are pruned. ignore may be nil.
func Glob(ctx context.Context, dir, root, pattern string, ignore ignoreMatcher) ([]string, error) {
	nameOnly := !strings.Contains(pattern, "/")
	var matches []string

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == dir {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if ignore != nil && ignore.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		local, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		subject := filepath.ToSlash(local)
		if nameOnly {
			subject = path.Base(subject)
		}
		if doublestar.MatchUnvalidated(pattern, subject) {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(matches)
	return matches, nil
}
