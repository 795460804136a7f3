package search

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Cyclone1070/coda/internal/config"
	"github.com/Cyclone1070/coda/internal/tool"
	"github.com/Cyclone1070/coda/internal/tool/fsutil"
	"github.com/Cyclone1070/coda/internal/tool/paginationutil"
	"github.com/bmatcuk/doublestar/v4"
)

type pathResolver interface {
	Resolve(path string) (abs, rel string, err error)
}

type ignoreMatcher interface {
	Match(rel string, isDir bool) bool
}

// SearchContentTool searches file contents with a regular expression.
type SearchContentTool struct {
	resolver pathResolver
	ignore   ignoreMatcher
	config   *config.Config
	root     string
}

// NewSearchContentTool creates a SearchContentTool. ignore may be nil.
func NewSearchContentTool(resolver pathResolver, ignore ignoreMatcher, cfg *config.Config) *SearchContentTool {
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
	return &SearchContentTool{resolver: resolver, ignore: ignore, config: cfg, root: root}
}

func (t *SearchContentTool) Declaration() tool.Declaration {
	return tool.Declaration{
		Name:        "search_content",
		Description: "Search file contents with a regular expression (RE2 syntax). Returns file:line: content matches. Case-insensitive unless case_sensitive is set.",
		Parameters: &tool.Schema{
			Type: tool.TypeObject,
			Properties: map[string]*tool.Schema{
				"query":           {Type: tool.TypeString, Description: "Regular expression to search for"},
				"path":            {Type: tool.TypeString, Description: "File or directory to search, relative to the workspace root (default: root)"},
				"include":         {Type: tool.TypeString, Description: "Only search files matching this glob, e.g. '*.go'"},
				"case_sensitive":  {Type: tool.TypeBoolean, Description: "Match case exactly"},
				"include_ignored": {Type: tool.TypeBoolean, Description: "Search gitignored paths too"},
				"offset":          {Type: tool.TypeInteger, Description: "Number of matches to skip"},
				"limit":           {Type: tool.TypeInteger, Description: "Maximum number of matches to return"},
			},
			Required: []string{"query"},
		},
	}
}

func (t *SearchContentTool) Category() tool.Category {
	return tool.Safe
}

func (t *SearchContentTool) Execute(ctx context.Context, args map[string]any) (tool.Result, error) {
	var req SearchContentRequest
	if err := tool.DecodeArgs(args, &req); err != nil {
		return tool.Failed("%v", err), nil
	}
	if err := req.Validate(t.config); err != nil {
		return tool.Failed("%v", err), nil
	}

	expr := req.Query
	if !req.CaseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return tool.Failed("%v: %v", ErrInvalidQuery, err), nil
	}
	if req.Include != "" && !doublestar.ValidatePattern(req.Include) {
		return tool.Failed("%v: %s", ErrInvalidInclude, req.Include), nil
	}

	abs, rel, err := t.resolver.Resolve(req.Path)
	if err != nil {
		return tool.Failed("%v", err), nil
	}
	if _, err := os.Stat(abs); errors.Is(err, fs.ErrNotExist) {
		return tool.Failed("%v: %s", ErrPathMissing, rel), nil
	}

	// Collect one page past the requested window so truncation is known
	// without scanning the whole tree.
	s := &scanner{
		tool:           t,
		re:             re,
		include:        req.Include,
		includeIgnored: req.IncludeIgnored,
		max:            req.Offset + req.Limit + 1,
	}
	if err := s.walk(ctx, abs); err != nil {
		return tool.Result{}, err
	}

	page, meta := paginationutil.ApplyPagination(s.matches, req.Offset, req.Limit)
	out := make([]string, 0, len(page))
	for _, m := range page {
		out = append(out, m.String())
	}

	res := tool.Succeeded(strings.Join(out, "\n"))
	switch {
	case meta.TotalCount == 0:
		res.Message = fmt.Sprintf("No matches for %q", req.Query)
	case meta.Truncated:
		res.Message = fmt.Sprintf("Showing %d matches. More results at offset %d.", len(page), req.Offset+req.Limit)
	default:
		res.Message = fmt.Sprintf("%d matches", len(page))
	}
	res.Display = tool.StringDisplay(res.Message)
	return res, nil
}

type scanner struct {
	tool           *SearchContentTool
	re             *regexp.Regexp
	include        string
	includeIgnored bool
	max            int
	matches        []Match
}

func (s *scanner) full() bool {
	return len(s.matches) >= s.max
}

func (s *scanner) walk(ctx context.Context, start string) error {
	return filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == start {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if s.full() {
			return filepath.SkipAll
		}

		rel, err := filepath.Rel(s.tool.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if p != start && !s.includeIgnored && s.tool.ignore != nil && s.tool.ignore.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if s.include != "" && !doublestar.MatchUnvalidated(s.include, path.Base(rel)) && !doublestar.MatchUnvalidated(s.include, rel) {
			return nil
		}
		return s.scanFile(p, rel)
	})
}

func (s *scanner) scanFile(abs, rel string) error {
	f, err := os.Open(abs)
	if err != nil {
		return nil
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	head, _ := reader.Peek(fsutil.BinarySampleSize)
	if fsutil.IsBinary(head) {
		return nil
	}

	maxLen := s.tool.config.Tools.MaxLineLength
	lines := bufio.NewScanner(reader)
	lines.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for n := 1; lines.Scan(); n++ {
		line := lines.Text()
		if !s.re.MatchString(line) {
			continue
		}
		if len(line) > maxLen {
			line = line[:maxLen] + "..."
		}
		s.matches = append(s.matches, Match{File: rel, LineNumber: n, LineContent: line})
		if s.full() {
			return nil
		}
	}
	return nil
}
