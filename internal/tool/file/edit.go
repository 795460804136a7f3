package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/Cyclone1070/coda/internal/config"
	"github.com/Cyclone1070/coda/internal/tool"
	"github.com/Cyclone1070/coda/internal/tool/fsutil"
)

// EditFileTool replaces exact text in a file that was read earlier.
type EditFileTool struct {
	resolver pathResolver
	tracker  *ReadTracker
	config   *config.Config
}

// NewEditFileTool creates an EditFileTool with injected dependencies.
func NewEditFileTool(resolver pathResolver, tracker *ReadTracker, cfg *config.Config) *EditFileTool {
	if resolver == nil {
		panic("resolver is required")
	}
	if tracker == nil {
		panic("tracker is required")
	}
	if cfg == nil {
		panic("config is required")
	}
	return &EditFileTool{resolver: resolver, tracker: tracker, config: cfg}
}

func (t *EditFileTool) Declaration() tool.Declaration {
	return tool.Declaration{
		Name:        "edit_file",
		Description: "Replace an exact snippet in a file. The file must have been read with read_file first. old_string must match exactly once unless replace_all is true.",
		Parameters: &tool.Schema{
			Type: tool.TypeObject,
			Properties: map[string]*tool.Schema{
				"path":        {Type: tool.TypeString, Description: "Path to the file, relative to the workspace root"},
				"old_string":  {Type: tool.TypeString, Description: "Exact text to replace"},
				"new_string":  {Type: tool.TypeString, Description: "Replacement text"},
				"replace_all": {Type: tool.TypeBoolean, Description: "Replace every occurrence instead of requiring a unique match"},
			},
			Required: []string{"path", "old_string", "new_string"},
		},
	}
}

func (t *EditFileTool) Category() tool.Category {
	return tool.ApprovalRequired
}

// Validate enforces read-before-edit: the target must be in the ReadTracker.
func (t *EditFileTool) Validate(args map[string]any) error {
	_, _, err := t.prepare(args)
	return err
}

// Preview renders the pending edit as a unified diff.
func (t *EditFileTool) Preview(args map[string]any) string {
	req, abs, err := t.prepare(args)
	if err != nil {
		return ""
	}
	_, rel, _ := t.resolver.Resolve(abs)
	data, err := os.ReadFile(abs)
	if err != nil {
		return ""
	}
	old := normalizeNewlines(string(data))
	updated, _, err := replace(old, req)
	if err != nil {
		return ""
	}
	return unifiedDiff(rel, old, updated).Diff
}

func (t *EditFileTool) prepare(args map[string]any) (*EditFileRequest, string, error) {
	var req EditFileRequest
	if err := tool.DecodeArgs(args, &req); err != nil {
		return nil, "", err
	}
	if err := req.Validate(t.config); err != nil {
		return nil, "", err
	}
	abs, _, err := t.resolver.Resolve(req.Path)
	if err != nil {
		return nil, "", err
	}
	if !t.tracker.HasRead(abs) {
		return nil, "", fmt.Errorf("%w: %s", ErrNotRead, req.Path)
	}
	return &req, abs, nil
}

// Execute applies the replacement and writes the file atomically. Line
// endings are matched on normalized content and restored on write.
func (t *EditFileTool) Execute(ctx context.Context, args map[string]any) (tool.Result, error) {
	req, abs, err := t.prepare(args)
	if err != nil {
		return tool.Failed("%v", err), nil
	}
	_, rel, _ := t.resolver.Resolve(abs)

	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return tool.Failed("%v: %s", ErrFileMissing, rel), nil
	}
	if err != nil {
		return tool.Failed("failed to stat %s: %v", rel, err), nil
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return tool.Failed("failed to read %s: %v", rel, err), nil
	}
	if !t.tracker.Matches(abs, data) {
		return tool.Failed("%v: %s", ErrEditConflict, rel), nil
	}

	raw := string(data)
	hasCRLF := strings.Contains(raw, "\r\n")
	old := normalizeNewlines(raw)

	updated, count, err := replace(old, req)
	if err != nil {
		return tool.Failed("%v in %s", err, rel), nil
	}

	final := updated
	if hasCRLF {
		final = strings.ReplaceAll(updated, "\n", "\r\n")
	}
	if int64(len(final)) > t.config.Tools.MaxFileSize {
		return tool.Failed("%v after edit: %s (size %d, limit %d)", ErrFileTooLarge, rel, len(final), t.config.Tools.MaxFileSize), nil
	}

	if err := fsutil.WriteFileAtomic(abs, []byte(final), info.Mode().Perm()); err != nil {
		return tool.Failed("failed to write %s: %v", rel, err), nil
	}
	t.tracker.Refresh(abs, []byte(final))

	return tool.Result{
		Success: true,
		Message: fmt.Sprintf("Edited %s (%d replacement(s))", rel, count),
		Display: unifiedDiff(rel, old, updated),
	}, nil
}

func replace(content string, req *EditFileRequest) (string, int, error) {
	oldString := normalizeNewlines(req.OldString)
	newString := normalizeNewlines(req.NewString)

	count := strings.Count(content, oldString)
	switch {
	case count == 0:
		return "", 0, ErrSnippetNotFound
	case count > 1 && !req.ReplaceAll:
		return "", 0, fmt.Errorf("%w: found %d matches; add surrounding context or set replace_all", ErrSnippetNotUnique, count)
	}
	if req.ReplaceAll {
		return strings.ReplaceAll(content, oldString, newString), count, nil
	}
	return strings.Replace(content, oldString, newString, 1), 1, nil
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
