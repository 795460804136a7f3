package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/Cyclone1070/coda/internal/config"
	"github.com/Cyclone1070/coda/internal/tool"
	"github.com/Cyclone1070/coda/internal/tool/fsutil"
)

// WriteFileTool creates or overwrites workspace files.
type WriteFileTool struct {
	resolver pathResolver
	tracker  *ReadTracker
	config   *config.Config
}

// NewWriteFileTool creates a WriteFileTool with injected dependencies.
func NewWriteFileTool(resolver pathResolver, tracker *ReadTracker, cfg *config.Config) *WriteFileTool {
	if resolver == nil {
		panic("resolver is required")
	}
	if tracker == nil {
		panic("tracker is required")
	}
	if cfg == nil {
		panic("config is required")
	}
	return &WriteFileTool{resolver: resolver, tracker: tracker, config: cfg}
}

func (t *WriteFileTool) Declaration() tool.Declaration {
	return tool.Declaration{
		Name:        "write_file",
		Description: "Write a file in the workspace, creating parent directories as needed. Overwrites existing files; prefer edit_file for small changes.",
		Parameters: &tool.Schema{
			Type: tool.TypeObject,
			Properties: map[string]*tool.Schema{
				"path":    {Type: tool.TypeString, Description: "Path to the file, relative to the workspace root"},
				"content": {Type: tool.TypeString, Description: "Full file content"},
			},
			Required: []string{"path", "content"},
		},
	}
}

func (t *WriteFileTool) Category() tool.Category {
	return tool.ApprovalRequired
}

// Validate rejects malformed requests and paths outside the workspace.
func (t *WriteFileTool) Validate(args map[string]any) error {
	_, _, err := t.prepare(args)
	return err
}

// Preview renders the change as a unified diff.
func (t *WriteFileTool) Preview(args map[string]any) string {
	req, abs, err := t.prepare(args)
	if err != nil {
		return ""
	}
	_, rel, _ := t.resolver.Resolve(abs)
	old, _ := os.ReadFile(abs)
	return unifiedDiff(rel, string(old), req.Content).Diff
}

func (t *WriteFileTool) prepare(args map[string]any) (*WriteFileRequest, string, error) {
	var req WriteFileRequest
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
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return nil, "", fmt.Errorf("%w: %s", ErrIsDirectory, req.Path)
	}
	return &req, abs, nil
}

// Execute writes the file atomically, keeping the mode of an existing file.
func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) (tool.Result, error) {
	req, abs, err := t.prepare(args)
	if err != nil {
		return tool.Failed("%v", err), nil
	}
	_, rel, _ := t.resolver.Resolve(abs)
	content := []byte(req.Content)
	if fsutil.IsBinary(content) {
		return tool.Failed("%v: refusing to write binary content to %s", ErrBinaryFile, rel), nil
	}

	perm := os.FileMode(0o644)
	var old []byte
	existed := false
	if info, err := os.Stat(abs); err == nil {
		perm = info.Mode().Perm()
		existed = true
		old, _ = os.ReadFile(abs)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return tool.Failed("failed to stat %s: %v", rel, err), nil
	}

	if err := fsutil.WriteFileAtomic(abs, content, perm); err != nil {
		return tool.Failed("failed to write %s: %v", rel, err), nil
	}
	t.tracker.Refresh(abs, content)

	verb := "Created"
	if existed {
		verb = "Overwrote"
	}
	res := tool.Result{
		Success: true,
		Message: fmt.Sprintf("%s %s (%d bytes)", verb, rel, len(content)),
		Display: unifiedDiff(rel, string(old), req.Content),
	}
	return res, nil
}
