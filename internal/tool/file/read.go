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

// ReadFileTool reads workspace files and records them in the ReadTracker.
type ReadFileTool struct {
	resolver pathResolver
	tracker  *ReadTracker
	config   *config.Config
}

// NewReadFileTool creates a ReadFileTool with injected dependencies.
func NewReadFileTool(resolver pathResolver, tracker *ReadTracker, cfg *config.Config) *ReadFileTool {
	if resolver == nil {
		panic("resolver is required")
	}
	if tracker == nil {
		panic("tracker is required")
	}
	if cfg == nil {
		panic("config is required")
	}
	return &ReadFileTool{resolver: resolver, tracker: tracker, config: cfg}
}

func (t *ReadFileTool) Declaration() tool.Declaration {
	return tool.Declaration{
		Name:        "read_file",
		Description: "Read a text file from the workspace. Use offset and limit (in lines) to page through large files. A file must be read before it can be edited.",
		Parameters: &tool.Schema{
			Type: tool.TypeObject,
			Properties: map[string]*tool.Schema{
				"path":   {Type: tool.TypeString, Description: "Path to the file, relative to the workspace root"},
				"offset": {Type: tool.TypeInteger, Description: "Number of lines to skip"},
				"limit":  {Type: tool.TypeInteger, Description: "Maximum number of lines to return"},
			},
			Required: []string{"path"},
		},
	}
}

func (t *ReadFileTool) Category() tool.Category {
	return tool.Safe
}

// Execute reads the requested line window. The whole file is loaded so the
// tracker always holds the checksum of the complete content.
func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) (tool.Result, error) {
	var req ReadFileRequest
	if err := tool.DecodeArgs(args, &req); err != nil {
		return tool.Failed("%v", err), nil
	}
	if err := req.Validate(t.config); err != nil {
		return tool.Failed("%v", err), nil
	}

	abs, rel, err := t.resolver.Resolve(req.Path)
	if err != nil {
		return tool.Failed("%v", err), nil
	}

	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return tool.Failed("%v: %s", ErrFileMissing, rel), nil
	}
	if err != nil {
		return tool.Failed("failed to stat %s: %v", rel, err), nil
	}
	if info.IsDir() {
		return tool.Failed("%v: %s", ErrIsDirectory, rel), nil
	}
	if info.Size() > t.config.Tools.MaxFileSize {
		return tool.Failed("%v: %s (size %d, limit %d)", ErrFileTooLarge, rel, info.Size(), t.config.Tools.MaxFileSize), nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return tool.Failed("failed to read %s: %v", rel, err), nil
	}
	if fsutil.IsBinary(data) {
		return tool.Failed("%v: %s", ErrBinaryFile, rel), nil
	}
	t.tracker.MarkRead(abs, data)

	lines := strings.SplitAfter(string(data), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	total := len(lines)

	start := min(req.offset(), total)
	end := min(start+req.limit(t.config), total)
	content := strings.Join(lines[start:end], "")

	res := tool.Succeeded(content)
	res.Display = tool.StringDisplay(fmt.Sprintf("Read %s (%d lines)", rel, end-start))
	switch {
	case total == 0:
		res.Message = fmt.Sprintf("%s is empty.", rel)
	case start >= total:
		res.Message = fmt.Sprintf("Offset %d is past the end of %s (%d lines).", start, rel, total)
	case start > 0 || end < total:
		res.Message = fmt.Sprintf("Showing lines %d-%d of %d in %s. Use offset to read more.", start+1, end, total, rel)
	}
	return res, nil
}
