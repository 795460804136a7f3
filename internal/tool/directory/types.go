package directory

import (
	"fmt"

	"github.com/Cyclone1070/coda/internal/config"
)

// Entry is one listed path, relative to the workspace root.
type Entry struct {
	RelativePath string
	IsDir        bool
}

// -- List Files --

type ListFilesRequest struct {
	Path string `json:"path,omitempty"`
	// MaxDepth is 0 for immediate children only; negative for unlimited.
	MaxDepth       int  `json:"max_depth,omitempty"`
	IncludeIgnored bool `json:"include_ignored,omitempty"`
	Offset         int  `json:"offset,omitempty"`
	Limit          int  `json:"limit,omitempty"`
}

func (r *ListFilesRequest) Validate(cfg *config.Config) error {
	return validatePage(r.Offset, r.Limit, cfg.Tools.MaxListDirectoryLimit)
}

func (r *ListFilesRequest) limit(cfg *config.Config) int {
	if r.Limit == 0 {
		return cfg.Tools.DefaultListDirectoryLimit
	}
	return r.Limit
}

// -- Find Files --

type FindFilesRequest struct {
	Pattern        string `json:"pattern"`
	Path           string `json:"path,omitempty"`
	IncludeIgnored bool   `json:"include_ignored,omitempty"`
	Offset         int    `json:"offset,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

func (r *FindFilesRequest) Validate(cfg *config.Config) error {
	if r.Pattern == "" {
		return ErrPatternRequired
	}
	return validatePage(r.Offset, r.Limit, cfg.Tools.MaxFindFileLimit)
}

func (r *FindFilesRequest) limit(cfg *config.Config) int {
	if r.Limit == 0 {
		return cfg.Tools.DefaultFindFileLimit
	}
	return r.Limit
}

func validatePage(offset, limit, maxLimit int) error {
	if offset < 0 {
		return ErrInvalidOffset
	}
	if limit < 0 {
		return ErrInvalidLimit
	}
	if limit > maxLimit {
		return fmt.Errorf("%w: %d > %d", ErrLimitExceeded, limit, maxLimit)
	}
	return nil
}

func defaultPath(p string) string {
	if p == "" {
		return "."
	}
	return p
}
