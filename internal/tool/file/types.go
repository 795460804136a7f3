package file

import (
	"github.com/Cyclone1070/coda/internal/config"
)

// -- Read File --

type ReadFileRequest struct {
	Path string `json:"path"`
	// Offset is the number of lines to skip.
	Offset *int `json:"offset,omitempty"`
	// Limit is the maximum number of lines to return.
	Limit *int `json:"limit,omitempty"`
}

func (r *ReadFileRequest) Validate(cfg *config.Config) error {
	if r.Path == "" {
		return ErrPathRequired
	}
	if r.Offset != nil && *r.Offset < 0 {
		return ErrInvalidOffset
	}
	if r.Limit != nil && *r.Limit < 1 {
		return ErrInvalidLimit
	}
	return nil
}

func (r *ReadFileRequest) offset() int {
	if r.Offset == nil {
		return 0
	}
	return *r.Offset
}

func (r *ReadFileRequest) limit(cfg *config.Config) int {
	if r.Limit == nil {
		return cfg.Tools.DefaultReadLines
	}
	return *r.Limit
}

// -- Write File --

type WriteFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (r *WriteFileRequest) Validate(cfg *config.Config) error {
	if r.Path == "" {
		return ErrPathRequired
	}
	if int64(len(r.Content)) > cfg.Tools.MaxFileSize {
		return ErrFileTooLarge
	}
	return nil
}

// -- Edit File --

type EditFileRequest struct {
	Path       string `json:"path"`
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all,omitempty"`
}

func (r *EditFileRequest) Validate(cfg *config.Config) error {
	if r.Path == "" {
		return ErrPathRequired
	}
	if r.OldString == "" {
		return ErrOldStringRequired
	}
	if r.OldString == r.NewString {
		return ErrNoChange
	}
	return nil
}
