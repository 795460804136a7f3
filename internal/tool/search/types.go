package search

import (
	"errors"
	"fmt"

	"github.com/Cyclone1070/coda/internal/config"
)

var (
	ErrQueryRequired  = errors.New("query is required")
	ErrInvalidQuery   = errors.New("invalid regular expression")
	ErrInvalidInclude = errors.New("invalid include pattern")
	ErrPathMissing    = errors.New("path does not exist")
)

// Match is one matching line.
type Match struct {
	File        string // workspace-relative, slash separated
	LineNumber  int    // 1-based
	LineContent string
}

func (m Match) String() string {
	return fmt.Sprintf("%s:%d: %s", m.File, m.LineNumber, m.LineContent)
}

type SearchContentRequest struct {
	Query          string `json:"query"`
	Path           string `json:"path,omitempty"`
	Include        string `json:"include,omitempty"`
	CaseSensitive  bool   `json:"case_sensitive,omitempty"`
	IncludeIgnored bool   `json:"include_ignored,omitempty"`
	Offset         int    `json:"offset,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// Validate checks required fields and clamps the page to the configured
// bounds.
func (r *SearchContentRequest) Validate(cfg *config.Config) error {
	if r.Query == "" {
		return ErrQueryRequired
	}
	if r.Path == "" {
		r.Path = "."
	}
	if r.Offset < 0 {
		r.Offset = 0
	}
	if r.Limit <= 0 {
		r.Limit = cfg.Tools.DefaultSearchContentLimit
	}
	if r.Limit > cfg.Tools.MaxSearchContentLimit {
		r.Limit = cfg.Tools.MaxSearchContentLimit
	}
	return nil
}
