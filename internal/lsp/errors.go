package lsp

import "errors"

var (
	ErrNoServerDetected = errors.New("no language server detected")
	ErrNotStarted       = errors.New("language server not started")
	ErrInvalidPattern   = errors.New("invalid glob pattern")
)
