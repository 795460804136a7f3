package directory

import "errors"

var (
	ErrPathMissing     = errors.New("path does not exist")
	ErrNotADirectory   = errors.New("path is not a directory")
	ErrPatternRequired = errors.New("pattern is required")
	ErrInvalidPattern  = errors.New("invalid glob pattern")
	ErrInvalidOffset   = errors.New("offset cannot be negative")
	ErrInvalidLimit    = errors.New("limit cannot be negative")
	ErrLimitExceeded   = errors.New("limit exceeds maximum")
)
