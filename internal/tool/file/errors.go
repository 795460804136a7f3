package file

import "errors"

var (
	ErrPathRequired      = errors.New("path is required")
	ErrFileMissing       = errors.New("file does not exist")
	ErrIsDirectory       = errors.New("path is a directory")
	ErrBinaryFile        = errors.New("file is binary")
	ErrFileTooLarge      = errors.New("file too large")
	ErrInvalidOffset     = errors.New("offset cannot be negative")
	ErrInvalidLimit      = errors.New("limit must be positive")
	ErrNotRead           = errors.New("file has not been read yet; call read_file on it before editing")
	ErrOldStringRequired = errors.New("old_string is required")
	ErrNoChange          = errors.New("old_string and new_string are identical")
	ErrSnippetNotFound   = errors.New("old_string not found")
	ErrSnippetNotUnique  = errors.New("old_string is not unique")
	ErrEditConflict      = errors.New("file changed since it was last read; read it again before editing")
)
