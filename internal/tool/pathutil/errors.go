package pathutil

import "fmt"

// OutsideWorkspaceError indicates a path is outside the workspace boundary.
type OutsideWorkspaceError struct {
	Path string
}

func (e *OutsideWorkspaceError) Error() string {
	if e.Path == "" {
		return "path is outside workspace root"
	}
	return fmt.Sprintf("path is outside workspace root: %s", e.Path)
}

// Is matches any OutsideWorkspaceError so callers can test against
// ErrOutsideWorkspace.
func (e *OutsideWorkspaceError) Is(target error) bool {
	_, ok := target.(*OutsideWorkspaceError)
	return ok
}

// ErrOutsideWorkspace is returned when a path escapes the workspace boundary.
var ErrOutsideWorkspace = &OutsideWorkspaceError{}

// WorkspaceRootError is returned when the workspace root is invalid.
type WorkspaceRootError struct {
	Root  string
	Cause error
}

func (e *WorkspaceRootError) Error() string {
	return fmt.Sprintf("invalid workspace root %s: %v", e.Root, e.Cause)
}

func (e *WorkspaceRootError) Unwrap() error {
	return e.Cause
}

// NotADirectoryError is returned when a path is expected to be a directory but isn't.
type NotADirectoryError struct {
	Path string
}

func (e *NotADirectoryError) Error() string {
	return fmt.Sprintf("not a directory: %s", e.Path)
}
