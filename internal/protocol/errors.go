package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// ErrClosed is returned when the channel to the peer has terminated.
var ErrClosed = errors.New("connection closed")

// StartError reports a child process that could not be launched.
type StartError struct {
	Command string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Command, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// ServerError is a JSON-RPC error response from the peer.
type ServerError struct {
	Method  string
	Code    int64
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: server error %d: %s", e.Method, e.Code, e.Message)
}

// closedError decorates ErrClosed with the peer's last stderr output.
func closedError(method, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return fmt.Errorf("%s: %w", method, ErrClosed)
	}
	return fmt.Errorf("%s: %w (stderr: %s)", method, ErrClosed, stderr)
}
