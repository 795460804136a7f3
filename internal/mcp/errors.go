package mcp

import "errors"

var (
	// ErrNotConnected is returned when a server's channel is gone. The Manager
	// answers it with one restart-and-retry.
	ErrNotConnected = errors.New("mcp server not connected")

	// ErrToolNotFound is returned when no connected server exposes a tool.
	ErrToolNotFound = errors.New("mcp tool not found")

	// ErrServerNotFound is returned for an unknown server name.
	ErrServerNotFound = errors.New("mcp server not found")
)
