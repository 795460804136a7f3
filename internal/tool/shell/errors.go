package shell

import "errors"

var (
	ErrCommandRequired = errors.New("command is required")
	ErrInvalidTimeout  = errors.New("timeout_seconds cannot be negative")
	ErrEnvFileParse    = errors.New("invalid env file line")
	ErrTimeout         = errors.New("command timed out")
)
