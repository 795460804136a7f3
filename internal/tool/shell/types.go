package shell

import (
	"github.com/Cyclone1070/coda/internal/config"
)

// ExecuteCommandRequest is the argument shape of execute_command.
type ExecuteCommandRequest struct {
	Command        string            `json:"command"`
	WorkingDir     string            `json:"working_dir"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	Env            map[string]string `json:"env"`
	EnvFiles       []string          `json:"env_files"`
}

// Validate checks the request and fills in the default timeout.
func (r *ExecuteCommandRequest) Validate(cfg *config.Config) error {
	if r.Command == "" {
		return ErrCommandRequired
	}
	if r.TimeoutSeconds < 0 {
		return ErrInvalidTimeout
	}
	if r.TimeoutSeconds == 0 {
		r.TimeoutSeconds = cfg.Tools.DefaultShellTimeout
	}
	if r.WorkingDir == "" {
		r.WorkingDir = "."
	}
	return nil
}
