package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/Cyclone1070/coda/internal/config"
	"github.com/Cyclone1070/coda/internal/logger"
	"github.com/Cyclone1070/coda/internal/tool"
)

// pathResolver maps a tool path to its absolute and workspace-relative forms.
type pathResolver interface {
	Resolve(path string) (abs, rel string, err error)
}

// ShellTool runs shell commands inside the workspace.
type ShellTool struct {
	resolver pathResolver
	config   *config.Config
	log      *slog.Logger
}

// NewShellTool creates a ShellTool with injected dependencies.
func NewShellTool(resolver pathResolver, cfg *config.Config) *ShellTool {
	if resolver == nil {
		panic("resolver is required")
	}
	if cfg == nil {
		panic("config is required")
	}
	return &ShellTool{resolver: resolver, config: cfg, log: logger.WithComponent("shell")}
}

func (t *ShellTool) Declaration() tool.Declaration {
	return tool.Declaration{
		Name: "execute_command",
		Description: fmt.Sprintf("Run a shell command with sh -c in the workspace. Output (stdout and stderr combined) is capped at %d bytes. "+
			"The command is interrupted after timeout_seconds (default %d).",
			t.config.Tools.DefaultMaxCommandOutputSize, t.config.Tools.DefaultShellTimeout),
		Parameters: &tool.Schema{
			Type: tool.TypeObject,
			Properties: map[string]*tool.Schema{
				"command":         {Type: tool.TypeString, Description: "The command line to run"},
				"working_dir":     {Type: tool.TypeString, Description: "Directory to run in, relative to the workspace root"},
				"timeout_seconds": {Type: tool.TypeInteger, Description: "Seconds before the command is interrupted"},
				"env": {
					Type:        tool.TypeObject,
					Description: "Extra environment variables",
				},
				"env_files": {
					Type:        tool.TypeArray,
					Description: "Workspace .env files loaded before env",
					Items:       &tool.Schema{Type: tool.TypeString},
				},
			},
			Required: []string{"command"},
		},
	}
}

func (t *ShellTool) Category() tool.Category {
	return tool.Dangerous
}

// Validate rejects malformed requests before approval is asked for.
func (t *ShellTool) Validate(args map[string]any) error {
	_, _, err := t.prepare(args)
	return err
}

// Preview shows the command line and where it will run.
func (t *ShellTool) Preview(args map[string]any) string {
	req, rel, err := t.prepare(args)
	if err != nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "$ %s\n", req.Command)
	fmt.Fprintf(&b, "in %s, timeout %ds", rel, req.TimeoutSeconds)
	for _, key := range slices.Sorted(maps.Keys(req.Env)) {
		fmt.Fprintf(&b, "\n%s=%s", key, req.Env[key])
	}
	return b.String()
}

func (t *ShellTool) prepare(args map[string]any) (ExecuteCommandRequest, string, error) {
	var req ExecuteCommandRequest
	if err := tool.DecodeArgs(args, &req); err != nil {
		return req, "", err
	}
	if err := req.Validate(t.config); err != nil {
		return req, "", err
	}
	abs, rel, err := t.resolver.Resolve(req.WorkingDir)
	if err != nil {
		return req, "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return req, "", fmt.Errorf("working directory %s: %w", rel, err)
	}
	if !info.IsDir() {
		return req, "", fmt.Errorf("working directory %s is not a directory", rel)
	}
	return req, rel, nil
}

// Execute runs the command. A non-zero exit or a timeout is a failed result
// that still carries the captured output.
func (t *ShellTool) Execute(ctx context.Context, args map[string]any) (tool.Result, error) {
	req, rel, err := t.prepare(args)
	if err != nil {
		return tool.Failed("%v", err), nil
	}
	dir, _, err := t.resolver.Resolve(req.WorkingDir)
	if err != nil {
		return tool.Failed("%v", err), nil
	}

	env, err := t.environment(req)
	if err != nil {
		return tool.Failed("%v", err), nil
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	t.log.Info("running command", "command", req.Command, "dir", rel, "timeout", timeout)
	out, err := run(ctx, req.Command, dir, env, timeout, t.config.Tools.DefaultMaxCommandOutputSize)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return tool.Result{}, err
	}

	output := out.Output
	if out.Truncated && output != binaryPlaceholder {
		output += fmt.Sprintf("\n[output truncated at %d bytes]", t.config.Tools.DefaultMaxCommandOutputSize)
	}
	display := tool.ShellDisplay{Command: req.Command, ExitCode: out.ExitCode, Output: output}

	var res tool.Result
	switch {
	case err != nil:
		res = tool.Failed("command cancelled: %v\n%s", err, output)
	case out.TimedOut:
		t.log.Warn("command timed out", "command", req.Command, "timeout", timeout)
		res = tool.Failed("%v after %ds\n%s", ErrTimeout, req.TimeoutSeconds, output)
	case out.ExitCode != 0:
		res = tool.Failed("command exited with code %d\n%s", out.ExitCode, output)
	default:
		res = tool.Succeeded(output)
		res.Message = "Exit code 0"
	}
	res.Display = display
	return res, nil
}

// environment layers the env files and then the explicit overrides on top
// of the current process environment.
func (t *ShellTool) environment(req ExecuteCommandRequest) ([]string, error) {
	merged := make(map[string]string)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok {
			merged[key] = value
		}
	}
	for _, file := range req.EnvFiles {
		abs, _, err := t.resolver.Resolve(file)
		if err != nil {
			return nil, err
		}
		vars, err := ParseEnvFile(abs)
		if err != nil {
			return nil, err
		}
		maps.Copy(merged, vars)
	}
	maps.Copy(merged, req.Env)

	env := make([]string, 0, len(merged))
	for _, key := range slices.Sorted(maps.Keys(merged)) {
		env = append(env, key+"="+merged[key])
	}
	return env, nil
}
