package shell

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// killGrace is how long a command gets to exit after SIGINT before it is
// killed. It also bounds how long output pipes held open by background
// children can delay Wait.
const killGrace = 2 * time.Second

// runResult is the outcome of one command.
type runResult struct {
	Output    string
	ExitCode  int
	Truncated bool
	TimedOut  bool
}

// run executes command with sh -c. On timeout or cancellation the process
// group is interrupted, then killed after killGrace.
func run(ctx context.Context, command, dir string, env []string, timeout time.Duration, maxOutput int64) (runResult, error) {
	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = env
	out := newCollector(maxOutput)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = killGrace
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return runResult{}, fmt.Errorf("failed to start command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	res := runResult{}
	select {
	case waitErr = <-done:
	case <-timer.C:
		res.TimedOut = true
		waitErr = stop(cmd, done)
	case <-ctx.Done():
		stop(cmd, done)
		res.Output = out.String()
		res.Truncated = out.Truncated()
		return res, ctx.Err()
	}

	res.Output = out.String()
	res.Truncated = out.Truncated()

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil, errors.Is(waitErr, exec.ErrWaitDelay), errors.As(waitErr, &exitErr):
		res.ExitCode = cmd.ProcessState.ExitCode()
	default:
		return res, fmt.Errorf("failed to wait for command: %w", waitErr)
	}
	return res, nil
}

// stop interrupts the process group and escalates to a kill if it has not
// exited within killGrace.
func stop(cmd *exec.Cmd, done <-chan error) error {
	_ = interruptGroup(cmd)
	select {
	case err := <-done:
		return err
	case <-time.After(killGrace):
		_ = killGroup(cmd)
		return <-done
	}
}
