// Package executor runs quality-gate and workflow shell commands as
// synchronous subprocesses with a per-command timeout. A timeout or
// non-zero exit is a failed step, not a crash.
package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// DefaultTimeout bounds each command when no timeout is configured.
const DefaultTimeout = 300 * time.Second

// Result captures one executed command.
type Result struct {
	Command  string        `json:"command"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration_ms"`
	TimedOut bool          `json:"timed_out"`
}

// Executor runs shell commands in a working directory.
type Executor struct {
	timeout time.Duration
}

// New creates an executor with the given per-command timeout; zero or
// negative falls back to DefaultTimeout.
func New(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{timeout: timeout}
}

// Run executes one command via `sh -c` and captures its outputs.
// Command failure is reported in the result, never as an error.
func (e *Executor) Run(ctx context.Context, command, cwd string) Result {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = cwd
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Command:  command,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = 1
		}
	}
	if ctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		if result.ExitCode == 0 {
			result.ExitCode = 1
		}
	}
	return result
}

// RunMany executes commands sequentially, stopping after the first
// failure. All results gathered so far are returned.
func (e *Executor) RunMany(ctx context.Context, commands []string, cwd string) []Result {
	var results []Result
	for _, command := range commands {
		result := e.Run(ctx, command, cwd)
		results = append(results, result)
		if result.ExitCode != 0 {
			break
		}
	}
	return results
}
