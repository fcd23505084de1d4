package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ErrBinaryNotFound is returned when the executable cannot be resolved.
var ErrBinaryNotFound = errors.New("process: binary not found")

// Runner executes commands. Pipeline stages depend on Runner so tests can
// substitute scripted fakes for ffmpeg, yt-dlp and whisper.cpp.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, cmd Command) (*Result, error)

func (f RunnerFunc) Run(ctx context.Context, cmd Command) (*Result, error) { return f(ctx, cmd) }

// ExecRunner runs real subprocesses via Run.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) { return Run(ctx, cmd) }

// Available reports whether binary resolves on PATH.
func Available(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}

// Run executes a subprocess and waits for it to complete.
// If the context is canceled, SIGTERM is sent to the process group, then
// SIGKILL after GracePeriod.
func Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("process: binary is required")
	}

	gracePeriod := cmd.GracePeriod
	if gracePeriod == 0 {
		gracePeriod = 5 * time.Second
	}
	stderrLimit := cmd.StderrLimit
	if stderrLimit <= 0 {
		stderrLimit = 64 << 10
	}

	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...) //nolint:gosec // dynamic args are the purpose of this package
	c.Dir = cmd.Dir
	c.Env = mergeEnv(cmd.Env)
	c.Stdin = cmd.Stdin

	var stdout bytes.Buffer
	var out io.Writer = &stdout
	if cmd.Stdout != nil {
		out = cmd.Stdout
	}
	stderr := &tailBuffer{limit: stderrLimit}
	c.Stdout = out
	c.Stderr = stderr

	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		return syscall.Kill(-c.Process.Pid, syscall.SIGTERM)
	}
	c.WaitDelay = gracePeriod

	start := time.Now()
	err := c.Run()
	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: c.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return result, fmt.Errorf("%w: %s", ErrBinaryNotFound, cmd.Binary)
		}
		if ctx.Err() != nil {
			return result, fmt.Errorf("process: killed by context: %w", ctx.Err())
		}
		return result, fmt.Errorf("process: %s exit code %d: %w", cmd.Binary, result.ExitCode, err)
	}
	return result, nil
}

func mergeEnv(extra []string) []string {
	if len(extra) == 0 {
		return nil
	}
	return append(os.Environ(), extra...)
}
