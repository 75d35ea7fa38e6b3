// Package exec runs external processes for archtest.
// Every toolchain, symbol query and DUT invocation goes through CommandRunner
// so tests can substitute a fake.
package exec

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	osexec "os/exec"
	"syscall"
	"time"
)

// GracePeriod is the duration to wait between SIGINT and SIGKILL when a
// process group is terminated on context cancellation or timeout.
const GracePeriod = 3 * time.Second

// RunOpts holds per-invocation options.
type RunOpts struct {
	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env is the full environment. Nil inherits the parent environment.
	Env []string
}

// CmdResult holds the outcome of a process that was started.
type CmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int

	// Signal is set when the process was terminated by a signal.
	Signal string

	Duration time.Duration
}

// CommandRunner runs external commands.
//
// Run returns an error only when the process could not be started or was
// interrupted by ctx; a non-zero exit is reported in CmdResult.ExitCode.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, opts RunOpts) (CmdResult, error)
	LookPath(file string) (string, error)
}

// RealRunner runs commands with os/exec, each in its own process group.
type RealRunner struct{}

// NewRealRunner returns a CommandRunner backed by os/exec.
func NewRealRunner() *RealRunner {
	return &RealRunner{}
}

// LookPath implements CommandRunner.LookPath.
func (r *RealRunner) LookPath(file string) (string, error) {
	return osexec.LookPath(file)
}

// Run implements CommandRunner.Run.
func (r *RealRunner) Run(ctx context.Context, name string, args []string, opts RunOpts) (CmdResult, error) {
	var stdout, stderr bytes.Buffer

	cmd := osexec.Command(name, args...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	devnull, err := os.Open(os.DevNull)
	if err != nil {
		return CmdResult{}, fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}
	defer func() { _ = devnull.Close() }()
	cmd.Stdin = devnull

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return CmdResult{ExitCode: -1}, fmt.Errorf("failed to start %s: %w", name, err)
	}

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- cmd.Wait()
	}()

	var waitErr, ctxErr error
	select {
	case waitErr = <-waitDone:
	case <-ctx.Done():
		ctxErr = ctx.Err()
		killProcessGroup(cmd.Process.Pid, waitDone, &waitErr)
	}

	result := CmdResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if waitErr != nil {
		result.ExitCode = -1
		var exitErr *osexec.ExitError
		if stderrors.As(waitErr, &exitErr) {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				result.Signal = status.Signal().String()
			} else {
				result.ExitCode = exitErr.ExitCode()
			}
		}
	}

	if ctxErr != nil {
		return result, ctxErr
	}
	return result, nil
}

// killProcessGroup sends SIGINT to the group, waits up to GracePeriod for the
// process to exit, then sends SIGKILL. The wait result is stored in waitErr.
func killProcessGroup(pgid int, waitDone <-chan error, waitErr *error) {
	_ = syscall.Kill(-pgid, syscall.SIGINT)

	select {
	case *waitErr = <-waitDone:
		return
	case <-time.After(GracePeriod):
	}

	_ = syscall.Kill(-pgid, syscall.SIGKILL)
	*waitErr = <-waitDone
}
