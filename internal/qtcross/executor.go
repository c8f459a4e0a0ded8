package qtcross

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Invocation describes one external tool run.
type Invocation struct {
	Name string
	Args []string
	Dir  string
	// Env is applied on top of the current process environment for this run only.
	Env    EnvironmentOverlay
	Stdout io.Writer
	Stderr io.Writer
}

// CommandLine renders the invocation for logs and error messages.
func (inv Invocation) CommandLine() []string {
	return append([]string{inv.Name}, inv.Args...)
}

func (inv Invocation) String() string {
	return strings.Join(inv.CommandLine(), " ")
}

// Runner launches external tools synchronously.
type Runner interface {
	Run(ctx context.Context, inv Invocation) error
}

// Executor is the Runner used for real builds.
type Executor struct {
	ApplyIdlePriority bool // Apply nice -n 19 to the tool
	Interactive       bool // Interactive leaves the child in our process group so it can use the TTY
}

// NewExecutor returns an Executor with defaults taken from the configuration.
func NewExecutor(cfg *Config) *Executor {
	return &Executor{ApplyIdlePriority: cfg.Values["QTCROSS_IDLE"] == "1"}
}

// Run starts the tool in inv.Dir with the overlaid environment and waits for it.
// A non-zero exit is returned as *exec.ExitError.
func (e *Executor) Run(ctx context.Context, inv Invocation) error {
	name, args := inv.Name, inv.Args
	if e.ApplyIdlePriority && niceAvailable() {
		args = append([]string{"-n", "19", name}, args...)
		name = "nice"
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = inv.Dir
	cmd.Env = inv.Env.Apply(os.Environ())
	if e.Interactive {
		cmd.Stdin = os.Stdin
	}
	cmd.Stdout = inv.Stdout
	cmd.Stderr = inv.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if !e.Interactive {
		isolateProcessGroup(cmd)
	}

	debugf("running %s (in %s)\n", inv, inv.Dir)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}

	if !e.Interactive {
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				killProcessGroup(cmd)
			case <-done:
			}
		}()
	}

	if waitErr := cmd.Wait(); waitErr != nil {
		if ctx.Err() != nil {
			// give the killed group a moment to flush its output
			time.Sleep(100 * time.Millisecond)
			return fmt.Errorf("command aborted: %w", ctx.Err())
		}
		return waitErr
	}
	return nil
}

// exitCode extracts the process exit status from a Run error, or -1.
// *exec.ExitError satisfies the interface.
func exitCode(err error) int {
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	return -1
}
