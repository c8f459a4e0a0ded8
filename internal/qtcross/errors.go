package qtcross

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrToolNotFound        = errors.New("required tool not found")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrStageFailed         = errors.New("build stage failed")
	ErrFetch               = errors.New("commit hash fetch failed")
	ErrPersistence         = errors.New("commit hash file error")
	ErrPackagingConfig     = errors.New("install prefix is not set, cannot pack")
	ErrInvalidTransition   = errors.New("stage is not reachable from the current state")
	ErrPipelineFailed      = errors.New("pipeline already failed")
)

// StageError reports a configure/build/install invocation that did not exit cleanly.
// Output holds the tail of the tool's combined stdout and stderr.
type StageError struct {
	Stage    Stage
	Command  []string
	ExitCode int
	Output   string
	Err      error
}

func (e *StageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed", e.Stage.Title())
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Output != "" {
		b.WriteString("\n")
		b.WriteString(e.Output)
	}
	return b.String()
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) Is(target error) bool { return target == ErrStageFailed }

// FetchError reports a failed remote revision query.
type FetchError struct {
	RepoURL string
	Timeout bool
	Reason  string
	Err     error
}

func (e *FetchError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("timeout while fetching commit hash from %s", e.RepoURL)
	case e.Err != nil:
		return fmt.Sprintf("failed to fetch commit hash from %s: %s: %v", e.RepoURL, e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to fetch commit hash from %s: %s", e.RepoURL, e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }
