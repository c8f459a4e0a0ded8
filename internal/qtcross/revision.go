package qtcross

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// FetchTimeout bounds a remote revision query.
const FetchTimeout = 30 * time.Second

// CommitHash is a full 40-character lower-case hex commit id.
type CommitHash string

// IsValidHash reports whether s is exactly 40 lower-case hex characters.
func IsValidHash(s string) bool {
	if len(s) != 40 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// LsRemoteFunc lists remote references, returning the raw ls-remote output.
type LsRemoteFunc func(ctx context.Context, repoURL, ref string) ([]byte, error)

// RevisionPinner fetches the latest commit of an upstream repository and
// records it in a pin file.
type RevisionPinner struct {
	RepoURL string
	Timeout time.Duration
	// LsRemote runs the reference listing; git ls-remote when nil.
	LsRemote LsRemoteFunc
}

// NewRevisionPinner uses the given git executable, or the one on PATH when empty.
func NewRevisionPinner(repoURL, gitExe string) (*RevisionPinner, error) {
	if gitExe == "" {
		found, err := exec.LookPath("git")
		if err != nil {
			return nil, fmt.Errorf("%w: git executable not found in PATH", ErrToolNotFound)
		}
		gitExe = found
	}
	return &RevisionPinner{
		RepoURL:  repoURL,
		Timeout:  FetchTimeout,
		LsRemote: gitLsRemote(gitExe),
	}, nil
}

// gitLsRemote queries refs without cloning.
func gitLsRemote(gitExe string) LsRemoteFunc {
	return func(ctx context.Context, repoURL, ref string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, gitExe, "ls-remote", repoURL, ref)
		// never block on a credential prompt; the timeout would just expire
		cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
		// transport helpers (git-remote-https) hold the pipes open after git is killed
		isolateProcessGroup(cmd)
		cmd.Cancel = func() error {
			killProcessGroup(cmd)
			return nil
		}
		cmd.WaitDelay = 2 * time.Second
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return nil, fmt.Errorf("%w: %s", err, msg)
			}
			return nil, err
		}
		return stdout.Bytes(), nil
	}
}

// FetchLatest returns the commit the remote ref points at. ref defaults to HEAD.
func (r *RevisionPinner) FetchLatest(ctx context.Context, ref string) (CommitHash, error) {
	if ref == "" {
		ref = "HEAD"
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = FetchTimeout
	}
	lsRemote := r.LsRemote
	if lsRemote == nil {
		return "", &FetchError{RepoURL: r.RepoURL, Reason: "no reference lister configured"}
	}

	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		out []byte
		err error
	}
	// buffered so a lister that ignores qctx does not leak a blocked sender
	done := make(chan result, 1)
	go func() {
		out, err := lsRemote(qctx, r.RepoURL, ref)
		done <- result{out, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(qctx.Err(), context.DeadlineExceeded) {
				return "", &FetchError{RepoURL: r.RepoURL, Timeout: true, Err: qctx.Err()}
			}
			return "", &FetchError{RepoURL: r.RepoURL, Reason: "ls-remote failed", Err: res.err}
		}
		return parseLsRemote(r.RepoURL, res.out)
	case <-qctx.Done():
		if errors.Is(qctx.Err(), context.DeadlineExceeded) {
			return "", &FetchError{RepoURL: r.RepoURL, Timeout: true, Err: qctx.Err()}
		}
		return "", &FetchError{RepoURL: r.RepoURL, Reason: "ls-remote aborted", Err: qctx.Err()}
	}
}

// parseLsRemote takes the hash from the first "hash\tref" line.
func parseLsRemote(repoURL string, out []byte) (CommitHash, error) {
	output := strings.TrimSpace(string(out))
	if output == "" {
		return "", &FetchError{RepoURL: repoURL, Reason: "no output from git ls-remote"}
	}
	firstLine, _, _ := strings.Cut(output, "\n")
	hash, _, _ := strings.Cut(firstLine, "\t")
	hash = strings.TrimSpace(hash)
	if !IsValidHash(hash) {
		return "", &FetchError{RepoURL: repoURL, Reason: fmt.Sprintf("invalid commit hash format: %q", hash)}
	}
	return CommitHash(hash), nil
}

// UpdateFile writes hash (fetching HEAD's hash when empty) to path, replacing
// what was there, and returns the hash written.
func (r *RevisionPinner) UpdateFile(ctx context.Context, path string, hash CommitHash) (CommitHash, error) {
	if hash == "" {
		fetched, err := r.FetchLatest(ctx, "HEAD")
		if err != nil {
			return "", err
		}
		hash = fetched
	}
	if err := WriteCommitFile(path, hash); err != nil {
		return "", err
	}
	arrowf(colSuccess, "Updated %s with commit hash: %s\n", path, hash)
	return hash, nil
}

// WriteCommitFile persists a validated hash followed by a newline.
func WriteCommitFile(path string, hash CommitHash) error {
	if !IsValidHash(string(hash)) {
		return fmt.Errorf("%w: refusing to write invalid commit hash %q", ErrPersistence, hash)
	}
	if err := os.WriteFile(path, []byte(string(hash)+"\n"), 0o644); err != nil {
		return fmt.Errorf("%w: failed to write %s: %v", ErrPersistence, path, err)
	}
	return nil
}

// ReadFile returns the pinned hash. ok is false when the file is absent or blank.
// The content is returned as stored, without format validation.
func ReadFile(path string) (hash CommitHash, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: failed to read %s: %v", ErrPersistence, path, err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return "", false, nil
	}
	return CommitHash(content), true, nil
}
