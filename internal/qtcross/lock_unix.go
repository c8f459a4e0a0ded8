//go:build unix

package qtcross

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// buildLock is an exclusive flock held for one orchestrator's lifetime.
type buildLock struct {
	f *os.File
}

// acquireBuildLock fails immediately when another run holds the lock.
func acquireBuildLock(path string) (*buildLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("build directories are in use by another run (%s)", path)
		}
		return nil, fmt.Errorf("failed to acquire build lock: %w", err)
	}
	return &buildLock{f: f}, nil
}

func (l *buildLock) release() {
	if l == nil || l.f == nil {
		return
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	_ = l.f.Close()
	l.f = nil
}
