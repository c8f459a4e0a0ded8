//go:build !unix

package qtcross

import (
	"fmt"
	"os"
)

// buildLock falls back to an exclusively created marker file.
type buildLock struct {
	path string
}

func acquireBuildLock(path string) (*buildLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("build directories are in use by another run (%s)", path)
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	f.Close()
	return &buildLock{path: path}, nil
}

func (l *buildLock) release() {
	if l == nil || l.path == "" {
		return
	}
	_ = os.Remove(l.path)
	l.path = ""
}
