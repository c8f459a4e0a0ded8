package qtcross

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ulikunitz/xz"
)

// diagnosticTailSize caps how much tool output a StageError carries.
const diagnosticTailSize = 64 << 10

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(p)
	if n >= t.limit {
		t.buf = append(t.buf[:0], p[n-t.limit:]...)
		return n, nil
	}
	if over := len(t.buf) + n - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	t.buf = append(t.buf, p...)
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// stageLog tees one stage's output to the console, a log file and a tail buffer.
type stageLog struct {
	path string
	file *os.File
	tail *tailBuffer
	out  io.Writer
}

// openStageLog starts <logDir>/<stage>.log. Console output goes to console (may be nil).
func openStageLog(logDir string, s Stage, console io.Writer) (*stageLog, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir %s: %w", logDir, err)
	}
	path := filepath.Join(logDir, s.String()+".log")
	// a previous run's archive must not shadow this run's log
	if err := os.Remove(path + ".xz"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove old stage log: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create stage log %s: %w", path, err)
	}
	l := &stageLog{path: path, file: f, tail: newTailBuffer(diagnosticTailSize)}
	writers := []io.Writer{f, l.tail}
	if console != nil {
		writers = append(writers, console)
	}
	l.out = io.MultiWriter(writers...)
	return l, nil
}

func (l *stageLog) Write(p []byte) (int, error) { return l.out.Write(p) }

// Close compresses the log to <stage>.log.xz and removes the plain copy.
// Compression problems only cost the archived log, never the stage.
func (l *stageLog) Close() {
	if err := l.file.Close(); err != nil {
		debugf("closing %s: %v\n", l.path, err)
		return
	}
	if err := compressXZ(l.path, l.path+".xz"); err != nil {
		arrowf(colWarn, "Warning: failed to compress %s: %v\n", l.path, err)
		return
	}
	_ = os.Remove(l.path)
}

// compressXZ compresses a file using XZ
func compressXZ(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return err
	}

	xzWriter, err := xz.NewWriter(dest)
	if err != nil {
		dest.Close()
		return err
	}
	if _, err := io.Copy(xzWriter, src); err != nil {
		xzWriter.Close()
		dest.Close()
		return err
	}
	if err := xzWriter.Close(); err != nil {
		dest.Close()
		return err
	}
	return dest.Close()
}

// readStageLog returns a stage's log, preferring the compressed copy.
func readStageLog(logDir string, s Stage) ([]byte, error) {
	plain := filepath.Join(logDir, s.String()+".log")
	f, err := os.Open(plain + ".xz")
	if err != nil {
		if os.IsNotExist(err) {
			return os.ReadFile(plain)
		}
		return nil, err
	}
	defer f.Close()
	xr, err := xz.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create xz reader: %w", err)
	}
	return io.ReadAll(xr)
}
