package qtcross

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTailBufferKeepsLastBytes(t *testing.T) {
	tb := newTailBuffer(8)
	fmt.Fprint(tb, "abcd")
	require.Equal(t, "abcd", tb.String())
	fmt.Fprint(tb, "efghij")
	require.Equal(t, "cdefghij", tb.String())
	fmt.Fprint(tb, "0123456789")
	require.Equal(t, "23456789", tb.String())
}

func TestStageLogTeesAndCompresses(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var console bytes.Buffer

	l, err := openStageLog(dir, CrossBuild, &console)
	require.NoError(t, err)
	fmt.Fprintln(l, "[1/2] Building CXX object")
	fmt.Fprintln(l, "[2/2] Linking")
	require.Equal(t, "[1/2] Building CXX object\n[2/2] Linking\n", l.tail.String())
	l.Close()

	require.Equal(t, l.tail.String(), console.String())
	require.NoFileExists(t, filepath.Join(dir, "cross-build.log"))
	require.FileExists(t, filepath.Join(dir, "cross-build.log.xz"))

	data, err := readStageLog(dir, CrossBuild)
	require.NoError(t, err)
	require.Equal(t, console.String(), string(data))
}

func TestStageLogTailIsBounded(t *testing.T) {
	l, err := openStageLog(t.TempDir(), HostBuild, nil)
	require.NoError(t, err)
	defer l.Close()

	line := strings.Repeat("x", 1023) + "\n"
	for i := 0; i < 100; i++ {
		fmt.Fprint(l, line)
	}
	require.Len(t, l.tail.String(), diagnosticTailSize)
}

func TestReadStageLogPlainFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pack.log"), []byte("plain"), 0o644))

	data, err := readStageLog(dir, Pack)
	require.NoError(t, err)
	require.Equal(t, "plain", string(data))

	_, err = readStageLog(dir, HostInstall)
	require.True(t, os.IsNotExist(err))
}

func TestStageLogReplacesPreviousArchive(t *testing.T) {
	dir := t.TempDir()
	old, err := openStageLog(dir, CrossConfigure, nil)
	require.NoError(t, err)
	fmt.Fprint(old, "previous run")
	old.Close()
	require.FileExists(t, filepath.Join(dir, "cross-configure.log.xz"))

	l, err := openStageLog(dir, CrossConfigure, nil)
	require.NoError(t, err)
	fmt.Fprint(l, "current run")
	require.NoFileExists(t, filepath.Join(dir, "cross-configure.log.xz"))

	// compression has not happened yet; the plain log is what a reader sees
	data, err := readStageLog(dir, CrossConfigure)
	require.NoError(t, err)
	require.Equal(t, "current run", string(data))
	l.Close()
}
