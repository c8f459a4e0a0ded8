package qtcross

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/require"
)

// installTree builds a small install prefix.
func installTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bin"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin", "qmake"), []byte("qmake"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "lib", "libQt6Core.so.6.5.0"), []byte("core"), 0o644))
	require.NoError(t, os.Symlink("libQt6Core.so.6.5.0", filepath.Join(root, "lib", "libQt6Core.so")))
	return root
}

func readTar(t *testing.T, r io.Reader) map[string]*tar.Header {
	t.Helper()
	entries := make(map[string]*tar.Header)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		entries[hdr.Name] = hdr
	}
	return entries
}

func entryNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var wantEntries = []string{"bin/", "bin/qmake", "lib/", "lib/libQt6Core.so", "lib/libQt6Core.so.6.5.0"}

func TestCreateArchiveTarGz(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out", "qt.tar.gz")
	require.NoError(t, TarballArchiver{}.CreateArchive(installTree(t), dst, FormatTarGz))

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	gz, err := pgzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	entries := readTar(t, gz)
	require.Equal(t, wantEntries, entryNames(entries))

	link := entries["lib/libQt6Core.so"]
	require.Equal(t, byte(tar.TypeSymlink), link.Typeflag)
	require.Equal(t, "libQt6Core.so.6.5.0", link.Linkname)
	require.Zero(t, entries["bin/qmake"].Uid)
	require.Equal(t, "root", entries["bin/qmake"].Uname)
}

func TestCreateArchiveTarZst(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "qt.tar.zst")
	require.NoError(t, TarballArchiver{}.CreateArchive(installTree(t), dst, FormatTarZst))

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	zr, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer zr.Close()

	require.Equal(t, wantEntries, entryNames(readTar(t, zr)))
}

func TestCreateArchiveZip(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "qt.zip")
	require.NoError(t, TarballArchiver{}.CreateArchive(installTree(t), dst, FormatZip))

	zr, err := zip.OpenReader(dst)
	require.NoError(t, err)
	defer zr.Close()

	files := make(map[string]*zip.File)
	for _, f := range zr.File {
		files[f.Name] = f
	}
	require.Equal(t, wantEntries, entryNames(files))

	rc, err := files["bin/qmake"].Open()
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	require.Equal(t, "qmake", string(data))
}

func TestCreateArchiveMissingSource(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "qt.tar.gz")
	err := TarballArchiver{}.CreateArchive(filepath.Join(t.TempDir(), "missing"), dst, FormatTarGz)
	require.Error(t, err)
	require.NoFileExists(t, dst)
}

func TestCreateArchiveUnknownFormat(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "qt.rar")
	err := TarballArchiver{}.CreateArchive(installTree(t), dst, ArchiveFormat("rar"))
	require.ErrorContains(t, err, "unsupported archive format")
	require.NoFileExists(t, dst)
	require.NoFileExists(t, dst+".part")
}
