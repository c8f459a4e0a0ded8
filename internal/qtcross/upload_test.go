package qtcross

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	objects map[string]string
	putErr  error
}

func (m *memoryStore) UploadLocalFile(_ context.Context, key, filePath string) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = filePath
	return nil
}

func (m *memoryStore) ObjectExists(_ context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func writeArchive(t *testing.T) string {
	t.Helper()
	archive := filepath.Join(t.TempDir(), "Qt6.5.0_OHOS5.0_arm64-v8a_linux_202401010000.tar.gz")
	require.NoError(t, os.WriteFile(archive, []byte("archive"), 0o644))
	return archive
}

func TestUploadArtifactCreatesChecksum(t *testing.T) {
	archive := writeArchive(t)
	store := &memoryStore{objects: map[string]string{}}

	keys, err := UploadArtifact(context.Background(), store, "qt/ohos", archive, false)
	require.NoError(t, err)
	require.Equal(t, []string{
		"qt/ohos/" + filepath.Base(archive),
		"qt/ohos/" + filepath.Base(archive) + ".b3",
	}, keys)
	require.FileExists(t, archive+".b3")
}

func TestUploadArtifactSkipsExisting(t *testing.T) {
	archive := writeArchive(t)
	store := &memoryStore{objects: map[string]string{filepath.Base(archive): "earlier"}}

	keys, err := UploadArtifact(context.Background(), store, "", archive, false)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Base(archive) + ".b3"}, keys)

	keys, err = UploadArtifact(context.Background(), store, "", archive, true)
	require.NoError(t, err)
	require.Len(t, keys, 2)
}

func TestUploadArtifactRejectsStaleChecksum(t *testing.T) {
	archive := writeArchive(t)
	_, err := WriteChecksumFile(archive)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(archive, []byte("rebuilt"), 0o644))

	store := &memoryStore{objects: map[string]string{}}
	_, err = UploadArtifact(context.Background(), store, "", archive, false)
	require.ErrorContains(t, err, "checksum mismatch")
	require.Empty(t, store.objects)
}

func TestUploadArtifactStoreFailure(t *testing.T) {
	putErr := errors.New("access denied")
	store := &memoryStore{objects: map[string]string{}, putErr: putErr}

	_, err := UploadArtifact(context.Background(), store, "", writeArchive(t), false)
	require.ErrorIs(t, err, putErr)
}

func TestContentTypeFor(t *testing.T) {
	require.Equal(t, "application/zip", contentTypeFor("a.zip"))
	require.Equal(t, "application/gzip", contentTypeFor("a.tar.gz"))
	require.Equal(t, "application/zstd", contentTypeFor("a.tar.zst"))
	require.Equal(t, "text/plain; charset=utf-8", contentTypeFor("a.tar.gz.b3"))
	require.Equal(t, "application/octet-stream", contentTypeFor("a.bin"))
}
