package qtcross

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// artifactStore is the part of BucketClient an upload needs.
type artifactStore interface {
	UploadLocalFile(ctx context.Context, key, filePath string) error
	ObjectExists(ctx context.Context, key string) (bool, error)
}

// objectKey places a local file under the configured bucket prefix.
func objectKey(prefix, filePath string) string {
	return path.Join(prefix, filepath.Base(filePath))
}

// UploadArtifact uploads an archive and its checksum file, creating the
// checksum first when it is missing. Existing objects are skipped unless force is set.
func UploadArtifact(ctx context.Context, store artifactStore, prefix, archivePath string, force bool) ([]string, error) {
	if _, err := os.Stat(archivePath); err != nil {
		return nil, fmt.Errorf("cannot upload %s: %w", archivePath, err)
	}
	sumPath := archivePath + ChecksumSuffix
	if _, err := os.Stat(sumPath); os.IsNotExist(err) {
		if _, err := WriteChecksumFile(archivePath); err != nil {
			return nil, err
		}
	} else if err := VerifyChecksumFile(archivePath); err != nil {
		return nil, err
	}

	var uploaded []string
	for _, file := range []string{archivePath, sumPath} {
		key := objectKey(prefix, file)
		if !force {
			exists, err := store.ObjectExists(ctx, key)
			if err != nil {
				return uploaded, fmt.Errorf("failed to check %s: %w", key, err)
			}
			if exists {
				arrowf(colWarn, "Skipping %s, already uploaded\n", key)
				continue
			}
		}
		arrowf(colSuccess, "Uploading %s\n", key)
		if err := store.UploadLocalFile(ctx, key, file); err != nil {
			return uploaded, fmt.Errorf("failed to upload %s: %w", key, err)
		}
		uploaded = append(uploaded, key)
	}
	return uploaded, nil
}
