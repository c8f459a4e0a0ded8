package qtcross

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"lukechampine.com/blake3"
)

// ChecksumSuffix is appended to an archive path to name its checksum file.
const ChecksumSuffix = ".b3"

// fileB3Sum returns the hex BLAKE3-256 digest of a file.
func fileB3Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteChecksumFile writes "<digest>  <archive name>\n" (b3sum format) next to
// the archive and returns the checksum file's path.
func WriteChecksumFile(archivePath string) (string, error) {
	sum, err := fileB3Sum(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to checksum %s: %w", archivePath, err)
	}
	sumPath := archivePath + ChecksumSuffix
	line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(archivePath))
	if err := os.WriteFile(sumPath, []byte(line), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", sumPath, err)
	}
	return sumPath, nil
}

// VerifyChecksumFile recomputes the archive digest and compares it with the sidecar.
func VerifyChecksumFile(archivePath string) error {
	data, err := os.ReadFile(archivePath + ChecksumSuffix)
	if err != nil {
		return fmt.Errorf("failed to read checksum file: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return fmt.Errorf("checksum file for %s is empty", archivePath)
	}
	sum, err := fileB3Sum(archivePath)
	if err != nil {
		return fmt.Errorf("failed to checksum %s: %w", archivePath, err)
	}
	if sum != fields[0] {
		return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", filepath.Base(archivePath), fields[0], sum)
	}
	return nil
}
