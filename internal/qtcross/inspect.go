package qtcross

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// formatFromName infers an archive format from its file name.
func formatFromName(name string) (ArchiveFormat, error) {
	for _, f := range []ArchiveFormat{FormatZip, FormatTarGz, FormatTarZst} {
		if strings.HasSuffix(name, "."+string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported archive format: %q", name)
}

// ArchiveEntries lists the entry names stored in a packaged archive.
func ArchiveEntries(archivePath string) ([]string, error) {
	format, err := formatFromName(archivePath)
	if err != nil {
		return nil, err
	}
	if format == FormatZip {
		zr, err := zip.OpenReader(archivePath)
		if err != nil {
			return nil, fmt.Errorf("error opening zip: %w", err)
		}
		defer zr.Close()
		names := make([]string, 0, len(zr.File))
		for _, f := range zr.File {
			names = append(names, f.Name)
		}
		return names, nil
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	defer f.Close()

	var r io.Reader
	if format == FormatTarZst {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("error creating zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	} else {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("error creating gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var names []string
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading tar: %w", err)
		}
		names = append(names, hdr.Name)
	}
	return names, nil
}

// bundledRuntime returns which of the known runtime libraries an archive carries.
func bundledRuntime(entries []string) (found []string) {
	known := make(map[string]bool)
	for _, name := range append(append([]string(nil), mingwRuntimeFiles...), opensslRuntimeFiles...) {
		known[name] = true
	}
	for _, e := range entries {
		if base := path.Base(e); known[base] && !strings.HasSuffix(e, "/") {
			found = append(found, e)
		}
	}
	return found
}

func handleInspectCommand(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: qtcross inspect <archive>")
	}
	archivePath := args[0]
	arrowf(colInfo, "Checking %s...\n", archivePath)

	if _, err := os.Stat(archivePath + ChecksumSuffix); err == nil {
		if err := VerifyChecksumFile(archivePath); err != nil {
			return err
		}
		arrowf(colSuccess, "Checksum OK\n")
	}

	entries, err := ArchiveEntries(archivePath)
	if err != nil {
		return err
	}
	fmt.Printf("  %d entries\n", len(entries))
	runtimeLibs := bundledRuntime(entries)
	if len(runtimeLibs) == 0 {
		fmt.Println("  No bundled runtime libraries")
		return nil
	}
	fmt.Println("  Bundled runtime libraries:")
	for _, e := range runtimeLibs {
		fmt.Printf("    %s\n", e)
	}
	return nil
}
