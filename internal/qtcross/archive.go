package qtcross

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// TarballArchiver is the default Archiver. It writes zip, tar.gz or tar.zst
// archives in pure Go so packing behaves the same on every build machine.
type TarballArchiver struct{}

// CreateArchive writes sourceDir's contents to destinationPath. The archive is
// assembled next to the destination and renamed into place only when complete.
func (TarballArchiver) CreateArchive(sourceDir, destinationPath string, format ArchiveFormat) error {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return fmt.Errorf("cannot pack %s: %w", sourceDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cannot pack %s: not a directory", sourceDir)
	}
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	partPath := destinationPath + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}

	switch format {
	case FormatZip:
		err = writeZip(out, sourceDir)
	case FormatTarGz:
		err = writeTarGz(out, sourceDir)
	case FormatTarZst:
		err = writeTarZst(out, sourceDir)
	default:
		err = fmt.Errorf("unsupported archive format: %q", format)
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(partPath)
		return err
	}
	if err := os.Rename(partPath, destinationPath); err != nil {
		_ = os.Remove(partPath)
		return fmt.Errorf("failed to move archive into place: %w", err)
	}
	debugf("archive written: %s\n", destinationPath)
	return nil
}

func writeTarGz(w io.Writer, sourceDir string) error {
	gz := pgzip.NewWriter(w)
	if err := writeTar(gz, sourceDir); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

func writeTarZst(w io.Writer, sourceDir string) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := writeTar(zw, sourceDir); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// writeTar stores every entry under sourceDir with root ownership so the
// archive does not leak the build user's ids.
func writeTar(w io.Writer, sourceDir string) error {
	tw := tar.NewWriter(w)
	err := filepath.Walk(sourceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		var linkTarget string
		if info.Mode()&os.ModeSymlink != 0 {
			linkTarget, err = os.Readlink(path)
			if err != nil {
				return fmt.Errorf("readlink %s: %w", path, err)
			}
		}

		hdr, err := tar.FileInfoHeader(info, linkTarget)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		hdr.Uid, hdr.Gid = 0, 0
		hdr.Uname, hdr.Gname = "root", "root"

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyInto(tw, path)
	})
	if err != nil {
		tw.Close()
		return fmt.Errorf("failed to add files to archive: %w", err)
	}
	return tw.Close()
}

func writeZip(w io.Writer, sourceDir string) error {
	zw := zip.NewWriter(w)
	err := filepath.Walk(sourceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
			_, err = zw.CreateHeader(hdr)
			return err
		}
		hdr.Method = zip.Deflate

		entry, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			// zip stores a symlink as its target path
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("readlink %s: %w", path, err)
			}
			_, err = io.WriteString(entry, target)
			return err
		}
		return copyInto(entry, path)
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("failed to add files to archive: %w", err)
	}
	return zw.Close()
}

func copyInto(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
