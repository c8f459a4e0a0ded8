package qtcross

import (
	"fmt"
	"path/filepath"
	"time"
)

// Archiver compresses a directory tree into a single archive file.
type Archiver interface {
	CreateArchive(sourceDir, destinationPath string, format ArchiveFormat) error
}

// Components are the values an archive name is built from.
type Components struct {
	Product         string
	Version         string
	TargetOS        string
	TargetOSVersion string
	TargetABI       string
	Platform        Platform
	Timestamp       time.Time
}

// ComponentsFrom captures the naming components for a build at time now.
func ComponentsFrom(p Provider, platform Platform, now time.Time) Components {
	return Components{
		Product:         p.Product(),
		Version:         p.ProductVersion(),
		TargetOS:        p.TargetOS(),
		TargetOSVersion: p.TargetOSVersion(),
		TargetABI:       p.TargetABI(),
		Platform:        platform,
		Timestamp:       now,
	}
}

// Packager turns an install prefix into a named archive in OutputDir.
type Packager struct {
	OutputDir string
	Archiver  Archiver
	// Format overrides the platform's archive format when set.
	Format ArchiveFormat
}

func (p *Packager) format(c Components) ArchiveFormat {
	if p.Format != "" {
		return p.Format
	}
	return c.Platform.ArchiveFormat()
}

// ArchiveName renders
// {Product}{version}_{TargetOS}{targetOSVersion}_{targetABI}_{platform}_{YYYYMMDDHHMM}.{ext}
func ArchiveName(c Components, format ArchiveFormat) string {
	return fmt.Sprintf("%s%s_%s%s_%s_%s_%s.%s",
		c.Product, c.Version,
		c.TargetOS, c.TargetOSVersion,
		c.TargetABI,
		c.Platform,
		c.Timestamp.Format("200601021504"),
		format,
	)
}

// Pack archives installPrefix and returns the archive path. An empty prefix
// fails with ErrPackagingConfig before anything touches the filesystem.
// Archiver errors are returned as they are.
func (p *Packager) Pack(installPrefix string, c Components) (string, error) {
	if installPrefix == "" {
		return "", ErrPackagingConfig
	}
	format := p.format(c)
	archivePath := filepath.Join(p.OutputDir, ArchiveName(c, format))
	arrowf(colInfo, "Packing %s -> %s\n", installPrefix, archivePath)
	if err := p.Archiver.CreateArchive(installPrefix, archivePath, format); err != nil {
		return "", err
	}
	return archivePath, nil
}
