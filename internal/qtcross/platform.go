package qtcross

import (
	"fmt"
	"runtime"
)

// Platform is the build machine's operating system.
type Platform int

const (
	Windows Platform = iota + 1
	Linux
	MacOS
)

// ArchiveFormat names the compression format of a packaged artifact.
type ArchiveFormat string

const (
	FormatZip    ArchiveFormat = "zip"
	FormatTarGz  ArchiveFormat = "tar.gz"
	FormatTarZst ArchiveFormat = "tar.zst"
)

// DetectPlatform maps a GOOS value onto the supported platforms.
func DetectPlatform(goos string) (Platform, error) {
	switch goos {
	case "windows":
		return Windows, nil
	case "linux":
		return Linux, nil
	case "darwin":
		return MacOS, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, goos)
}

// HostPlatform detects the platform the binary is running on.
func HostPlatform() (Platform, error) {
	return DetectPlatform(runtime.GOOS)
}

// String returns the lower-case system name used in archive names.
func (p Platform) String() string {
	switch p {
	case Windows:
		return "windows"
	case Linux:
		return "linux"
	case MacOS:
		return "darwin"
	}
	return "unknown"
}

func (p Platform) ExeSuffix() string {
	if p == Windows {
		return ".exe"
	}
	return ""
}

// ConfigureScript is the name of the toolkit's configure entry point.
func (p Platform) ConfigureScript() string {
	if p == Windows {
		return "configure.bat"
	}
	return "configure"
}

func (p Platform) ArchiveFormat() ArchiveFormat {
	if p == Windows {
		return FormatZip
	}
	return FormatTarGz
}

// ParseArchiveFormat accepts the formats the default archiver can write.
func ParseArchiveFormat(s string) (ArchiveFormat, error) {
	switch f := ArchiveFormat(s); f {
	case FormatZip, FormatTarGz, FormatTarZst:
		return f, nil
	}
	return "", fmt.Errorf("unsupported archive format: %q", s)
}
