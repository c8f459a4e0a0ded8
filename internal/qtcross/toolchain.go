package qtcross

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// MinGW runtime DLLs that host tools (qmake, moc, ...) need next to them on Windows.
var mingwRuntimeFiles = []string{"libstdc++-6.dll", "libgcc_s_seh-1.dll", "libwinpthread-1.dll"}

// OpenSSL shared libraries shipped with the cross install when the OpenSSL runtime is enabled.
var opensslRuntimeFiles = []string{"libcrypto.so", "libcrypto.so.1.1", "libssl.so", "libssl.so.1.1"}

// ToolchainPaths is resolved once per orchestrator and never changed afterwards.
type ToolchainPaths struct {
	Driver     string // absolute path to cmake
	AuxRuntime string // MinGW-style runtime dir, may be empty
	OpenSSL    string // OpenSSL install root, may be empty
}

// DriverDir is the directory holding the build driver.
func (p ToolchainPaths) DriverDir() string {
	if p.Driver == "" {
		return ""
	}
	return filepath.Dir(p.Driver)
}

// Toolchain locates build tools for one platform.
type Toolchain struct {
	Platform Platform
	// LookPath searches the system PATH; exec.LookPath when nil.
	LookPath func(file string) (string, error)
}

// sdkDriverPath is where the OHOS SDK ships its cmake.
func (t *Toolchain) sdkDriverPath(sdkPath string) string {
	return filepath.Join(sdkPath, "native", "build-tools", "cmake", "bin", "cmake"+t.Platform.ExeSuffix())
}

// ResolveBuildDriver prefers the SDK's cmake and falls back to one on PATH.
func (t *Toolchain) ResolveBuildDriver(sdkPath string) (string, error) {
	if sdkPath != "" {
		candidate := t.sdkDriverPath(sdkPath)
		if isFile(candidate) {
			if abs, err := filepath.Abs(candidate); err == nil {
				candidate = abs
			}
			return candidate, nil
		}
		debugf("cmake not found in SDK at %s\n", candidate)
	}

	lookPath := t.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if system, err := lookPath("cmake"); err == nil && isFile(system) {
		arrowf(colInfo, "Using system cmake: %s\n", system)
		return system, nil
	}
	return "", fmt.Errorf("%w: cmake not found in the SDK (%s) or on PATH", ErrToolNotFound, sdkPath)
}

// ResolvePaths resolves every toolchain location the provider names.
func (t *Toolchain) ResolvePaths(p Provider) (ToolchainPaths, error) {
	driver, err := t.ResolveBuildDriver(p.Path("ohos_sdk"))
	if err != nil {
		return ToolchainPaths{}, err
	}
	return ToolchainPaths{
		Driver:     driver,
		AuxRuntime: p.BuildToolPath("mingw"),
		OpenSSL:    p.Path("openssl"),
	}, nil
}

// EnvironmentOverlay is an ordered set of directories to put in front of PATH
// for a single process launch. The zero value adds nothing.
type EnvironmentOverlay struct {
	entries []string
}

// NewEnvironmentOverlay keeps the first occurrence of each non-empty entry.
func NewEnvironmentOverlay(entries ...string) EnvironmentOverlay {
	seen := make(map[string]bool, len(entries))
	var kept []string
	for _, e := range entries {
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		kept = append(kept, e)
	}
	return EnvironmentOverlay{entries: kept}
}

// Entries returns the overlay's directories in priority order.
func (o EnvironmentOverlay) Entries() []string {
	return append([]string(nil), o.entries...)
}

// Apply returns a copy of base with the overlay prepended to PATH.
func (o EnvironmentOverlay) Apply(base []string) []string {
	env := append([]string(nil), base...)
	if len(o.entries) == 0 {
		return env
	}
	prefix := strings.Join(o.entries, string(filepath.ListSeparator))
	for i, kv := range env {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !isPathKey(key) {
			continue
		}
		if val != "" {
			prefix += string(filepath.ListSeparator) + val
		}
		env[i] = key + "=" + prefix
		return env
	}
	return append(env, "PATH="+prefix)
}

func isPathKey(key string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(key, "PATH")
	}
	return key == "PATH"
}

// PrepareEnvironment builds the overlay for tool launches: build driver first,
// then the auxiliary runtime. Directories that do not exist are left out.
func PrepareEnvironment(paths ToolchainPaths) EnvironmentOverlay {
	var entries []string
	for _, dir := range []string{paths.DriverDir(), paths.AuxRuntime} {
		if dir == "" {
			continue
		}
		if isDir(dir) {
			entries = append(entries, dir)
		} else {
			debugf("skipping missing search path entry %s\n", dir)
		}
	}
	return NewEnvironmentOverlay(entries...)
}

// CopyFailure records a dependency that existed but could not be copied.
type CopyFailure struct {
	Name string
	Err  error
}

// CopyReport is the advisory outcome of a runtime dependency copy.
type CopyReport struct {
	Copied  []string
	Missing []string
	Failed  []CopyFailure
}

// Clean reports whether every file was copied.
func (r CopyReport) Clean() bool {
	return len(r.Missing) == 0 && len(r.Failed) == 0
}

// warn prints one warning per missing or failed file.
func (r CopyReport) warn(srcDir string) {
	for _, name := range r.Missing {
		arrowf(colWarn, "Warning: runtime dependency not found: %s\n", filepath.Join(srcDir, name))
	}
	for _, f := range r.Failed {
		arrowf(colWarn, "Warning: failed to copy runtime dependency %s: %v\n", f.Name, f.Err)
	}
}

// CopyRuntimeDependencies copies each listed file that exists in srcDir into dstDir.
// Missing or uncopyable files are reported, not returned; only failing to create
// dstDir is an error.
func CopyRuntimeDependencies(files []string, srcDir, dstDir string) (CopyReport, error) {
	var report CopyReport
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return report, fmt.Errorf("failed to create %s: %w", dstDir, err)
	}
	for _, name := range files {
		src := filepath.Join(srcDir, name)
		if !isFile(src) {
			report.Missing = append(report.Missing, name)
			continue
		}
		if err := copyFile(src, filepath.Join(dstDir, name)); err != nil {
			report.Failed = append(report.Failed, CopyFailure{Name: name, Err: err})
			continue
		}
		debugf("copied runtime dependency %s -> %s\n", name, dstDir)
		report.Copied = append(report.Copied, name)
	}
	return report, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, info.Mode().Perm())
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
