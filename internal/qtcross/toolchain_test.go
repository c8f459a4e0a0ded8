package qtcross

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveBuildDriverPrefersSDK(t *testing.T) {
	sdk := fakeSDK(t)
	tc := &Toolchain{Platform: Linux, LookPath: func(string) (string, error) {
		t.Fatal("PATH must not be searched when the SDK has cmake")
		return "", nil
	}}

	driver, err := tc.ResolveBuildDriver(sdk)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(sdk, "native", "build-tools", "cmake", "bin", "cmake"), driver)
	require.True(t, filepath.IsAbs(driver))
}

func TestResolveBuildDriverWindowsSuffix(t *testing.T) {
	sdk := t.TempDir()
	bin := filepath.Join(sdk, "native", "build-tools", "cmake", "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "cmake.exe"), nil, 0o755))

	driver, err := (&Toolchain{Platform: Windows, LookPath: noLookPath}).ResolveBuildDriver(sdk)
	require.NoError(t, err)
	require.Equal(t, "cmake.exe", filepath.Base(driver))

	_, err = (&Toolchain{Platform: Linux, LookPath: noLookPath}).ResolveBuildDriver(sdk)
	require.ErrorIs(t, err, ErrToolNotFound)
}

func TestResolveBuildDriverFallsBackToPath(t *testing.T) {
	system := filepath.Join(t.TempDir(), "cmake")
	require.NoError(t, os.WriteFile(system, nil, 0o755))
	tc := &Toolchain{Platform: Linux, LookPath: func(name string) (string, error) {
		require.Equal(t, "cmake", name)
		return system, nil
	}}

	driver, err := tc.ResolveBuildDriver(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, system, driver)

	driver, err = tc.ResolveBuildDriver("")
	require.NoError(t, err)
	require.Equal(t, system, driver)
}

func TestResolveBuildDriverNotFound(t *testing.T) {
	tc := &Toolchain{Platform: Linux, LookPath: noLookPath}
	_, err := tc.ResolveBuildDriver(t.TempDir())
	require.ErrorIs(t, err, ErrToolNotFound)

	// a PATH hit that is not a regular file does not count
	dir := t.TempDir()
	tc.LookPath = func(string) (string, error) { return dir, nil }
	_, err = tc.ResolveBuildDriver("")
	require.ErrorIs(t, err, ErrToolNotFound)
}

func TestEnvironmentOverlayApply(t *testing.T) {
	sep := string(filepath.ListSeparator)
	overlay := NewEnvironmentOverlay("/sdk/bin", "", "/mingw/bin", "/sdk/bin")
	require.Equal(t, []string{"/sdk/bin", "/mingw/bin"}, overlay.Entries())

	base := []string{"HOME=/home/dev", "PATH=/usr/bin" + sep + "/bin"}
	env := overlay.Apply(base)

	require.Equal(t, "PATH=/sdk/bin"+sep+"/mingw/bin"+sep+"/usr/bin"+sep+"/bin", env[1])
	require.Equal(t, "HOME=/home/dev", env[0])
	require.Equal(t, "PATH=/usr/bin"+sep+"/bin", base[1], "base environment must not change")
}

func TestEnvironmentOverlayWithoutPath(t *testing.T) {
	env := NewEnvironmentOverlay("/sdk/bin").Apply([]string{"HOME=/home/dev"})
	require.Equal(t, []string{"HOME=/home/dev", "PATH=/sdk/bin"}, env)

	empty := EnvironmentOverlay{}.Apply([]string{"PATH=/usr/bin"})
	require.Equal(t, []string{"PATH=/usr/bin"}, empty)
}

func TestEnvironmentOverlayLeavesProcessEnvironment(t *testing.T) {
	t.Setenv("PATH", "/usr/bin")
	_ = NewEnvironmentOverlay("/sdk/bin").Apply(os.Environ())
	require.Equal(t, "/usr/bin", os.Getenv("PATH"))
}

func TestPrepareEnvironmentSkipsMissingDirectories(t *testing.T) {
	sdk := fakeSDK(t)
	paths := ToolchainPaths{
		Driver:     filepath.Join(sdk, "native", "build-tools", "cmake", "bin", "cmake"),
		AuxRuntime: filepath.Join(t.TempDir(), "missing"),
	}
	overlay := PrepareEnvironment(paths)
	require.Equal(t, []string{paths.DriverDir()}, overlay.Entries())
}

func TestCopyRuntimeDependencies(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "prefix", "bin")
	require.NoError(t, os.WriteFile(filepath.Join(src, "libstdc++-6.dll"), []byte("stdc++"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "libgcc_s_seh-1.dll"), []byte("gcc"), 0o644))

	report, err := CopyRuntimeDependencies(mingwRuntimeFiles, src, dst)
	require.NoError(t, err)
	require.Equal(t, []string{"libstdc++-6.dll", "libgcc_s_seh-1.dll"}, report.Copied)
	require.Equal(t, []string{"libwinpthread-1.dll"}, report.Missing)
	require.Empty(t, report.Failed)
	require.False(t, report.Clean())

	data, err := os.ReadFile(filepath.Join(dst, "libgcc_s_seh-1.dll"))
	require.NoError(t, err)
	require.Equal(t, "gcc", string(data))
}

func TestCopyRuntimeDependenciesOverwrites(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "libssl.so"), []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "libssl.so"), []byte("old contents"), 0o644))

	report, err := CopyRuntimeDependencies([]string{"libssl.so"}, src, dst)
	require.NoError(t, err)
	require.True(t, report.Clean())

	data, err := os.ReadFile(filepath.Join(dst, "libssl.so"))
	require.NoError(t, err)
	require.Equal(t, "new", string(data))
}

func TestCopyRuntimeDependenciesUnwritableDestination(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := CopyRuntimeDependencies(mingwRuntimeFiles, t.TempDir(), filepath.Join(blocker, "bin"))
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "failed to create"))
}
