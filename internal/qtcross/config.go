package qtcross

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"
)

// Provider supplies the paths and option lists a build needs.
type Provider interface {
	// Path returns a resolved SDK or dependency root by name (e.g. "ohos_sdk", "openssl").
	Path(name string) string
	// BuildToolPath returns a named build tool root (e.g. "mingw").
	BuildToolPath(name string) string
	BuildType() string
	HostConfigureOptions() []string
	CrossConfigureOptions() []string
	HostPrefix() string
	CrossPrefix() string
	OpenSSLRuntime() bool
	Product() string
	ProductVersion() string
	TargetOS() string
	TargetOSVersion() string
	TargetABI() string
	OutputPath() string
}

// Config struct
type Config struct {
	Values map[string]string
}

var _ Provider = (*Config)(nil)

// Load /etc/qtcross.conf and apply QTCROSS_* environment overrides.
// A missing file is not an error; the environment alone may configure a build.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, val, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			val = strings.Trim(strings.TrimSpace(val), `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to open config %s: %w", path, err)
	}

	mergeEnvOverrides(cfg, os.Environ())
	initConfig(cfg)
	return cfg, nil
}

// Merge QTCROSS_* env overrides
func mergeEnvOverrides(cfg *Config, environ []string) {
	for _, env := range environ {
		if !strings.HasPrefix(env, "QTCROSS_") {
			continue
		}
		if key, val, ok := strings.Cut(env, "="); ok {
			cfg.Values[key] = val
		}
	}
}

func initConfig(cfg *Config) {
	Debug = cfg.Values["QTCROSS_DEBUG"] == "1"
	if cfg.Values["QTCROSS_BUILD_TYPE"] == "" {
		cfg.Values["QTCROSS_BUILD_TYPE"] = "release"
	}
	if cfg.Values["QTCROSS_PRODUCT"] == "" {
		cfg.Values["QTCROSS_PRODUCT"] = "Qt"
	}
	if cfg.Values["QTCROSS_TARGET_OS"] == "" {
		cfg.Values["QTCROSS_TARGET_OS"] = "OHOS"
	}
	if cfg.Values["QTCROSS_OUTPUT"] == "" {
		cfg.Values["QTCROSS_OUTPUT"] = "."
	}
	if cfg.Values["QTCROSS_REF"] == "" {
		cfg.Values["QTCROSS_REF"] = "HEAD"
	}
}

// configKey turns a provider name like "ohos_sdk" into "OHOS_SDK".
func configKey(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func (c *Config) Path(name string) string {
	return c.Values["QTCROSS_PATH_"+configKey(name)]
}

func (c *Config) BuildToolPath(name string) string {
	return c.Values["QTCROSS_TOOL_"+configKey(name)]
}

func (c *Config) BuildType() string { return c.Values["QTCROSS_BUILD_TYPE"] }

func (c *Config) HostConfigureOptions() []string {
	return c.options("QTCROSS_HOST_OPTIONS")
}

func (c *Config) CrossConfigureOptions() []string {
	return c.options("QTCROSS_CROSS_OPTIONS")
}

// options splits a shell-quoted option string. A malformed value is used
// word by word rather than dropped so the configure tool reports it.
func (c *Config) options(key string) []string {
	raw := c.Values[key]
	args, err := shellwords.Parse(raw)
	if err != nil {
		colArrow.Print("-> ")
		colWarn.Printf("%s is not valid shell syntax (%v), splitting on whitespace\n", key, err)
		return strings.Fields(raw)
	}
	return args
}

func (c *Config) HostPrefix() string { return c.Values["QTCROSS_HOST_PREFIX"] }
func (c *Config) CrossPrefix() string { return c.Values["QTCROSS_PREFIX"] }
func (c *Config) OpenSSLRuntime() bool { return c.Values["QTCROSS_OPENSSL_RUNTIME"] == "1" }
func (c *Config) Product() string { return c.Values["QTCROSS_PRODUCT"] }
func (c *Config) ProductVersion() string { return c.Values["QTCROSS_VERSION"] }
func (c *Config) TargetOS() string { return c.Values["QTCROSS_TARGET_OS"] }
func (c *Config) TargetOSVersion() string { return c.Values["QTCROSS_TARGET_OS_VERSION"] }
func (c *Config) TargetABI() string { return c.Values["QTCROSS_ABI"] }
func (c *Config) OutputPath() string { return c.Values["QTCROSS_OUTPUT"] }

// SourceDir is the toolkit source tree the build directories live under.
func (c *Config) SourceDir() string { return c.Values["QTCROSS_SOURCE"] }

// Jobs returns the configured build parallelism, defaulting to the CPU count.
func (c *Config) Jobs() int {
	if n, err := strconv.Atoi(c.Values["QTCROSS_JOBS"]); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// ArchiveFormat returns the configured format override, or the platform default.
func (c *Config) ArchiveFormat(p Platform) (ArchiveFormat, error) {
	if f := c.Values["QTCROSS_ARCHIVE_FORMAT"]; f != "" {
		return ParseArchiveFormat(f)
	}
	return p.ArchiveFormat(), nil
}
