package qtcross

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// BuildDirectories are the per-phase working directories under the source tree.
type BuildDirectories struct {
	Host  string
	Cross string
}

// Options configures a new Orchestrator.
type Options struct {
	SourceDir string
	Config    Provider
	// Platform defaults to the running system.
	Platform Platform
	// Runner defaults to an Executor.
	Runner Runner
	// Toolchain defaults to a PATH-searching Toolchain for Platform.
	Toolchain *Toolchain
	// Console receives live tool output; os.Stdout when nil.
	Console io.Writer
}

// Orchestrator drives the host phase and then the cross phase of a build.
// One Orchestrator owns its build directories exclusively until Close.
type Orchestrator struct {
	source   string
	cfg      Provider
	platform Platform
	runner   Runner
	dirs     BuildDirectories
	logDir   string
	paths    ToolchainPaths
	console  io.Writer
	lock     *buildLock

	state   State
	gen     int
	failure error
}

// NewOrchestrator resolves the toolchain, creates the build directories and
// takes the build lock. Nothing is created when the build driver is missing.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Config == nil {
		return nil, errors.New("no configuration provider")
	}
	if opts.SourceDir == "" {
		return nil, errors.New("source directory is not set")
	}
	source, err := filepath.Abs(opts.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source dir: %w", err)
	}

	platform := opts.Platform
	if platform == 0 {
		if platform, err = HostPlatform(); err != nil {
			return nil, err
		}
	} else if platform.String() == "unknown" {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedPlatform, int(platform))
	}

	dirs, err := buildDirectories(source, opts.Config.BuildType())
	if err != nil {
		return nil, err
	}

	toolchain := opts.Toolchain
	if toolchain == nil {
		toolchain = &Toolchain{Platform: platform}
	}
	paths, err := toolchain.ResolvePaths(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.Config.OpenSSLRuntime() && paths.OpenSSL == "" {
		return nil, errors.New("OpenSSL runtime is enabled but no openssl path is configured")
	}

	runner := opts.Runner
	if runner == nil {
		runner = &Executor{}
	}
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	buildRoot := filepath.Join(source, "build")
	o := &Orchestrator{
		source:   source,
		cfg:      opts.Config,
		platform: platform,
		runner:   runner,
		dirs:     dirs,
		logDir:   filepath.Join(buildRoot, "logs"),
		paths:    paths,
		console:  console,
	}
	if err := o.ensureDirs(); err != nil {
		return nil, err
	}
	if o.lock, err = acquireBuildLock(filepath.Join(buildRoot, lockFileName)); err != nil {
		return nil, err
	}
	return o, nil
}

const lockFileName = ".qtcross.lock"

// buildDirectories places the host and cross build dirs under <source>/build.
func buildDirectories(source, buildType string) (BuildDirectories, error) {
	switch buildType {
	case "", "host", "logs":
		return BuildDirectories{}, fmt.Errorf("invalid build type %q", buildType)
	}
	buildRoot := filepath.Join(source, "build")
	return BuildDirectories{
		Host:  filepath.Join(buildRoot, "host"),
		Cross: filepath.Join(buildRoot, buildType),
	}, nil
}

// removeBuildDirectories deletes both dirs, ignoring removal errors.
func removeBuildDirectories(dirs BuildDirectories) {
	for _, dir := range []string{dirs.Host, dirs.Cross} {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		arrowf(colWarn, "Removing build directory: %s\n", dir)
		if err := os.RemoveAll(dir); err != nil {
			debugf("removing %s: %v\n", dir, err)
		}
	}
}

// CleanBuildDirectories removes a source tree's build directories without
// resolving the toolchain. It fails while another run holds the build lock.
func CleanBuildDirectories(sourceDir, buildType string) error {
	source, err := filepath.Abs(sourceDir)
	if err != nil {
		return fmt.Errorf("failed to resolve source dir: %w", err)
	}
	dirs, err := buildDirectories(source, buildType)
	if err != nil {
		return err
	}
	if buildRoot := filepath.Dir(dirs.Host); isDir(buildRoot) {
		lock, err := acquireBuildLock(filepath.Join(buildRoot, lockFileName))
		if err != nil {
			return err
		}
		defer lock.release()
	}
	removeBuildDirectories(dirs)
	return nil
}

func (o *Orchestrator) ensureDirs() error {
	for _, dir := range []string{o.dirs.Host, o.dirs.Cross} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create build dir %s: %w", dir, err)
		}
	}
	return nil
}

// Close releases the build lock.
func (o *Orchestrator) Close() error {
	o.lock.release()
	return nil
}

func (o *Orchestrator) State() State { return o.state }
func (o *Orchestrator) Dirs() BuildDirectories { return o.dirs }
func (o *Orchestrator) Paths() ToolchainPaths { return o.paths }
func (o *Orchestrator) LogDir() string { return o.logDir }
func (o *Orchestrator) Platform() Platform { return o.platform }

// Err returns the error that moved the pipeline to Failed, if any.
func (o *Orchestrator) Err() error { return o.failure }

// check rejects a stage whose handle is stale or whose predecessor has not completed.
func (o *Orchestrator) check(gen int, s Stage) error {
	if o.state == StateFailed {
		return fmt.Errorf("%w: %v", ErrPipelineFailed, o.failure)
	}
	from := transitions[s].from
	if gen != o.gen || o.state != from {
		return fmt.Errorf("%w: %s needs state %s, pipeline is %s", ErrInvalidTransition, s.Title(), from, o.state)
	}
	return nil
}

// advance runs one stage body and moves to the stage's target state, or to Failed.
func (o *Orchestrator) advance(gen int, s Stage, body func() error) error {
	if err := o.check(gen, s); err != nil {
		return err
	}
	stageBanner(s)
	if err := body(); err != nil {
		o.state = StateFailed
		o.failure = err
		arrowf(colError, "%s failed\n", s.Title())
		return err
	}
	o.state = transitions[s].to
	arrowf(colSuccess, "%s succeeded\n", s.Title())
	return nil
}

// invoke runs one tool for a stage and turns a failed run into a *StageError.
func (o *Orchestrator) invoke(ctx context.Context, s Stage, dir, name string, args ...string) error {
	logw, err := openStageLog(o.logDir, s, o.console)
	if err != nil {
		return &StageError{Stage: s, Err: err}
	}
	defer logw.Close()

	inv := Invocation{
		Name:   name,
		Args:   args,
		Dir:    dir,
		Env:    PrepareEnvironment(o.paths),
		Stdout: logw,
		Stderr: logw,
	}
	arrowf(colInfo, "%s\n", inv)
	debugf("working directory: %s\n", dir)
	if err := o.runner.Run(ctx, inv); err != nil {
		return &StageError{
			Stage:    s,
			Command:  inv.CommandLine(),
			ExitCode: exitCode(err),
			Output:   logw.tail.String(),
			Err:      err,
		}
	}
	return nil
}

// copyAuxRuntime places the MinGW runtime next to the tools in prefix/bin.
func (o *Orchestrator) copyAuxRuntime(s Stage, prefix string) error {
	if o.paths.AuxRuntime == "" {
		debugf("no auxiliary runtime configured, skipping runtime copy\n")
		return nil
	}
	if prefix == "" {
		arrowf(colWarn, "Warning: install prefix not set, runtime dependencies not copied\n")
		return nil
	}
	return o.copyDeps(s, mingwRuntimeFiles, o.paths.AuxRuntime, filepath.Join(prefix, "bin"))
}

func (o *Orchestrator) copyDeps(s Stage, files []string, srcDir, dstDir string) error {
	report, err := CopyRuntimeDependencies(files, srcDir, dstDir)
	if err != nil {
		return &StageError{Stage: s, Err: err}
	}
	report.warn(srcDir)
	if len(report.Copied) > 0 {
		arrowf(colSuccess, "Copied %d runtime dependencies to %s\n", len(report.Copied), dstDir)
	}
	return nil
}

func (o *Orchestrator) configureScript() string {
	return filepath.Join(o.source, o.platform.ConfigureScript())
}

func parallelArgs(jobs int) []string {
	if jobs < 1 {
		jobs = 1
	}
	return []string{"--build", ".", "--parallel", strconv.Itoa(jobs)}
}

// ConfigureHost configures the host tools build. It is the only stage reachable from Init.
func (o *Orchestrator) ConfigureHost(ctx context.Context) (*HostConfigured, error) {
	gen := o.gen
	err := o.advance(gen, HostConfigure, func() error {
		if err := o.ensureDirs(); err != nil {
			return &StageError{Stage: HostConfigure, Err: err}
		}
		if err := o.invoke(ctx, HostConfigure, o.dirs.Host, o.configureScript(), o.cfg.HostConfigureOptions()...); err != nil {
			return err
		}
		return o.copyAuxRuntime(HostConfigure, o.cfg.HostPrefix())
	})
	if err != nil {
		return nil, err
	}
	return &HostConfigured{step{o, gen}}, nil
}

type step struct {
	o   *Orchestrator
	gen int
}

// HostConfigured is a pipeline whose host build is configured.
type HostConfigured struct{ step }

// Build compiles the host tools.
func (h *HostConfigured) Build(ctx context.Context, jobs int) (*HostBuilt, error) {
	o := h.o
	err := o.advance(h.gen, HostBuild, func() error {
		return o.invoke(ctx, HostBuild, o.dirs.Host, o.paths.Driver, parallelArgs(jobs)...)
	})
	if err != nil {
		return nil, err
	}
	return &HostBuilt{h.step}, nil
}

// HostBuilt is a pipeline whose host tools are compiled.
type HostBuilt struct{ step }

// Install installs the host tools into the host prefix.
func (h *HostBuilt) Install(ctx context.Context) (*HostInstalled, error) {
	o := h.o
	err := o.advance(h.gen, HostInstall, func() error {
		if err := o.invoke(ctx, HostInstall, o.dirs.Host, o.paths.Driver, "--install", "."); err != nil {
			return err
		}
		arrowf(colInfo, "Host install prefix: %s\n", o.cfg.HostPrefix())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &HostInstalled{h.step}, nil
}

// HostInstalled is a pipeline whose host tools are installed; the cross phase
// consumes them.
type HostInstalled struct{ step }

// crossConfigureArgs appends the cmake-level flags after the "--" separator.
func (o *Orchestrator) crossConfigureArgs() []string {
	args := append([]string(nil), o.cfg.CrossConfigureOptions()...)
	args = append(args, "--")
	if o.cfg.OpenSSLRuntime() {
		args = append(args, "-DOPENSSL_ROOT_DIR="+o.paths.OpenSSL)
	}
	return append(args, "-DQT_FORCE_BUILD_TOOLS=1")
}

// ConfigureCross configures the build for the target ABI.
func (h *HostInstalled) ConfigureCross(ctx context.Context) (*CrossConfigured, error) {
	o := h.o
	err := o.advance(h.gen, CrossConfigure, func() error {
		if err := o.invoke(ctx, CrossConfigure, o.dirs.Cross, o.configureScript(), o.crossConfigureArgs()...); err != nil {
			return err
		}
		return o.copyAuxRuntime(CrossConfigure, o.cfg.CrossPrefix())
	})
	if err != nil {
		return nil, err
	}
	return &CrossConfigured{h.step}, nil
}

// CrossConfigured is a pipeline whose cross build is configured.
type CrossConfigured struct{ step }

// Build compiles the toolkit for the target.
func (c *CrossConfigured) Build(ctx context.Context, jobs int) (*CrossBuilt, error) {
	o := c.o
	err := o.advance(c.gen, CrossBuild, func() error {
		return o.invoke(ctx, CrossBuild, o.dirs.Cross, o.paths.Driver, parallelArgs(jobs)...)
	})
	if err != nil {
		return nil, err
	}
	return &CrossBuilt{c.step}, nil
}

// CrossBuilt is a pipeline whose target build is compiled.
type CrossBuilt struct{ step }

// Install installs the target build and, when enabled, the OpenSSL runtime.
func (c *CrossBuilt) Install(ctx context.Context) (*CrossInstalled, error) {
	o := c.o
	err := o.advance(c.gen, CrossInstall, func() error {
		if err := o.invoke(ctx, CrossInstall, o.dirs.Cross, o.paths.Driver, "--install", "."); err != nil {
			return err
		}
		arrowf(colInfo, "Cross install prefix: %s\n", o.cfg.CrossPrefix())
		if !o.cfg.OpenSSLRuntime() {
			return nil
		}
		return o.copyDeps(CrossInstall, opensslRuntimeFiles,
			filepath.Join(o.paths.OpenSSL, "lib"), filepath.Join(o.cfg.CrossPrefix(), "lib"))
	})
	if err != nil {
		return nil, err
	}
	return &CrossInstalled{c.step}, nil
}

// CrossInstalled is a pipeline with a complete cross install, ready to pack.
type CrossInstalled struct{ step }

// Pack archives the cross install prefix. now is the capture timestamp.
func (c *CrossInstalled) Pack(p *Packager, now time.Time) (string, error) {
	o := c.o
	var archive string
	err := o.advance(c.gen, Pack, func() error {
		var err error
		archive, err = p.Pack(o.cfg.CrossPrefix(), ComponentsFrom(o.cfg, o.platform, now))
		return err
	})
	if err != nil {
		return "", err
	}
	arrowf(colSuccess, "Package created: %s\n", archive)
	return archive, nil
}

// Clean removes both build directories, ignoring removal errors, and resets
// the pipeline to Init. Handles obtained before Clean stop working.
func (o *Orchestrator) Clean() {
	removeBuildDirectories(o.dirs)
	o.state = StateInit
	o.failure = nil
	o.gen++
}

// RunOptions selects what Run does after the cross install.
type RunOptions struct {
	Jobs int
	// Packager packs the cross install when non-nil.
	Packager *Packager
	// Now supplies the pack timestamp; time.Now when nil.
	Now func() time.Time
}

// Run executes every stage in order and stops at the first failure. The
// returned path is the archive when a Packager was given.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (string, error) {
	hc, err := o.ConfigureHost(ctx)
	if err != nil {
		return "", err
	}
	hb, err := hc.Build(ctx, opts.Jobs)
	if err != nil {
		return "", err
	}
	hi, err := hb.Install(ctx)
	if err != nil {
		return "", err
	}
	cc, err := hi.ConfigureCross(ctx)
	if err != nil {
		return "", err
	}
	cb, err := cc.Build(ctx, opts.Jobs)
	if err != nil {
		return "", err
	}
	ci, err := cb.Install(ctx)
	if err != nil {
		return "", err
	}
	if opts.Packager == nil {
		return "", nil
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	return ci.Pack(opts.Packager, now())
}

// PrintInfo shows where this build reads and writes.
func (o *Orchestrator) PrintInfo() {
	colInfo.Println("Build information:")
	rows := [][2]string{
		{"System", o.platform.String()},
		{"Source dir", o.source},
		{"Host build dir", o.dirs.Host},
		{"Cross build dir", o.dirs.Cross},
		{"Host install dir", o.cfg.HostPrefix()},
		{"Cross install dir", o.cfg.CrossPrefix()},
		{"Build driver", o.paths.Driver},
		{"Logs", o.logDir},
		{"State", o.state.String()},
	}
	for _, r := range rows {
		fmt.Printf("  %-18s %s\n", r[0]+":", r[1])
	}
}
