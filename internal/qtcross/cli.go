package qtcross

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
)

// printHelp prints the commands table
func printHelp() {
	colSuccess.Println("Usage: qtcross <command> [arguments]")
	fmt.Println()
	color.Info.Println("Available Commands:")

	cmds := [][3]string{
		{"version", "", "Version information"},
		{"info", "", "Show build directories, prefixes and toolchain"},
		{"configure", "", "Configure the host build"},
		{"build", "[-jobs N] [-pack] [-pin]", "Run host and cross configure/build/install"},
		{"pack", "", "Archive the cross install prefix"},
		{"inspect", "<archive>", "Verify an archive and list its bundled runtime libraries"},
		{"clean", "", "Remove the host and cross build directories"},
		{"pin", "[-ref REF] [-hash HASH]", "Record the upstream commit in the commit hash file"},
		{"revision", "", "Show the pinned upstream commit"},
		{"log", "<stage>", "View a stage's build log"},
		{"upload", "[-force] <archive>", "Upload an archive and its checksum to the artifact bucket"},
	}

	width := 0
	for _, c := range cmds {
		if n := len(c[0]) + len(c[1]) + 1; n > width {
			width = n
		}
	}
	for _, c := range cmds {
		fmt.Print("  ")
		color.Bold.Print(c[0])
		fmt.Print(" ")
		color.Cyan.Print(c[1])
		fmt.Print(strings.Repeat(" ", width-len(c[0])-len(c[1])+3))
		color.Info.Println(c[2])
	}
	fmt.Println()
}

// Main is the CLI entrypoint.
func Main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			colArrow.Print("\n-> ")
			color.Danger.Printf("Received %v. Stopping the running tool\n", sig)
			cancel()
			select {
			case <-sigs:
				colArrow.Print("\n-> ")
				color.Danger.Println("Second interrupt received. Forcing immediate exit.")
				os.Exit(130)
			case <-time.After(5 * time.Second):
				os.Exit(130)
			}
		case <-ctx.Done():
		}
	}()

	if len(os.Args) < 2 {
		printHelp()
		return
	}

	configPath := ConfigFile
	if p := os.Getenv("QTCROSS_CONFIG"); p != "" {
		configPath = p
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := runCommand(ctx, cfg, os.Args[1], os.Args[2:]); err != nil {
		colArrow.Print("-> ")
		colError.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, cfg *Config, cmd string, args []string) error {
	switch cmd {
	case "version", "--version":
		fmt.Printf("qtcross %s (built %s)\n", version, buildDate)
		return nil
	case "help", "-h", "--help":
		printHelp()
		return nil
	case "info":
		return withOrchestrator(cfg, func(o *Orchestrator) error {
			o.PrintInfo()
			if hash, ok, err := ReadFile(commitFile(cfg)); err == nil && ok {
				fmt.Printf("  %-18s %s\n", "Pinned revision:", hash)
			}
			return nil
		})
	case "configure":
		return withOrchestrator(cfg, func(o *Orchestrator) error {
			_, err := o.ConfigureHost(ctx)
			return err
		})
	case "build":
		return handleBuildCommand(ctx, cfg, args)
	case "pack":
		return handlePackCommand(cfg)
	case "inspect":
		return handleInspectCommand(args)
	case "clean":
		if err := CleanBuildDirectories(sourceDir(cfg), cfg.BuildType()); err != nil {
			return err
		}
		arrowf(colSuccess, "Build directories removed\n")
		return nil
	case "pin":
		return handlePinCommand(ctx, cfg, args)
	case "revision":
		hash, ok, err := ReadFile(commitFile(cfg))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no commit hash recorded in %s", commitFile(cfg))
		}
		fmt.Println(hash)
		return nil
	case "log":
		if len(args) != 1 {
			return errors.New("usage: qtcross log <stage>")
		}
		s, err := ParseStage(args[0])
		if err != nil {
			return err
		}
		return showStageLog(filepath.Join(sourceDir(cfg), "build", "logs"), s)
	case "upload":
		return handleUploadCommand(ctx, cfg, args)
	}
	printHelp()
	return fmt.Errorf("unknown command %q", cmd)
}

func sourceDir(cfg *Config) string {
	if dir := cfg.SourceDir(); dir != "" {
		return dir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func commitFile(cfg *Config) string {
	if f := cfg.Values["QTCROSS_COMMIT_FILE"]; f != "" {
		return f
	}
	return filepath.Join(sourceDir(cfg), "commit_hash")
}

// withOrchestrator builds an orchestrator for the configured source tree and
// releases its lock when fn returns.
func withOrchestrator(cfg *Config, fn func(o *Orchestrator) error) error {
	o, err := NewOrchestrator(Options{
		SourceDir: sourceDir(cfg),
		Config:    cfg,
		Runner:    NewExecutor(cfg),
	})
	if err != nil {
		return err
	}
	defer o.Close()
	return fn(o)
}

func newPackager(cfg *Config, p Platform) (*Packager, error) {
	format, err := cfg.ArchiveFormat(p)
	if err != nil {
		return nil, err
	}
	return &Packager{OutputDir: cfg.OutputPath(), Archiver: TarballArchiver{}, Format: format}, nil
}

func newPinner(cfg *Config) (*RevisionPinner, error) {
	repoURL := cfg.Values["QTCROSS_REPO_URL"]
	if repoURL == "" {
		return nil, errors.New("QTCROSS_REPO_URL is not set")
	}
	return NewRevisionPinner(repoURL, cfg.Values["QTCROSS_GIT"])
}

func handleBuildCommand(ctx context.Context, cfg *Config, args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	jobs := fs.Int("jobs", cfg.Jobs(), "Parallel build jobs.")
	pack := fs.Bool("pack", false, "Archive the cross install when the build succeeds.")
	pin := fs.Bool("pin", false, "Pin the latest upstream commit before building.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *pin {
		pinner, err := newPinner(cfg)
		if err != nil {
			return err
		}
		if _, err := pinner.UpdateFile(ctx, commitFile(cfg), ""); err != nil {
			return err
		}
	}

	start := time.Now()
	return withOrchestrator(cfg, func(o *Orchestrator) error {
		opts := RunOptions{Jobs: *jobs}
		if *pack {
			packager, err := newPackager(cfg, o.Platform())
			if err != nil {
				return err
			}
			opts.Packager = packager
		}
		archive, err := o.Run(ctx, opts)
		if err != nil {
			var stageErr *StageError
			if errors.As(err, &stageErr) {
				arrowf(colNote, "Full log: qtcross log %s\n", stageErr.Stage)
			}
			return err
		}
		if archive != "" {
			sumPath, err := WriteChecksumFile(archive)
			if err != nil {
				return err
			}
			debugf("checksum written to %s\n", sumPath)
		}
		arrowf(colSuccess, "Build finished in %s\n", time.Since(start).Round(time.Second))
		return nil
	})
}

// handlePackCommand archives an existing cross install without running the pipeline.
func handlePackCommand(cfg *Config) error {
	platform, err := HostPlatform()
	if err != nil {
		return err
	}
	packager, err := newPackager(cfg, platform)
	if err != nil {
		return err
	}
	archive, err := packager.Pack(cfg.CrossPrefix(), ComponentsFrom(cfg, platform, time.Now()))
	if err != nil {
		return err
	}
	if _, err := WriteChecksumFile(archive); err != nil {
		return err
	}
	arrowf(colSuccess, "Package created: %s\n", archive)
	return nil
}

func handlePinCommand(ctx context.Context, cfg *Config, args []string) error {
	fs := flag.NewFlagSet("pin", flag.ContinueOnError)
	ref := fs.String("ref", cfg.Values["QTCROSS_REF"], "Remote ref to pin.")
	hash := fs.String("hash", "", "Pin this commit instead of querying the remote.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *hash != "" {
		if err := WriteCommitFile(commitFile(cfg), CommitHash(*hash)); err != nil {
			return err
		}
		arrowf(colSuccess, "Updated %s with commit hash: %s\n", commitFile(cfg), *hash)
		return nil
	}

	pinner, err := newPinner(cfg)
	if err != nil {
		return err
	}
	latest, err := pinner.FetchLatest(ctx, *ref)
	if err != nil {
		return err
	}
	if previous, ok, _ := ReadFile(commitFile(cfg)); ok && previous == latest {
		arrowf(colInfo, "Already pinned to %s\n", latest)
		return nil
	}
	_, err = pinner.UpdateFile(ctx, commitFile(cfg), latest)
	return err
}

func handleUploadCommand(ctx context.Context, cfg *Config, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	force := fs.Bool("force", false, "Overwrite objects that already exist.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: qtcross upload [-force] <archive>")
	}

	client, err := NewBucketClient(ctx, cfg)
	if err != nil {
		return err
	}
	uploaded, err := UploadArtifact(ctx, client, cfg.Values["QTCROSS_BUCKET_PREFIX"], fs.Arg(0), *force)
	if err != nil {
		return err
	}
	arrowf(colSuccess, "Uploaded %d object(s) to %s\n", len(uploaded), client.BucketName)
	return nil
}
