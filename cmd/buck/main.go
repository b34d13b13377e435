package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/bunnypak/buck2/internal/audit"
	"github.com/bunnypak/buck2/internal/clean"
	"github.com/bunnypak/buck2/internal/console"
	"github.com/bunnypak/buck2/internal/dice"
	"github.com/bunnypak/buck2/internal/dicefs"
	"github.com/bunnypak/buck2/internal/fileops"
	"github.com/bunnypak/buck2/internal/logging"
	"github.com/bunnypak/buck2/internal/otel"
	"github.com/bunnypak/buck2/internal/project"
	"github.com/bunnypak/buck2/internal/reqid"
	"github.com/bunnypak/buck2/internal/services"
)

const rootUsage = `buck — incremental build engine & tools

USAGE:
  buck <command> [flags]

COMMANDS:
  clean            Delete generated files and caches (kills the daemon)
  audit-providers  Print the providers of matched targets
  help             Show help for any command
`

const cleanUsage = `clean FLAGS:
  --dry-run                Print the paths that would be removed, remove nothing
  --stale[=DURATION]       Delete artifacts older than DURATION (default 1w)
                           without killing the daemon
  --tracked-only           Only consider tracked artifacts (requires --stale)
  -project.root <dir>      Project root (default: .)
  -daemon.base <dir>       Daemon directory base (default: ~/.buckd)
`

const auditProvidersUsage = `audit-providers FLAGS:
  <patterns...>            Target patterns, e.g. //pkg:name or //pkg:
  --quiet                  Print target labels only
  --list                   List provider names
  --print-debug            Print providers with Go syntax
  -project.root <dir>      Project root (default: .)
`

// Exit codes follow the client framework: 0 success, 2 user error, 1 infra
// error.
const (
	exitSuccess   = 0
	exitInfraErr  = 1
	exitUserError = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return exitUserError
	}

	logger, err := logging.New(logging.Options{Debug: os.Getenv("BUCK_DEBUG") != ""})
	if err != nil {
		fmt.Fprintf(os.Stderr, "buck: %v\n", err)
		return exitInfraErr
	}
	defer logger.Sync()

	bus := console.New()
	bus.Subscribe(func(ctx context.Context, event any) {
		if m, ok := event.(console.Message); ok {
			fmt.Fprintln(os.Stderr, m.Text)
		}
	})
	console.Use(bus)

	shutdown, err := otel.Setup(bus, os.Getenv("BUCK_OTEL_ENDPOINT"), "buck")
	if err != nil {
		logger.Warn("telemetry disabled", zap.Error(err))
		shutdown = func(context.Context) error { return nil }
	}
	defer shutdown(context.Background())

	cmd := args[0]
	cmdArgs := args[1:]
	ctx, _ := reqid.NewContext(context.Background())

	var cmdErr error
	start := time.Now()
	console.Publish(ctx, console.CommandStart{Name: cmd, Args: cmdArgs})
	switch cmd {
	case "clean":
		cmdErr = cmdClean(ctx, cmdArgs, logger)
	case "audit-providers":
		cmdErr = cmdAuditProviders(ctx, cmdArgs, logger)
	case "help":
		cmdErr = cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		cmdErr = usageError{fmt.Errorf("unknown command %q", cmd)}
	}
	console.Publish(ctx, console.CommandFinish{Name: cmd, Err: cmdErr, Duration: time.Since(start)})

	if cmdErr == nil {
		return exitSuccess
	}
	fmt.Fprintf(os.Stderr, "buck %s: %v\n", cmd, cmdErr)
	if isUserError(cmdErr) {
		return exitUserError
	}
	return exitInfraErr
}

// usageError marks command-line mistakes so they exit with the user-error
// code.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func isUserError(err error) bool {
	var ue usageError
	if errors.As(err, &ue) {
		return true
	}
	return errors.Is(err, audit.ErrAtLeastOneFailed)
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "clean":
		fmt.Print(cleanUsage)
	case "audit-providers":
		fmt.Print(auditProvidersUsage)
	default:
		return usageError{fmt.Errorf("unknown help topic %q", args[0])}
	}
	return nil
}

// staleFlag is an optional-value flag: present without a value selects the
// default stale age.
type staleFlag struct {
	set   bool
	value string
}

func (s *staleFlag) String() string { return s.value }

func (s *staleFlag) Set(v string) error {
	s.set = true
	s.value = v
	return nil
}

func (s *staleFlag) IsBoolFlag() bool { return true }

func cmdClean(ctx context.Context, args []string, logger *zap.Logger) error {
	projectRoot := "."
	daemonBase := ""
	dryRun := false
	trackedOnly := false
	var stale staleFlag
	var keepSinceTime int64
	keepSinceSet := false

	fs := flag.NewFlagSet("clean", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&projectRoot, "project.root", projectRoot, "Project root")
	fs.StringVar(&daemonBase, "daemon.base", daemonBase, "Daemon directory base")
	fs.BoolVar(&dryRun, "dry-run", dryRun, "Dry run")
	fs.BoolVar(&trackedOnly, "tracked-only", trackedOnly, "Tracked artifacts only")
	fs.Var(&stale, "stale", "Delete artifacts older than DURATION")
	fs.Func("keep-since-time", "Hidden: epoch cutoff for stale clean", func(v string) error {
		keepSinceSet = true
		_, err := fmt.Sscanf(v, "%d", &keepSinceTime)
		return err
	})
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, cleanUsage)
		return usageError{err}
	}
	if trackedOnly && !stale.set {
		fmt.Fprint(os.Stderr, cleanUsage)
		return usageError{fmt.Errorf("--tracked-only requires --stale")}
	}
	// The bool-flag trick delivers a bare --stale as the value "true"; a real
	// duration arrives as "--stale=1w".
	if stale.value == "true" {
		stale.value = ""
	}

	var keepSincePtr *int64
	if keepSinceSet {
		keepSincePtr = &keepSinceTime
	}
	keepSince, err := clean.ParseStaleArgs(stale.set, stale.value, keepSincePtr, time.Now())
	if err != nil {
		return usageError{err}
	}

	proj, err := project.Load(projectRoot)
	if err != nil {
		return usageError{err}
	}
	if daemonBase == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		daemonBase = filepath.Join(home, ".buckd")
	}

	return clean.Run(ctx, proj.BuckOut(), proj.DaemonDir(daemonBase), clean.Options{
		DryRun:      dryRun,
		KeepSince:   keepSince,
		TrackedOnly: trackedOnly,
	}, os.Stderr, logger)
}

func cmdAuditProviders(ctx context.Context, args []string, logger *zap.Logger) error {
	projectRoot := "."
	flags := audit.ProvidersFlags{}

	fs := flag.NewFlagSet("audit-providers", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&projectRoot, "project.root", projectRoot, "Project root")
	fs.BoolVar(&flags.Quiet, "quiet", false, "Labels only")
	fs.BoolVar(&flags.List, "list", false, "Provider names only")
	fs.BoolVar(&flags.PrintDebug, "print-debug", false, "Debug formatting")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, auditProvidersUsage)
		return usageError{err}
	}
	patterns := fs.Args()
	if len(patterns) == 0 {
		fmt.Fprint(os.Stderr, auditProvidersUsage)
		return usageError{fmt.Errorf("at least one target pattern is required")}
	}

	proj, err := project.Load(projectRoot)
	if err != nil {
		return usageError{err}
	}
	calc, err := services.Get[audit.Calculation](services.Default, services.RuleAnalysis)
	if err != nil {
		return err
	}

	eng := dice.New()
	dicefs.Attach(eng, fileops.NewFsIoProvider(proj.Root), &dicefs.ProjectState{Cells: proj.Cells, Ignores: proj.Ignores})
	tx := eng.Current()
	defer tx.Close()

	logger.Info("auditing providers", zap.Strings("patterns", patterns))
	return audit.Providers(ctx, tx, calc, patterns, proj.Cells.RootCell(), flags, os.Stdout, os.Stderr)
}
