package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/artpar/bluegreen/internal/core/workflow"
	"github.com/artpar/bluegreen/internal/engine"
	"github.com/artpar/bluegreen/internal/shell/awsapi"
	"github.com/artpar/bluegreen/internal/shell/bluegreen"
	"github.com/artpar/bluegreen/internal/shell/health"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Exit codes
const (
	ExitSuccess            = 0
	ExitPreconditionFailed = 1
	ExitUsage              = 2
	ExitConfigError        = 3
	ExitBackendError       = 4
	ExitInvariantViolation = 5
	ExitArtifactError      = 6
	ExitRolloutFailed      = 7
	ExitSplitState         = 8
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bluegreen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	output := fs.String("output", engine.OutputJSON, "status output format: json or yaml")
	showVersion := fs.Bool("version", false, "Print version and exit")
	fs.Usage = func() { usage(fs) }

	// Flags may come before the command, between it and its version, or
	// after the version.
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitUsage
	}
	if *showVersion {
		fmt.Fprintf(stdout, "bluegreen %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}
	if fs.NArg() == 0 {
		usage(fs)
		return ExitUsage
	}
	command := fs.Arg(0)
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		return ExitUsage
	}

	if !slices.Contains(workflow.Commands, command) {
		fmt.Fprintf(stderr, "Error: unknown command %q\n", command)
		usage(fs)
		return ExitUsage
	}
	data := map[string]any{}
	if workflow.TakesVersion(command) {
		if fs.NArg() == 0 {
			fmt.Fprintf(stderr, "Error: usage: bluegreen %s <version>\n", command)
			return ExitUsage
		}
		data["version"] = fs.Arg(0)
		if err := fs.Parse(fs.Args()[1:]); err != nil {
			return ExitUsage
		}
		if fs.NArg() != 0 {
			fmt.Fprintf(stderr, "Error: usage: bluegreen %s <version>\n", command)
			return ExitUsage
		}
	} else if fs.NArg() != 0 {
		fmt.Fprintf(stderr, "Error: %s takes no arguments\n", command)
		return ExitUsage
	}
	if *output != engine.OutputJSON && *output != engine.OutputYAML {
		fmt.Fprintf(stderr, "Error: unknown output format %q\n", *output)
		return ExitUsage
	}

	// Load configuration
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	// Setup logger
	logger := SetupLogger(cfg, stderr).With(
		"run_id", uuid.NewString(),
		"command", command,
	)
	logger.Debug("starting bluegreen",
		"version", Version,
		"service", cfg.ServiceName,
		"cluster", cfg.Cluster,
	)

	ctx := context.Background()
	clients, err := awsapi.NewClients(ctx, cfg.AWSOptions(), logger)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	svc := bluegreen.NewService(clients.ECS, clients.ELB, cfg.BlueGreen(), stdout, logger)
	effective := svc.Config()
	logger.Debug("effective deploy settings",
		"poll_interval", effective.PollInterval,
		"max_attempts", effective.MaxAttempts,
		"swap_retries", effective.SwapRetries,
		"swap_retry_backoff", effective.SwapRetryBackoff,
	)

	bus := engine.NewBus(engine.Deps{
		BlueGreen:   svc,
		Health:      health.NewProber(cfg.HealthProbe(), logger),
		Stdout:      stdout,
		Stderr:      stderr,
		Logger:      logger,
		SearchDepth: int32(cfg.Search.Depth),
		Output:      *output,
	})
	engine.RegisterHandlers(bus)

	if err := bus.Dispatch(ctx, command, data); err != nil {
		code := exitCode(err)
		logger.Debug("command failed", "exit_code", code, "error", err)
		fmt.Fprintln(stderr, errorLine(err))
		return code
	}
	return ExitSuccess
}

// exitCode maps an error class to the process exit status. Split state is
// checked before invariant violation, which it wraps.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, bluegreen.ErrSplitState):
		return ExitSplitState
	case errors.Is(err, workflow.ErrPreconditionFailed):
		return ExitPreconditionFailed
	case errors.Is(err, engine.ErrUsage), errors.Is(err, engine.ErrUnknownCommand):
		return ExitUsage
	case errors.Is(err, bluegreen.ErrRolloutFailed):
		return ExitRolloutFailed
	case errors.Is(err, bluegreen.ErrArtifactCreationFailed):
		return ExitArtifactError
	case errors.Is(err, bluegreen.ErrInvariantViolation):
		return ExitInvariantViolation
	default:
		return ExitBackendError
	}
}

// errorLine renders err for standard error. A precondition failure prints
// as "<Condition>: <message>" so scripts can match the leading name.
func errorLine(err error) string {
	var perr *workflow.PreconditionError
	if errors.As(err, &perr) {
		return perr.Error()
	}
	return "Error: " + err.Error()
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintf(w, "Usage: bluegreen [flags] <command> [version]\n\nCommands:\n  %s\n\nFlags:\n",
		strings.Join(workflow.Commands, "\n  "))
	fs.PrintDefaults()
}
