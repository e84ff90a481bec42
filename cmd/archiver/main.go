// Trades Archiver CLI
// This application fetches the recent trade list of one market from an exchange
// REST API, writes it as a dated CSV file and uploads that file to S3. It can run
// once, run on a cron schedule, or list the runs recorded in the ledger.
//
// Usage:
//
//	archiver run --symbol BTC-BRL --dir ./data/trades
//	archiver schedule --cron "0 */15 * * * *" --run-now
//	archiver history --limit 20 --format json
//
// For detailed help on any command, use: archiver <command> --help
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	archerr "github.com/johnayoung/go-trades-archiver/internal/errors"
	"github.com/joho/godotenv"
)

// CLI version information
const (
	Version    = "1.0.0"
	AppName    = "archiver"
	ConfigFile = "archiver.yaml"
)

// Exit codes following standard conventions
const (
	ExitSuccess          = 0
	ExitUsageError       = 1 // bad arguments or an unclassified failure
	ExitConfigError      = 2
	ExitDataSourceError  = 3
	ExitInputShapeError  = 4
	ExitDestinationError = 5
	ExitUploadError      = 6
	ExitInterrupt        = 130
)

// exitError carries the exit code for failures that happen outside the pipeline
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(format string, args ...interface{}) error {
	return &exitError{code: ExitUsageError, err: fmt.Errorf(format, args...)}
}

func configError(err error) error {
	return &exitError{code: ExitConfigError, err: err}
}

// main is the entry point for the CLI application
func main() {
	// Variables already present in the environment win over .env entries
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run dispatches one command and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return ExitUsageError
	}

	command, rest := args[0], args[1:]

	var err error
	switch command {
	case "run":
		err = handleRun(ctx, rest, stdout, stderr)
	case "schedule":
		err = handleSchedule(ctx, rest, stdout, stderr)
	case "history":
		err = handleHistory(ctx, rest, stdout, stderr)
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "%s version %s\n", AppName, Version)
	case "help", "--help", "-h":
		if len(rest) > 0 {
			printCommandHelp(stdout, rest[0])
		} else {
			printUsage(stdout)
		}
	default:
		fmt.Fprintf(stderr, "Error: Unknown command '%s'\n\n", command)
		printUsage(stderr)
		return ExitUsageError
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCode(ctx, err)
}

// exitCode maps a command error to the process exit code
func exitCode(ctx context.Context, err error) int {
	if err == nil {
		return ExitSuccess
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}

	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return ExitInterrupt
	}

	switch archerr.KindOf(err) {
	case archerr.KindDataSource:
		return ExitDataSourceError
	case archerr.KindInputShape:
		return ExitInputShapeError
	case archerr.KindDestination:
		return ExitDestinationError
	case archerr.KindUpload:
		return ExitUploadError
	}

	if ctx.Err() != nil {
		return ExitInterrupt
	}
	return ExitUsageError
}
