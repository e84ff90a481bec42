package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/johnayoung/go-trades-archiver/internal/config"
	"github.com/johnayoung/go-trades-archiver/internal/ledger"
	"github.com/johnayoung/go-trades-archiver/internal/scheduler"
	"golang.org/x/term"
)

// handleRun handles the 'run' command: one archive run
func handleRun(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags, err := parseRunFlags(args)
	if err != nil {
		return err
	}

	if flags.Help {
		printCommandHelp(stdout, "run")
		return nil
	}

	app, err := newApp(ctx, flags.ConfigPath, stderr, func(cfg *config.AppConfig) {
		if flags.Symbol != "" {
			cfg.Exchange.Symbol = flags.Symbol
		}
		if flags.Directory != "" {
			cfg.Archive.Directory = flags.Directory
		}
	})
	if err != nil {
		return err
	}
	defer app.Close()

	p, err := app.buildPipeline(ctx)
	if err != nil {
		return err
	}

	report, err := p.Run(ctx)
	if err != nil {
		return err
	}

	if flags.JSON {
		encoder := json.NewEncoder(stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	fmt.Fprintf(stdout, "Saved %d trades (%d columns) to %s\n", report.Rows, len(report.Columns), report.FilePath)
	fmt.Fprintf(stdout, "Uploaded to %s\n", report.Object.URI())
	if report.PublishError != "" {
		fmt.Fprintf(stdout, "Warning: archive event not published: %s\n", report.PublishError)
	}
	return nil
}

// handleSchedule handles the 'schedule' command: run the pipeline on a cron schedule
// until interrupted
func handleSchedule(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags, err := parseScheduleFlags(args)
	if err != nil {
		return err
	}

	if flags.Help {
		printCommandHelp(stdout, "schedule")
		return nil
	}

	app, err := newApp(ctx, flags.ConfigPath, stderr, func(cfg *config.AppConfig) {
		if flags.Symbol != "" {
			cfg.Exchange.Symbol = flags.Symbol
		}
		if flags.Directory != "" {
			cfg.Archive.Directory = flags.Directory
		}
		if flags.Cron != "" {
			cfg.Scheduler.Cron = flags.Cron
		}
		if flags.RunNow {
			cfg.Scheduler.RunOnStart = true
		}
	})
	if err != nil {
		return err
	}
	defer app.Close()

	p, err := app.buildPipeline(ctx)
	if err != nil {
		return err
	}

	cfg := app.config
	location, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return configError(fmt.Errorf("invalid scheduler timezone: %w", err))
	}
	var runTimeout time.Duration
	if cfg.Scheduler.RunTimeout != "" {
		runTimeout, _ = time.ParseDuration(cfg.Scheduler.RunTimeout)
	}

	s, err := scheduler.New(scheduler.Config{
		Spec:       cfg.Scheduler.Cron,
		Location:   location,
		RunOnStart: cfg.Scheduler.RunOnStart,
		RunTimeout: runTimeout,
	}, func(ctx context.Context) error {
		_, err := p.Run(ctx)
		return err
	}, app.logs.GetComponentLogger("scheduler").Logger)
	if err != nil {
		return configError(err)
	}

	if err := app.metrics.Start(ctx); err != nil {
		return configError(fmt.Errorf("failed to start metrics server: %w", err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.metrics.Stop(stopCtx); err != nil {
			app.logger.Warn("failed to stop metrics server", "error", err)
		}
	}()

	fmt.Fprintf(stdout, "Archiving %s on schedule %q (%s). Press Ctrl+C to stop.\n",
		cfg.Exchange.Symbol, cfg.Scheduler.Cron, location)
	if addr := app.metrics.Addr(); addr != "" {
		fmt.Fprintf(stdout, "Metrics and health on http://%s\n", addr)
	}

	if err := s.Run(ctx); err != nil {
		return err
	}

	stats := s.Stats()
	fmt.Fprintf(stdout, "Scheduler stopped after %d runs (%d failed)\n", stats.Runs, stats.Failures)
	return nil
}

// handleHistory handles the 'history' command: list recorded runs
func handleHistory(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags, err := parseHistoryFlags(args)
	if err != nil {
		return err
	}

	if flags.Help {
		printCommandHelp(stdout, "history")
		return nil
	}

	app, err := newApp(ctx, flags.ConfigPath, stderr, nil)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.config.Ledger.Type == ledger.BackendNone {
		return configError(fmt.Errorf("run history is disabled (ledger.type is %q)", ledger.BackendNone))
	}

	history, err := app.openLedger(ctx)
	if err != nil {
		return fmt.Errorf("run history is unavailable: %w", err)
	}

	runs, err := history.Recent(ctx, flags.Limit)
	if err != nil {
		return fmt.Errorf("failed to read run history: %w", err)
	}

	format := flags.Format
	if format == "" {
		format = defaultFormat(stdout)
	}

	switch format {
	case "json":
		return outputJSON(stdout, runs)
	case "csv":
		return outputCSV(stdout, runs)
	default:
		stats, err := history.Stats(ctx)
		if err != nil {
			return fmt.Errorf("failed to read run statistics: %w", err)
		}
		return outputTable(stdout, runs, stats)
	}
}

// defaultFormat picks table output for terminals and csv for pipes and files
func defaultFormat(w io.Writer) string {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "table"
	}
	return "csv"
}
