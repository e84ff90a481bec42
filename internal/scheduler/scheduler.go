// Package scheduler runs the archive pipeline on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work
type Job func(ctx context.Context) error

// Config configures a Scheduler.
type Config struct {
	Spec       string         // six-field cron expression (seconds first) or a descriptor like @hourly
	Location   *time.Location // zone the expression is evaluated in, nil means UTC
	RunOnStart bool           // trigger one run as soon as Run is called
	RunTimeout time.Duration  // upper bound for one run, zero means none
}

// Stats counts the runs a scheduler has executed
type Stats struct {
	Runs     int64
	Failures int64
}

// Scheduler triggers a single job on a cron schedule. Runs never overlap: a tick that
// fires while the previous run is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	entry   cron.EntryID
	wrapped cron.Job
	job     Job
	cfg     Config
	logger  *slog.Logger

	baseCtx context.Context
	mu      sync.Mutex
	extra   sync.WaitGroup

	runs     atomic.Int64
	failures atomic.Int64
}

// New validates the cron expression and registers job.
func New(cfg Config, job Job, logger *slog.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("job is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	cronLogger := &slogAdapter{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger),
			// Recover sits inside the skip wrapper so a panicking run still releases its slot
			cron.WithChain(cron.SkipIfStillRunning(cronLogger), cron.Recover(cronLogger)),
		),
		job:     job,
		cfg:     cfg,
		logger:  logger,
		baseCtx: context.Background(),
	}

	id, err := s.cron.AddFunc(cfg.Spec, s.execute)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cfg.Spec, err)
	}
	s.entry = id
	s.wrapped = s.cron.Entry(id).WrappedJob

	return s, nil
}

// Run starts the schedule and blocks until ctx is done. On return no run is in progress:
// a run that was executing when ctx ended is allowed to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	// in-flight runs must outlive the shutdown signal
	s.baseCtx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "spec", s.cfg.Spec, "next_run", s.NextRun())

	if s.cfg.RunOnStart {
		s.TriggerNow()
	}

	<-ctx.Done()

	s.logger.Info("scheduler stopping, waiting for running job")
	<-s.cron.Stop().Done()
	s.extra.Wait()
	s.logger.Info("scheduler stopped", "runs", s.runs.Load(), "failures", s.failures.Load())

	return nil
}

// TriggerNow starts a run outside the schedule. It is skipped if a run is in progress.
func (s *Scheduler) TriggerNow() {
	s.extra.Add(1)
	go func() {
		defer s.extra.Done()
		s.wrapped.Run()
	}()
}

// NextRun returns the next scheduled activation, zero before Run is called.
func (s *Scheduler) NextRun() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Stats returns run counters
func (s *Scheduler) Stats() Stats {
	return Stats{Runs: s.runs.Load(), Failures: s.failures.Load()}
}

func (s *Scheduler) execute() {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	s.runs.Add(1)
	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.failures.Add(1)
		s.logger.Error("scheduled run failed", "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("scheduled run completed", "duration", time.Since(start))
}

// slogAdapter lets cron log through slog
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug("cron: "+msg, keysAndValues...)
}

func (a *slogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
