// Package pipeline drives one archive run: fetch the trade list, build the table,
// persist it as CSV and upload it, recording the outcome in the run ledger and
// announcing it to event subscribers.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	archerr "github.com/johnayoung/go-trades-archiver/internal/errors"
	"github.com/johnayoung/go-trades-archiver/internal/events"
	"github.com/johnayoung/go-trades-archiver/internal/exchange"
	"github.com/johnayoung/go-trades-archiver/internal/ledger"
	"github.com/johnayoung/go-trades-archiver/internal/logger"
	"github.com/johnayoung/go-trades-archiver/internal/models"
	"github.com/johnayoung/go-trades-archiver/internal/table"
	"github.com/johnayoung/go-trades-archiver/internal/upload"
)

// bookkeepingTimeout bounds ledger and event writes after a run, which use a context
// detached from the run's own cancellation
const bookkeepingTimeout = 10 * time.Second

// Persister stores a table locally and returns the written path
type Persister interface {
	Write(ctx context.Context, tbl *table.Table) (string, error)
}

// Observer receives the outcome of every run. failureKind is empty on success.
type Observer interface {
	ObserveRun(symbol string, rows int, duration time.Duration, failureKind string)
}

// Report describes one run. On failure it holds whatever the run got through.
type Report struct {
	RunID        string          `json:"run_id"`
	Symbol       string          `json:"symbol"`
	Rows         int             `json:"rows"`
	Columns      []string        `json:"columns"`
	FilePath     string          `json:"file_path,omitempty"`
	Object       *upload.Result  `json:"object,omitempty"`
	Summary      *models.Summary `json:"summary,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
	PublishError string          `json:"publish_error,omitempty"`
}

// Duration returns how long the run took
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Pipeline runs the archive stages in order and stops at the first failure.
type Pipeline struct {
	fetcher   exchange.TradeFetcher
	persister Persister
	uploader  upload.Uploader
	ledger    ledger.Recorder
	publisher events.Publisher
	observer  Observer
	symbol    string
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// Symbol returns the market the pipeline archives
func (p *Pipeline) Symbol() string {
	return p.symbol
}

// Run executes one archive run. The report is returned in both outcomes; the error is a
// *errors.PipelineError naming the failed stage. A CSV written before a failed upload
// stays on disk. Ledger and event failures are logged and never fail the run.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     p.newID(),
		Symbol:    p.symbol,
		StartedAt: p.now().UTC(),
	}

	ctx = logger.WithRunID(ctx, report.RunID)
	ctx = logger.WithSymbol(ctx, p.symbol)
	log := logger.Enrich(ctx, p.logger)

	log.Info("archive run started")

	err := p.execute(ctx, log, report)
	report.FinishedAt = p.now().UTC()

	p.bookkeeping(ctx, log, report, err)

	if p.observer != nil {
		var kind string
		if err != nil {
			kind = string(archerr.KindOf(err))
		}
		p.observer.ObserveRun(report.Symbol, report.Rows, report.Duration(), kind)
	}

	if err != nil {
		log.Error("archive run failed",
			"kind", archerr.KindOf(err),
			"cause", archerr.Classify(err),
			"error", err,
			"duration", report.Duration())
		return report, err
	}

	log.Info("archive run completed",
		"rows", report.Rows,
		"columns", len(report.Columns),
		"path", report.FilePath,
		"key", report.Object.Key,
		"duration", report.Duration())

	return report, nil
}

func (p *Pipeline) execute(ctx context.Context, log *slog.Logger, report *Report) error {
	var raw json.RawMessage
	if err := logger.TimedOperation(ctx, log, "fetch", func() (err error) {
		raw, err = p.fetcher.FetchTrades(logger.WithOperation(ctx, "fetch"), p.symbol)
		return err
	}); err != nil {
		return err
	}

	var tbl *table.Table
	if err := logger.TimedOperation(ctx, log, "build", func() (err error) {
		tbl, err = table.Build(raw)
		return err
	}); err != nil {
		return err
	}
	report.Rows = tbl.Len()
	report.Columns = append([]string(nil), tbl.Columns...)

	summary := models.Summarize(tbl)
	report.Summary = &summary
	if summary.Skipped > 0 {
		log.Debug("rows not counted in trade summary", "skipped", summary.Skipped)
	}

	if err := logger.TimedOperation(ctx, log, "persist", func() (err error) {
		report.FilePath, err = p.persister.Write(logger.WithOperation(ctx, "persist"), tbl)
		return err
	}); err != nil {
		return err
	}

	return logger.TimedOperation(ctx, log, "upload", func() (err error) {
		report.Object, err = p.uploader.Upload(logger.WithOperation(ctx, "upload"), report.FilePath)
		return err
	})
}

// bookkeeping records the run and publishes its event
func (p *Pipeline) bookkeeping(ctx context.Context, log *slog.Logger, report *Report, runErr error) {
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	run := ledger.Run{
		ID:         report.RunID,
		Symbol:     report.Symbol,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Status:     ledger.StatusSucceeded,
		Rows:       report.Rows,
		Columns:    report.Columns,
		FilePath:   report.FilePath,
	}
	event := events.ArchiveEvent{
		Type:       events.TypeArchiveCompleted,
		RunID:      report.RunID,
		Symbol:     report.Symbol,
		OccurredAt: report.FinishedAt,
		Rows:       report.Rows,
		Columns:    report.Columns,
		FilePath:   report.FilePath,
		Summary:    report.Summary,
	}
	if report.Summary != nil {
		run.Summary = *report.Summary
	}
	if report.Object != nil {
		run.Bucket, run.ObjectKey = report.Object.Bucket, report.Object.Key
		event.Bucket, event.ObjectKey = report.Object.Bucket, report.Object.Key
	}
	if runErr != nil {
		run.Status = ledger.StatusFailed
		run.FailureKind = string(archerr.KindOf(runErr))
		run.Error = runErr.Error()
		event.Type = events.TypeArchiveFailed
		event.FailureKind = run.FailureKind
		event.Error = run.Error
	}

	if err := p.ledger.Record(bctx, run); err != nil {
		log.Warn("failed to record run in ledger", "error", err)
	}

	if err := p.publisher.Publish(bctx, event); err != nil {
		report.PublishError = err.Error()
		log.Warn("failed to publish archive event", "type", event.Type, "error", err)
	}
}

// Builder assembles a Pipeline
type Builder struct {
	fetcher   exchange.TradeFetcher
	persister Persister
	uploader  upload.Uploader
	ledger    ledger.Recorder
	publisher events.Publisher
	observer  Observer
	symbol    string
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// NewBuilder creates a builder with a no-op ledger and publisher
func NewBuilder() *Builder {
	return &Builder{
		ledger:    ledger.NewNoopLedger(),
		publisher: events.NewNoopPublisher(),
		logger:    slog.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// WithFetcher sets the trade source
func (b *Builder) WithFetcher(f exchange.TradeFetcher) *Builder {
	b.fetcher = f
	return b
}

// WithPersister sets the local archive writer
func (b *Builder) WithPersister(p Persister) *Builder {
	b.persister = p
	return b
}

// WithUploader sets the remote store
func (b *Builder) WithUploader(u upload.Uploader) *Builder {
	b.uploader = u
	return b
}

// WithLedger sets where runs are recorded
func (b *Builder) WithLedger(l ledger.Recorder) *Builder {
	if l != nil {
		b.ledger = l
	}
	return b
}

// WithPublisher sets where run events go
func (b *Builder) WithPublisher(p events.Publisher) *Builder {
	if p != nil {
		b.publisher = p
	}
	return b
}

// WithObserver sets who is told about each run outcome
func (b *Builder) WithObserver(o Observer) *Builder {
	b.observer = o
	return b
}

// WithSymbol sets the market to archive
func (b *Builder) WithSymbol(symbol string) *Builder {
	b.symbol = symbol
	return b
}

// WithLogger sets the logger
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	if l != nil {
		b.logger = l
	}
	return b
}

// WithClock sets the clock used for run timestamps
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithIDGenerator sets how run ids are minted
func (b *Builder) WithIDGenerator(newID func() string) *Builder {
	b.newID = newID
	return b
}

// Build validates the required stages and returns the pipeline
func (b *Builder) Build() (*Pipeline, error) {
	if b.fetcher == nil {
		return nil, fmt.Errorf("trade fetcher is required")
	}
	if b.persister == nil {
		return nil, fmt.Errorf("persister is required")
	}
	if b.uploader == nil {
		return nil, fmt.Errorf("uploader is required")
	}
	if b.symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	return &Pipeline{
		fetcher:   b.fetcher,
		persister: b.persister,
		uploader:  b.uploader,
		ledger:    b.ledger,
		publisher: b.publisher,
		observer:  b.observer,
		symbol:    b.symbol,
		logger:    b.logger,
		now:       b.now,
		newID:     b.newID,
	}, nil
}
