// Package ledger records the outcome of every archive run.
// These interfaces abstract over the DuckDB, SQLite and in-memory backends so the pipeline
// and the CLI can record and list runs without knowing where they are kept.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/johnayoung/go-trades-archiver/internal/config"
	"github.com/johnayoung/go-trades-archiver/internal/models"
)

// Status is the final state of an archive run
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Backend names accepted by Open
const (
	BackendDuckDB = "duckdb"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// Run is one archive run as recorded in the ledger.
type Run struct {
	ID          string         `json:"id"`
	Symbol      string         `json:"symbol"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Status      Status         `json:"status"`
	FailureKind string         `json:"failure_kind,omitempty"`
	Error       string         `json:"error,omitempty"`
	Rows        int            `json:"rows"`
	Columns     []string       `json:"columns"`
	FilePath    string         `json:"file_path,omitempty"`
	Bucket      string         `json:"bucket,omitempty"`
	ObjectKey   string         `json:"object_key,omitempty"`
	Summary     models.Summary `json:"summary"`
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Stats aggregates every recorded run.
type Stats struct {
	TotalRuns     int64     `json:"total_runs"`
	Succeeded     int64     `json:"succeeded"`
	Failed        int64     `json:"failed"`
	TotalRows     int64     `json:"total_rows"`
	LastRunAt     time.Time `json:"last_run_at,omitempty"`
	LastSuccessAt time.Time `json:"last_success_at,omitempty"`
}

// Recorder persists finished runs.
type Recorder interface {
	// Record stores one finished run. Run ids are unique; recording the same id twice
	// is an error.
	Record(ctx context.Context, run Run) error
}

// Reader lists recorded runs.
type Reader interface {
	// Recent returns at most limit runs, newest first. A limit <= 0 returns every run.
	Recent(ctx context.Context, limit int) ([]Run, error)

	// Get returns one run, or nil when the id is unknown.
	Get(ctx context.Context, id string) (*Run, error)

	// Stats aggregates all runs.
	Stats(ctx context.Context) (*Stats, error)
}

// Manager handles the ledger lifecycle.
type Manager interface {
	// Initialize prepares the backend. It is idempotent.
	Initialize(ctx context.Context) error

	// HealthCheck verifies that the backend is operational.
	HealthCheck(ctx context.Context) error

	// Close releases the backend. The ledger must not be used afterwards.
	Close() error
}

// Ledger combines all ledger capabilities.
type Ledger interface {
	Recorder
	Reader
	Manager
}

// Open builds the ledger selected by cfg.Type. The returned ledger is not initialized.
func Open(cfg config.LedgerConfig, logger *slog.Logger) (Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch strings.ToLower(cfg.Type) {
	case BackendDuckDB, "":
		return NewDuckDBLedger(cfg.Path, logger)
	case BackendSQLite:
		return NewSQLiteLedger(cfg.Path, logger)
	case BackendMemory:
		return NewMemoryLedger(), nil
	case BackendNone:
		return NewNoopLedger(), nil
	default:
		return nil, fmt.Errorf("unsupported ledger type %q", cfg.Type)
	}
}

// LedgerError represents errors that occur during ledger operations.
type LedgerError struct {
	// Operation is the ledger operation that failed (e.g., "record", "query")
	Operation string

	// Table is the database table involved in the operation
	Table string

	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for LedgerError.
func (e *LedgerError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("ledger operation %s on table %s failed: %v", e.Operation, e.Table, e.Err)
	}
	return fmt.Sprintf("ledger operation %s failed: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for error chain support.
func (e *LedgerError) Unwrap() error {
	return e.Err
}

// NewLedgerError creates a new LedgerError with the provided details.
func NewLedgerError(operation, table string, err error) *LedgerError {
	return &LedgerError{
		Operation: operation,
		Table:     table,
		Err:       err,
	}
}

func validateRun(run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id is required")
	}
	if run.Status != StatusSucceeded && run.Status != StatusFailed {
		return fmt.Errorf("invalid run status %q", run.Status)
	}
	if run.StartedAt.IsZero() {
		return fmt.Errorf("run start time is required")
	}
	return nil
}
