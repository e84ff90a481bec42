package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const runsTable = "archive_runs"

const runColumns = `id, symbol, started_at, finished_at, status, failure_kind, error_message,
	row_count, columns_json, file_path, bucket, object_key, summary_json`

// SQLLedger implements Ledger over database/sql. Timestamps are stored as unix
// milliseconds so the DuckDB and SQLite backends share one schema and one set of queries.
type SQLLedger struct {
	db      *sql.DB
	backend string
	dbPath  string
	logger  *slog.Logger
	mu      sync.RWMutex
}

func newSQLLedger(db *sql.DB, backend, dbPath string, logger *slog.Logger) *SQLLedger {
	return &SQLLedger{
		db:      db,
		backend: backend,
		dbPath:  dbPath,
		logger:  logger,
	}
}

// Backend returns the driver behind this ledger
func (l *SQLLedger) Backend() string {
	return l.backend
}

// Initialize implements Manager.Initialize by applying every pending migration.
func (l *SQLLedger) Initialize(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return NewLedgerError("initialize", "", fmt.Errorf("database connection is closed"))
	}

	l.logger.Debug("initializing run ledger", "backend", l.backend, "db_path", l.dbPath)

	if err := NewMigrationManager(l.db, l.logger).MigrateToLatest(ctx); err != nil {
		return NewLedgerError("initialize", runsTable, err)
	}
	return nil
}

// Record implements Recorder.Record
func (l *SQLLedger) Record(ctx context.Context, run Run) error {
	if err := validateRun(run); err != nil {
		return NewLedgerError("record", runsTable, err)
	}

	columnsJSON, err := json.Marshal(nonNilColumns(run.Columns))
	if err != nil {
		return NewLedgerError("record", runsTable, fmt.Errorf("failed to encode columns: %w", err))
	}
	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return NewLedgerError("record", runsTable, fmt.Errorf("failed to encode summary: %w", err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return NewLedgerError("record", runsTable, fmt.Errorf("database connection is closed"))
	}

	query := `INSERT INTO archive_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := l.db.ExecContext(ctx, query,
		run.ID,
		run.Symbol,
		run.StartedAt.UnixMilli(),
		run.FinishedAt.UnixMilli(),
		string(run.Status),
		run.FailureKind,
		run.Error,
		int64(run.Rows),
		string(columnsJSON),
		run.FilePath,
		run.Bucket,
		run.ObjectKey,
		string(summaryJSON),
	); err != nil {
		return NewLedgerError("record", runsTable, err)
	}

	return nil
}

// Recent implements Reader.Recent
func (l *SQLLedger) Recent(ctx context.Context, limit int) ([]Run, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return nil, NewLedgerError("query", runsTable, fmt.Errorf("database connection is closed"))
	}

	query := `SELECT ` + runColumns + ` FROM archive_runs ORDER BY started_at DESC, id DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewLedgerError("query", runsTable, err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, NewLedgerError("query", runsTable, err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, NewLedgerError("query", runsTable, err)
	}

	return runs, nil
}

// Get implements Reader.Get
func (l *SQLLedger) Get(ctx context.Context, id string) (*Run, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return nil, NewLedgerError("query", runsTable, fmt.Errorf("database connection is closed"))
	}

	row := l.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM archive_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, NewLedgerError("query", runsTable, err)
	}
	return run, nil
}

// Stats implements Reader.Stats
func (l *SQLLedger) Stats(ctx context.Context) (*Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return nil, NewLedgerError("stats", runsTable, fmt.Errorf("database connection is closed"))
	}

	// Aggregates are cast so both drivers scan them into int64
	query := `
		SELECT
			CAST(COUNT(*) AS BIGINT),
			CAST(COALESCE(SUM(CASE WHEN status = 'succeeded' THEN 1 ELSE 0 END), 0) AS BIGINT),
			CAST(COALESCE(SUM(row_count), 0) AS BIGINT),
			CAST(COALESCE(MAX(started_at), 0) AS BIGINT),
			CAST(COALESCE(MAX(CASE WHEN status = 'succeeded' THEN finished_at END), 0) AS BIGINT)
		FROM archive_runs`

	var stats Stats
	var lastRun, lastSuccess int64
	if err := l.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalRuns,
		&stats.Succeeded,
		&stats.TotalRows,
		&lastRun,
		&lastSuccess,
	); err != nil {
		return nil, NewLedgerError("stats", runsTable, err)
	}

	stats.Failed = stats.TotalRuns - stats.Succeeded
	if lastRun > 0 {
		stats.LastRunAt = time.UnixMilli(lastRun).UTC()
	}
	if lastSuccess > 0 {
		stats.LastSuccessAt = time.UnixMilli(lastSuccess).UTC()
	}

	return &stats, nil
}

// HealthCheck implements Manager.HealthCheck
func (l *SQLLedger) HealthCheck(ctx context.Context) error {
	l.mu.RLock()
	db := l.db
	l.mu.RUnlock()

	if db == nil {
		return NewLedgerError("health_check", "", fmt.Errorf("database connection is closed"))
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return NewLedgerError("health_check", "", fmt.Errorf("database health check failed: %w", err))
	}
	if result != 1 {
		return NewLedgerError("health_check", "", fmt.Errorf("unexpected health check result: %d", result))
	}
	return nil
}

// Close implements Manager.Close
func (l *SQLLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil
	}

	err := l.db.Close()
	l.db = nil
	if err != nil {
		return NewLedgerError("close", "", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s rowScanner) (*Run, error) {
	var (
		run                   Run
		status                string
		startedAt, finishedAt int64
		rowCount              int64
		columnsJSON           string
		summaryJSON           sql.NullString
	)

	if err := s.Scan(
		&run.ID,
		&run.Symbol,
		&startedAt,
		&finishedAt,
		&status,
		&run.FailureKind,
		&run.Error,
		&rowCount,
		&columnsJSON,
		&run.FilePath,
		&run.Bucket,
		&run.ObjectKey,
		&summaryJSON,
	); err != nil {
		return nil, err
	}

	run.Status = Status(status)
	run.StartedAt = time.UnixMilli(startedAt).UTC()
	run.FinishedAt = time.UnixMilli(finishedAt).UTC()
	run.Rows = int(rowCount)

	if err := json.Unmarshal([]byte(columnsJSON), &run.Columns); err != nil {
		return nil, fmt.Errorf("failed to decode columns of run %s: %w", run.ID, err)
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		if err := json.Unmarshal([]byte(summaryJSON.String), &run.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode summary of run %s: %w", run.ID, err)
		}
	}

	return &run, nil
}

func nonNilColumns(columns []string) []string {
	if columns == nil {
		return []string{}
	}
	return columns
}

// Compile-time interface compliance check
var _ Ledger = (*SQLLedger)(nil)
