package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Migration represents a single schema migration with version and implementation
type Migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, tx *sql.Tx) error
}

// MigrationManager applies schema migrations. The SQL it issues is shared by the DuckDB
// and SQLite backends.
type MigrationManager struct {
	db      *sql.DB
	logger  *slog.Logger
	migrate []Migration
}

// NewMigrationManager creates a new migration manager instance
func NewMigrationManager(db *sql.DB, logger *slog.Logger) *MigrationManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &MigrationManager{
		db:      db,
		logger:  logger,
		migrate: allMigrations(),
	}
}

// Initialize creates the migrations table if it doesn't exist
func (m *MigrationManager) Initialize(ctx context.Context) error {
	createMigrationsTable := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description VARCHAR NOT NULL,
			applied_at BIGINT NOT NULL,
			execution_time BIGINT NOT NULL DEFAULT 0
		)`

	if _, err := m.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// MigrateToLatest runs every pending migration
func (m *MigrationManager) MigrateToLatest(ctx context.Context) error {
	if len(m.migrate) == 0 {
		return nil
	}
	return m.Migrate(ctx, m.migrate[len(m.migrate)-1].Version)
}

// Migrate runs all pending migrations up to the target version
func (m *MigrationManager) Migrate(ctx context.Context, targetVersion int) error {
	if err := m.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize migration manager: %w", err)
	}

	currentVersion, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	if currentVersion >= targetVersion {
		m.logger.Debug("no migrations to run", "current_version", currentVersion)
		return nil
	}

	applied := 0
	for _, migration := range m.migrate {
		if migration.Version <= currentVersion || migration.Version > targetVersion {
			continue
		}
		if err := m.runMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration %d: %w", migration.Version, err)
		}
		applied++
	}

	m.logger.Info("ledger migrations completed",
		"from_version", currentVersion,
		"to_version", targetVersion,
		"migrations_run", applied)

	return nil
}

// CurrentVersion returns the highest applied migration version
func (m *MigrationManager) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	if err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// runMigration executes one migration and records it in a single transaction
func (m *MigrationManager) runMigration(ctx context.Context, migration Migration) error {
	start := time.Now()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := migration.Up(ctx, tx); err != nil {
		return fmt.Errorf("migration execution failed: %w", err)
	}

	insertQuery := `
		INSERT INTO schema_migrations (version, description, applied_at, execution_time)
		VALUES (?, ?, ?, ?)`

	if _, err := tx.ExecContext(ctx, insertQuery,
		migration.Version,
		migration.Description,
		start.UnixMilli(),
		time.Since(start).Nanoseconds()); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	m.logger.Debug("migration applied",
		"version", migration.Version,
		"description", migration.Description,
		"duration", time.Since(start))

	return nil
}

func allMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "create archive_runs table",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `
					CREATE TABLE IF NOT EXISTS archive_runs (
						id VARCHAR PRIMARY KEY,
						symbol VARCHAR NOT NULL,
						started_at BIGINT NOT NULL,
						finished_at BIGINT NOT NULL,
						status VARCHAR NOT NULL,
						failure_kind VARCHAR NOT NULL DEFAULT '',
						error_message VARCHAR NOT NULL DEFAULT '',
						row_count BIGINT NOT NULL DEFAULT 0,
						columns_json VARCHAR NOT NULL DEFAULT '[]',
						file_path VARCHAR NOT NULL DEFAULT '',
						bucket VARCHAR NOT NULL DEFAULT '',
						object_key VARCHAR NOT NULL DEFAULT ''
					)`)
				return err
			},
		},
		{
			Version:     2,
			Description: "add trade summary to archive_runs",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `ALTER TABLE archive_runs ADD COLUMN summary_json VARCHAR DEFAULT '{}'`)
				return err
			},
		},
		{
			Version:     3,
			Description: "index archive_runs by start time",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_archive_runs_started ON archive_runs(started_at)`)
				return err
			},
		},
	}
}
