package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// NewSQLiteLedger opens (or creates) the SQLite ledger at dbPath in WAL mode.
func NewSQLiteLedger(dbPath string, logger *slog.Logger) (*SQLLedger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dbPath == "" {
		return nil, NewLedgerError("open", "", fmt.Errorf("sqlite ledger path is required"))
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, NewLedgerError("open", "", fmt.Errorf("failed to create ledger directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, NewLedgerError("open", "", fmt.Errorf("open sqlite: %w", err))
	}

	// One connection keeps ":memory:" databases alive and serialises writers
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(context.Background(), pragma); err != nil {
			db.Close()
			return nil, NewLedgerError("open", "", fmt.Errorf("%s: %w", pragma, err))
		}
	}

	logger.Debug("sqlite ledger opened", "db_path", dbPath)
	return newSQLLedger(db, BackendSQLite, dbPath, logger), nil
}
