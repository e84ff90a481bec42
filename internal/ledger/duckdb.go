package ledger

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb/v2"
)

// NewDuckDBLedger opens the DuckDB ledger at dbPath. An empty path or ":memory:" opens an
// in-memory database; otherwise the parent directory is created when missing.
func NewDuckDBLedger(dbPath string, logger *slog.Logger) (*SQLLedger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := dbPath
	if dbPath == ":memory:" {
		dsn = ""
	}
	if dsn != "" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, NewLedgerError("open", "", fmt.Errorf("failed to create ledger directory: %w", err))
		}
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, NewLedgerError("open", "", fmt.Errorf("failed to open DuckDB database: %w", err))
	}

	// DuckDB allows a single writer per database file
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return newSQLLedger(db, BackendDuckDB, dbPath, logger), nil
}
