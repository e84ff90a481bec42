package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/johnayoung/go-trades-archiver/internal/config"
)

// Session records runs into a file-backed ledger without holding the database open
// between runs. Each call opens the backend, initializes it, does its work and closes
// it again, so another process can read or record while this one is idle.
// DuckDB in particular refuses a second process while one holds the file.
//
// In-process backends (memory, none) are opened once and kept for the session's life.
type Session struct {
	cfg    config.LedgerConfig
	logger *slog.Logger
	open   func(config.LedgerConfig, *slog.Logger) (Ledger, error)

	mu     sync.Mutex
	shared Ledger
}

// NewSession creates a Session for cfg. Nothing is opened until the first call.
func NewSession(cfg config.LedgerConfig, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{cfg: cfg, logger: logger, open: Open}
}

// Record opens the ledger, stores run and closes the ledger.
func (s *Session) Record(ctx context.Context, run Run) error {
	return s.with(ctx, func(l Ledger) error {
		return l.Record(ctx, run)
	})
}

// HealthCheck reports whether the ledger can currently be opened and queried.
func (s *Session) HealthCheck(ctx context.Context) error {
	return s.with(ctx, func(l Ledger) error {
		return l.HealthCheck(ctx)
	})
}

// Close releases a shared in-process backend, if one was opened.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shared == nil {
		return nil
	}
	err := s.shared.Close()
	s.shared = nil
	return err
}

// with serializes access so runs of one process never contend for the file lock
func (s *Session) with(ctx context.Context, fn func(Ledger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shared != nil {
		return fn(s.shared)
	}

	l, err := s.open(s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	if err := l.Initialize(ctx); err != nil {
		_ = l.Close()
		return fmt.Errorf("failed to initialize ledger: %w", err)
	}

	if inProcess(s.cfg.Type) {
		s.shared = l
		return fn(l)
	}

	defer func() {
		if cerr := l.Close(); cerr != nil {
			s.logger.Warn("failed to close ledger", "error", cerr)
		}
	}()
	return fn(l)
}

func inProcess(backend string) bool {
	switch strings.ToLower(backend) {
	case BackendMemory, BackendNone:
		return true
	}
	return false
}

var _ Recorder = (*Session)(nil)
