package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryLedger keeps runs in process memory. It backs tests and one-shot runs where
// nothing needs to survive the process.
type MemoryLedger struct {
	mu     sync.RWMutex
	runs   map[string]Run
	closed bool
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{runs: make(map[string]Run)}
}

// Initialize implements Manager.Initialize
func (m *MemoryLedger) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = false
	return nil
}

// Record implements Recorder.Record
func (m *MemoryLedger) Record(ctx context.Context, run Run) error {
	if err := validateRun(run); err != nil {
		return NewLedgerError("record", runsTable, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewLedgerError("record", runsTable, fmt.Errorf("ledger is closed"))
	}
	if _, exists := m.runs[run.ID]; exists {
		return NewLedgerError("record", runsTable, fmt.Errorf("run %s already recorded", run.ID))
	}

	m.runs[run.ID] = copyRun(run)
	return nil
}

// Recent implements Reader.Recent
func (m *MemoryLedger) Recent(ctx context.Context, limit int) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]Run, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, copyRun(run))
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Get implements Reader.Get
func (m *MemoryLedger) Get(ctx context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	c := copyRun(run)
	return &c, nil
}

// Stats implements Reader.Stats
func (m *MemoryLedger) Stats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{}
	for _, run := range m.runs {
		stats.TotalRuns++
		stats.TotalRows += int64(run.Rows)
		if run.Status == StatusSucceeded {
			stats.Succeeded++
			if run.FinishedAt.After(stats.LastSuccessAt) {
				stats.LastSuccessAt = run.FinishedAt
			}
		}
		if run.StartedAt.After(stats.LastRunAt) {
			stats.LastRunAt = run.StartedAt
		}
	}
	stats.Failed = stats.TotalRuns - stats.Succeeded
	return stats, nil
}

// HealthCheck implements Manager.HealthCheck
func (m *MemoryLedger) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return NewLedgerError("health_check", "", fmt.Errorf("ledger is closed"))
	}
	return nil
}

// Close implements Manager.Close
func (m *MemoryLedger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func copyRun(run Run) Run {
	c := run
	c.Columns = append([]string(nil), run.Columns...)
	if run.Summary.FirstTradeAt != nil {
		t := *run.Summary.FirstTradeAt
		c.Summary.FirstTradeAt = &t
	}
	if run.Summary.LastTradeAt != nil {
		t := *run.Summary.LastTradeAt
		c.Summary.LastTradeAt = &t
	}
	return c
}

// Compile-time interface compliance check
var _ Ledger = (*MemoryLedger)(nil)
