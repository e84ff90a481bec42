package ledger

import "context"

// NoopLedger is used when run recording is disabled.
type NoopLedger struct{}

func NewNoopLedger() *NoopLedger { return &NoopLedger{} }

func (n *NoopLedger) Initialize(_ context.Context) error             { return nil }
func (n *NoopLedger) Record(_ context.Context, _ Run) error          { return nil }
func (n *NoopLedger) Recent(_ context.Context, _ int) ([]Run, error) { return []Run{}, nil }
func (n *NoopLedger) Get(_ context.Context, _ string) (*Run, error)  { return nil, nil }
func (n *NoopLedger) Stats(_ context.Context) (*Stats, error)        { return &Stats{}, nil }
func (n *NoopLedger) HealthCheck(_ context.Context) error            { return nil }
func (n *NoopLedger) Close() error                                   { return nil }

var _ Ledger = (*NoopLedger)(nil)
