package storage

import (
	"context"
	"time"

	"diag-agent/app/domains"
)

// Journal is the command history used by the agent loop and the status server
type Journal interface {
	RecordDelivered(ctx context.Context, cmd domains.Command) (int64, error)
	RecordOutcome(ctx context.Context, entryID int64, result *domains.CommandResult) error
	MarkSubmitted(ctx context.Context, entryID int64) error
	SweepAbandoned(ctx context.Context) (int64, error)
	Recent(ctx context.Context, limit int) ([]domains.CommandRecord, error)
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
	Close() error
}

var (
	_ Journal = (*Store)(nil)
	_ Journal = NopJournal{}
)

// NopJournal is used when the journal is disabled
type NopJournal struct{}

func (NopJournal) RecordDelivered(context.Context, domains.Command) (int64, error) { return 0, nil }
func (NopJournal) RecordOutcome(context.Context, int64, *domains.CommandResult) error {
	return nil
}
func (NopJournal) MarkSubmitted(context.Context, int64) error     { return nil }
func (NopJournal) SweepAbandoned(context.Context) (int64, error) { return 0, nil }
func (NopJournal) Recent(context.Context, int) ([]domains.CommandRecord, error) {
	return []domains.CommandRecord{}, nil
}
func (NopJournal) Cleanup(context.Context, time.Duration) (int64, error) { return 0, nil }
func (NopJournal) Close() error                                          { return nil }
