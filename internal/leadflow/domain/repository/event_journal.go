package repository

import (
	"context"

	"leadflow/internal/leadflow/domain/model"
)

// EventJournal keeps a bounded, per-project record of the realtime events
// that were broadcast. It is optional; nothing reads it back into the
// pipeline state.
type EventJournal interface {
	Append(ctx context.Context, event model.PipelineEvent) error
	// Recent returns up to limit entries for projectID, newest first.
	Recent(ctx context.Context, projectID string, limit int64) ([]model.JournalEntry, error)
	Ping(ctx context.Context) error
	Close() error
}
