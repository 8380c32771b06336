package repository

import (
	"context"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
)

// EventStore persists per-run event log entries. Cursor assignment and
// linearization are the responsibility of the event log service; the store
// only guarantees ordered, gap-free retrieval of what was appended.
type EventStore interface {
	// AppendEvent persists an event whose cursor has already been assigned.
	AppendEvent(ctx context.Context, event model.Event) error

	// ReadEvents returns events of the run with cursor strictly greater than
	// afterCursor, in cursor order, at most limit entries (limit <= 0 means
	// unbounded).
	ReadEvents(ctx context.Context, runID string, afterCursor int64, limit int) ([]model.Event, error)

	// LastCursor returns the highest assigned cursor for the run, or -1 when
	// the run has no events yet.
	LastCursor(ctx context.Context, runID string) (int64, error)

	// DeleteEvents removes all events of a run. Used only by explicit run
	// deletion.
	DeleteEvents(ctx context.Context, runID string) error
}
