package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
)

// ErrBackfillNotFound is the error returned when a Backfill is not found.
var ErrBackfillNotFound = errors.New("backfill not found")

func init() {
	exception.RegisterErrorType("ErrBackfillNotFound", ErrBackfillNotFound)
}

// BackfillStore persists backfill records.
type BackfillStore interface {
	// SaveBackfill persists a new Backfill record.
	SaveBackfill(ctx context.Context, backfill *model.Backfill) error

	// UpdateBackfill updates an existing Backfill record.
	UpdateBackfill(ctx context.Context, backfill *model.Backfill) error

	// FindBackfillByID finds a Backfill by its ID.
	// Returns ErrBackfillNotFound if absent.
	FindBackfillByID(ctx context.Context, backfillID string) (*model.Backfill, error)

	// ListBackfills returns every backfill record, newest first.
	ListBackfills(ctx context.Context) ([]*model.Backfill, error)
}
