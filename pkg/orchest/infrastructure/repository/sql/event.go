package sql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
)

// AppendEvent persists an event whose cursor has already been assigned.
func (s *SQLStore) AppendEvent(ctx context.Context, event model.Event) error {
	const op = "SQLStore.AppendEvent"
	if err := s.db.WithContext(ctx).Create(fromDomainEvent(event)).Error; err != nil {
		return exception.NewInternalError(op,
			fmt.Sprintf("failed to append event (run: %s, cursor: %d)", event.RunID, event.Cursor), err)
	}
	return nil
}

// ReadEvents returns events of the run with cursor strictly greater than
// afterCursor, in cursor order, at most limit entries.
func (s *SQLStore) ReadEvents(ctx context.Context, runID string, afterCursor int64, limit int) ([]model.Event, error) {
	const op = "SQLStore.ReadEvents"

	q := s.db.WithContext(ctx).Where("run_id = ? AND cursor > ?", runID, afterCursor).Order("cursor asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entities []EventEntity
	if err := q.Find(&entities).Error; err != nil {
		return nil, exception.NewInternalError(op,
			fmt.Sprintf("failed to read events of run %s", runID), err)
	}

	out := make([]model.Event, len(entities))
	for i := range entities {
		out[i] = toDomainEvent(&entities[i])
	}
	return out, nil
}

// LastCursor returns the highest assigned cursor for the run, or -1 when the
// run has no events yet.
func (s *SQLStore) LastCursor(ctx context.Context, runID string) (int64, error) {
	const op = "SQLStore.LastCursor"

	var entity EventEntity
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("cursor desc").First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return -1, nil
		}
		return -1, exception.NewInternalError(op,
			fmt.Sprintf("failed to read last cursor of run %s", runID), err)
	}
	return entity.Cursor, nil
}

// DeleteEvents removes all events of a run.
func (s *SQLStore) DeleteEvents(ctx context.Context, runID string) error {
	const op = "SQLStore.DeleteEvents"
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Delete(&EventEntity{}).Error; err != nil {
		return exception.NewInternalError(op,
			fmt.Sprintf("failed to delete events of run %s", runID), err)
	}
	return nil
}
