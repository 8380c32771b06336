package sql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
)

// SaveBackfill persists a new Backfill record.
func (s *SQLStore) SaveBackfill(ctx context.Context, backfill *model.Backfill) error {
	const op = "SQLStore.SaveBackfill"
	if err := s.db.WithContext(ctx).Create(fromDomainBackfill(backfill)).Error; err != nil {
		return exception.NewInternalError(op,
			fmt.Sprintf("failed to save Backfill (ID: %s)", backfill.ID), err)
	}
	return nil
}

// UpdateBackfill updates an existing Backfill record.
func (s *SQLStore) UpdateBackfill(ctx context.Context, backfill *model.Backfill) error {
	const op = "SQLStore.UpdateBackfill"
	entity := fromDomainBackfill(backfill)
	res := s.db.WithContext(ctx).Model(&BackfillEntity{}).Where("id = ?", backfill.ID).
		Select("Status", "LaunchedRunIDs", "FailedPartitions", "LastUpdated").
		Updates(entity)
	if res.Error != nil {
		return exception.NewInternalError(op,
			fmt.Sprintf("failed to update Backfill (ID: %s)", backfill.ID), res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrBackfillNotFound
	}
	return nil
}

// FindBackfillByID finds a Backfill by its ID.
func (s *SQLStore) FindBackfillByID(ctx context.Context, backfillID string) (*model.Backfill, error) {
	const op = "SQLStore.FindBackfillByID"
	var entity BackfillEntity
	err := s.db.WithContext(ctx).Where("id = ?", backfillID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrBackfillNotFound
		}
		return nil, exception.NewInternalError(op,
			fmt.Sprintf("failed to find Backfill by ID: %s", backfillID), err)
	}
	return toDomainBackfill(&entity), nil
}

// ListBackfills returns every backfill record, newest first.
func (s *SQLStore) ListBackfills(ctx context.Context) ([]*model.Backfill, error) {
	const op = "SQLStore.ListBackfills"
	var entities []BackfillEntity
	if err := s.db.WithContext(ctx).Order("seq desc").Find(&entities).Error; err != nil {
		return nil, exception.NewInternalError(op, "failed to list Backfills", err)
	}
	out := make([]*model.Backfill, len(entities))
	for i := range entities {
		out[i] = toDomainBackfill(&entities[i])
	}
	return out, nil
}
