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

// SaveRun persists a new Run.
func (s *SQLStore) SaveRun(ctx context.Context, run *model.Run) error {
	const op = "SQLStore.SaveRun"
	if err := s.db.WithContext(ctx).Create(fromDomainRun(run)).Error; err != nil {
		return exception.NewInternalError(op, fmt.Sprintf("failed to save Run (ID: %s)", run.ID), err)
	}
	return nil
}

// UpdateRun updates an existing Run.
func (s *SQLStore) UpdateRun(ctx context.Context, run *model.Run) error {
	const op = "SQLStore.UpdateRun"
	entity := fromDomainRun(run)
	res := s.db.WithContext(ctx).Model(&RunEntity{}).Where("id = ?", run.ID).
		Select("StepKeys", "Config", "Mode", "Tags", "Status", "RootRunID",
			"ParentRunID", "SnapshotID", "StartTime", "EndTime", "LastUpdated").
		Updates(entity)
	if res.Error != nil {
		return exception.NewInternalError(op, fmt.Sprintf("failed to update Run (ID: %s)", run.ID), res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrRunNotFound
	}
	return nil
}

// FindRunByID finds a Run by its ID.
func (s *SQLStore) FindRunByID(ctx context.Context, runID string) (*model.Run, error) {
	const op = "SQLStore.FindRunByID"
	var entity RunEntity
	err := s.db.WithContext(ctx).Where("id = ?", runID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRunNotFound
		}
		return nil, exception.NewInternalError(op, fmt.Sprintf("failed to find Run by ID: %s", runID), err)
	}
	return toDomainRun(&entity), nil
}

// ListRuns returns runs matching the filter, newest first, starting after the
// cursor run ID, bounded by limit. Column-backed filter fields are pushed to
// SQL; tag filtering happens on the loaded rows since tags are a JSON column.
func (s *SQLStore) ListRuns(ctx context.Context, filter repository.RunsFilter, cursor string, limit int) ([]*model.Run, error) {
	const op = "SQLStore.ListRuns"

	q := s.db.WithContext(ctx).Model(&RunEntity{}).Order("seq desc")
	if filter.JobName != "" {
		q = q.Where("job_name = ?", filter.JobName)
	}
	if filter.SnapshotID != "" {
		q = q.Where("snapshot_id = ?", filter.SnapshotID)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if cursor != "" {
		var anchor RunEntity
		err := s.db.WithContext(ctx).Where("id = ?", cursor).First(&anchor).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, repository.ErrRunNotFound
			}
			return nil, exception.NewInternalError(op, fmt.Sprintf("failed to resolve cursor run: %s", cursor), err)
		}
		q = q.Where("seq < ?", anchor.Seq)
	}

	var entities []RunEntity
	if err := q.Find(&entities).Error; err != nil {
		return nil, exception.NewInternalError(op, "failed to list Runs", err)
	}

	var out []*model.Run
	for i := range entities {
		run := toDomainRun(&entities[i])
		if !filter.Matches(run) {
			continue
		}
		out = append(out, run)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// DeleteRun removes a run record.
func (s *SQLStore) DeleteRun(ctx context.Context, runID string) error {
	const op = "SQLStore.DeleteRun"
	res := s.db.WithContext(ctx).Where("id = ?", runID).Delete(&RunEntity{})
	if res.Error != nil {
		return exception.NewInternalError(op, fmt.Sprintf("failed to delete Run (ID: %s)", runID), res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrRunNotFound
	}
	return nil
}
