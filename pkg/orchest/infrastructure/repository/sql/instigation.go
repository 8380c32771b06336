package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
)

// SaveScheduleState persists or replaces the state of a schedule.
func (s *SQLStore) SaveScheduleState(ctx context.Context, state *model.ScheduleState) error {
	const op = "SQLStore.SaveScheduleState"
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "schedule_name"}},
		UpdateAll: true,
	}).Create(fromDomainScheduleState(state)).Error
	if err != nil {
		return exception.NewInternalError(op,
			fmt.Sprintf("failed to save ScheduleState (%s)", state.ScheduleName), err)
	}
	return nil
}

// FindScheduleState finds the state of a schedule by name.
func (s *SQLStore) FindScheduleState(ctx context.Context, scheduleName string) (*model.ScheduleState, error) {
	const op = "SQLStore.FindScheduleState"
	var entity ScheduleStateEntity
	err := s.db.WithContext(ctx).Where("schedule_name = ?", scheduleName).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrScheduleStateNotFound
		}
		return nil, exception.NewInternalError(op,
			fmt.Sprintf("failed to find ScheduleState (%s)", scheduleName), err)
	}
	return toDomainScheduleState(&entity), nil
}

// ListScheduleStates returns every known schedule state, ordered by name.
func (s *SQLStore) ListScheduleStates(ctx context.Context) ([]*model.ScheduleState, error) {
	const op = "SQLStore.ListScheduleStates"
	var entities []ScheduleStateEntity
	if err := s.db.WithContext(ctx).Order("schedule_name asc").Find(&entities).Error; err != nil {
		return nil, exception.NewInternalError(op, "failed to list ScheduleStates", err)
	}
	out := make([]*model.ScheduleState, len(entities))
	for i := range entities {
		out[i] = toDomainScheduleState(&entities[i])
	}
	return out, nil
}

// SaveSensorState persists or replaces the state of a sensor.
func (s *SQLStore) SaveSensorState(ctx context.Context, state *model.SensorState) error {
	const op = "SQLStore.SaveSensorState"
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sensor_name"}},
		UpdateAll: true,
	}).Create(fromDomainSensorState(state)).Error
	if err != nil {
		return exception.NewInternalError(op,
			fmt.Sprintf("failed to save SensorState (%s)", state.SensorName), err)
	}
	return nil
}

// FindSensorState finds the state of a sensor by name.
func (s *SQLStore) FindSensorState(ctx context.Context, sensorName string) (*model.SensorState, error) {
	const op = "SQLStore.FindSensorState"
	var entity SensorStateEntity
	err := s.db.WithContext(ctx).Where("sensor_name = ?", sensorName).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrSensorStateNotFound
		}
		return nil, exception.NewInternalError(op,
			fmt.Sprintf("failed to find SensorState (%s)", sensorName), err)
	}
	return toDomainSensorState(&entity), nil
}

// ListSensorStates returns every known sensor state, ordered by name.
func (s *SQLStore) ListSensorStates(ctx context.Context) ([]*model.SensorState, error) {
	const op = "SQLStore.ListSensorStates"
	var entities []SensorStateEntity
	if err := s.db.WithContext(ctx).Order("sensor_name asc").Find(&entities).Error; err != nil {
		return nil, exception.NewInternalError(op, "failed to list SensorStates", err)
	}
	out := make([]*model.SensorState, len(entities))
	for i := range entities {
		out[i] = toDomainSensorState(&entities[i])
	}
	return out, nil
}

// CreateTick atomically records a STARTED tick. For schedule ticks the insert
// runs in a transaction that first checks the per-(instigator, timestamp)
// uniqueness, returning ErrTickAlreadyRecorded on a duplicate.
func (s *SQLStore) CreateTick(ctx context.Context, tick *model.Tick) error {
	const op = "SQLStore.CreateTick"
	entity := fromDomainTick(tick)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tick.InstigatorType == model.InstigatorTypeSchedule {
			var count int64
			err := tx.Model(&TickEntity{}).
				Where("instigator_name = ? AND timestamp_nanos = ?", tick.InstigatorName, entity.TimestampNanos).
				Count(&count).Error
			if err != nil {
				return err
			}
			if count > 0 {
				return repository.ErrTickAlreadyRecorded
			}
		}
		return tx.Create(entity).Error
	})
	if err != nil {
		if errors.Is(err, repository.ErrTickAlreadyRecorded) {
			return repository.ErrTickAlreadyRecorded
		}
		return exception.NewInternalError(op,
			fmt.Sprintf("failed to create tick for '%s'", tick.InstigatorName), err)
	}
	return nil
}

// UpdateTick updates a previously created tick.
func (s *SQLStore) UpdateTick(ctx context.Context, tick *model.Tick) error {
	const op = "SQLStore.UpdateTick"
	entity := fromDomainTick(tick)
	res := s.db.WithContext(ctx).Model(&TickEntity{}).Where("id = ?", tick.ID).
		Select("Status", "RunIDs", "Error", "SkipReason", "LastUpdated").
		Updates(entity)
	if res.Error != nil {
		return exception.NewInternalError(op,
			fmt.Sprintf("failed to update tick (ID: %s)", tick.ID), res.Error)
	}
	if res.RowsAffected == 0 {
		return exception.NewInternalError(op,
			fmt.Sprintf("tick (ID: %s) not found for update", tick.ID), nil)
	}
	return nil
}

// ListTicks returns the recorded ticks of an instigator, newest first.
func (s *SQLStore) ListTicks(ctx context.Context, instigatorName string, limit int) ([]*model.Tick, error) {
	const op = "SQLStore.ListTicks"
	q := s.db.WithContext(ctx).Where("instigator_name = ?", instigatorName).Order("seq desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entities []TickEntity
	if err := q.Find(&entities).Error; err != nil {
		return nil, exception.NewInternalError(op,
			fmt.Sprintf("failed to list ticks of '%s'", instigatorName), err)
	}
	out := make([]*model.Tick, len(entities))
	for i := range entities {
		out[i] = toDomainTick(&entities[i])
	}
	return out, nil
}

// FindTickByTimestamp returns the schedule tick recorded for the exact due
// timestamp, or nil when none exists.
func (s *SQLStore) FindTickByTimestamp(ctx context.Context, instigatorName string, timestamp time.Time) (*model.Tick, error) {
	const op = "SQLStore.FindTickByTimestamp"
	var entity TickEntity
	err := s.db.WithContext(ctx).
		Where("instigator_name = ? AND timestamp_nanos = ?", instigatorName, timestamp.UnixNano()).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, exception.NewInternalError(op,
			fmt.Sprintf("failed to find tick of '%s' at %s", instigatorName, timestamp), err)
	}
	return toDomainTick(&entity), nil
}
