// Package query serves the read-only projections of the orchestration core:
// run and event lookups, instigation state and tick history, partition
// listings, and dry-run plan validation.
package query

import (
	"context"
	"errors"
	"fmt"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
	"github.com/tigerroll/swell/pkg/orchest/core/eventlog"
	plan "github.com/tigerroll/swell/pkg/orchest/core/plan"
	"github.com/tigerroll/swell/pkg/orchest/core/workspace"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
)

// Service answers read-only queries against the store and workspace.
type Service struct {
	ws    *workspace.Workspace
	store repository.Store
	log   *eventlog.EventLog
}

// NewService creates a query Service.
func NewService(ws *workspace.Workspace, store repository.Store, log *eventlog.EventLog) *Service {
	return &Service{ws: ws, store: store, log: log}
}

// GetRun loads one run by id.
func (s *Service) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	run, err := s.store.FindRunByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			return nil, exception.NewNotFoundError("query",
				fmt.Sprintf("Run '%s' does not exist", runID), err)
		}
		return nil, exception.NewInternalError("query",
			fmt.Sprintf("Failed to look up run '%s'", runID), err)
	}
	return run, nil
}

// ListRuns returns runs matching the filter, newest first, paged by the
// opaque cursor.
func (s *Service) ListRuns(ctx context.Context, filter repository.RunsFilter, cursor string, limit int) ([]*model.Run, error) {
	runs, err := s.store.ListRuns(ctx, filter, cursor, limit)
	if err != nil {
		return nil, exception.NewInternalError("query", "Failed to list runs", err)
	}
	return runs, nil
}

// ReadEvents returns a run's events with cursor strictly greater than
// afterCursor, in cursor order.
func (s *Service) ReadEvents(ctx context.Context, runID string, afterCursor int64, limit int) ([]model.Event, error) {
	return s.log.Read(ctx, runID, afterCursor, limit)
}

// GetScheduleState loads the instigation state of a schedule.
func (s *Service) GetScheduleState(ctx context.Context, name string) (*model.ScheduleState, error) {
	state, err := s.store.FindScheduleState(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrScheduleStateNotFound) {
			return nil, exception.NewNotFoundError("query",
				fmt.Sprintf("Schedule '%s' has no state", name), err)
		}
		return nil, exception.NewInternalError("query",
			fmt.Sprintf("Failed to load state of schedule '%s'", name), err)
	}
	return state, nil
}

// GetSensorState loads the instigation state of a sensor.
func (s *Service) GetSensorState(ctx context.Context, name string) (*model.SensorState, error) {
	state, err := s.store.FindSensorState(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrSensorStateNotFound) {
			return nil, exception.NewNotFoundError("query",
				fmt.Sprintf("Sensor '%s' has no state", name), err)
		}
		return nil, exception.NewInternalError("query",
			fmt.Sprintf("Failed to load state of sensor '%s'", name), err)
	}
	return state, nil
}

// ListTicks returns the tick history of a schedule or sensor, newest first.
func (s *Service) ListTicks(ctx context.Context, instigatorName string, limit int) ([]*model.Tick, error) {
	ticks, err := s.store.ListTicks(ctx, instigatorName, limit)
	if err != nil {
		return nil, exception.NewInternalError("query",
			fmt.Sprintf("Failed to list ticks of '%s'", instigatorName), err)
	}
	return ticks, nil
}

// ListPartitions enumerates the partitions of a partition set.
func (s *Service) ListPartitions(ctx context.Context, partitionSetName string) ([]model.Partition, error) {
	psDef, err := s.ws.PartitionSetByName(partitionSetName)
	if err != nil {
		return nil, err
	}
	return psDef.Partitions(), nil
}

// GetBackfill loads a backfill record by id.
func (s *Service) GetBackfill(ctx context.Context, backfillID string) (*model.Backfill, error) {
	bf, err := s.store.FindBackfillByID(ctx, backfillID)
	if err != nil {
		if errors.Is(err, repository.ErrBackfillNotFound) {
			return nil, exception.NewNotFoundError("query",
				fmt.Sprintf("Backfill '%s' does not exist", backfillID), err)
		}
		return nil, exception.NewInternalError("query",
			fmt.Sprintf("Failed to look up backfill '%s'", backfillID), err)
	}
	return bf, nil
}

// ValidatePlan builds the execution plan of a job without launching anything.
// Configuration, step selection and graph shape are all checked, so callers
// can dry-run a launch request.
func (s *Service) ValidatePlan(ctx context.Context, jobName string, runConfig model.RunConfig, stepKeys []string) (*model.ExecutionPlan, error) {
	jobDef, err := s.ws.JobByName(jobName)
	if err != nil {
		return nil, err
	}
	if verr := jobDef.ValidateConfig(runConfig); verr != nil {
		return nil, verr
	}
	return plan.Build(jobDef, stepKeys)
}
