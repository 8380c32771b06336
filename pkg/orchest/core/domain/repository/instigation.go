package repository

import (
	"context"
	"errors"
	"time"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
)

// ErrScheduleStateNotFound is the error returned when a ScheduleState is not found.
var ErrScheduleStateNotFound = errors.New("schedule state not found")

// ErrSensorStateNotFound is the error returned when a SensorState is not found.
var ErrSensorStateNotFound = errors.New("sensor state not found")

// ErrTickAlreadyRecorded is returned by CreateTick when a tick for the same
// schedule and due timestamp already exists. This uniqueness is the
// write-ahead idempotency guarantee of the tick engines.
var ErrTickAlreadyRecorded = errors.New("tick already recorded for timestamp")

func init() {
	exception.RegisterErrorType("ErrScheduleStateNotFound", ErrScheduleStateNotFound)
	exception.RegisterErrorType("ErrSensorStateNotFound", ErrSensorStateNotFound)
	exception.RegisterErrorType("ErrTickAlreadyRecorded", ErrTickAlreadyRecorded)
}

// InstigationStore persists schedule/sensor states and their tick history.
type InstigationStore interface {
	// SaveScheduleState persists or replaces the state of a schedule.
	SaveScheduleState(ctx context.Context, state *model.ScheduleState) error

	// FindScheduleState finds the state of a schedule by name.
	// Returns ErrScheduleStateNotFound if absent.
	FindScheduleState(ctx context.Context, scheduleName string) (*model.ScheduleState, error)

	// ListScheduleStates returns every known schedule state.
	ListScheduleStates(ctx context.Context) ([]*model.ScheduleState, error)

	// SaveSensorState persists or replaces the state of a sensor.
	SaveSensorState(ctx context.Context, state *model.SensorState) error

	// FindSensorState finds the state of a sensor by name.
	// Returns ErrSensorStateNotFound if absent.
	FindSensorState(ctx context.Context, sensorName string) (*model.SensorState, error)

	// ListSensorStates returns every known sensor state.
	ListSensorStates(ctx context.Context) ([]*model.SensorState, error)

	// CreateTick atomically records a STARTED tick. For schedule ticks it
	// enforces at most one tick per (instigator, timestamp) and returns
	// ErrTickAlreadyRecorded on a duplicate.
	CreateTick(ctx context.Context, tick *model.Tick) error

	// UpdateTick updates a previously created tick (status, run ids, error,
	// skip reason).
	UpdateTick(ctx context.Context, tick *model.Tick) error

	// ListTicks returns the recorded ticks of an instigator, newest first,
	// bounded by limit (limit <= 0 means unbounded).
	ListTicks(ctx context.Context, instigatorName string, limit int) ([]*model.Tick, error)

	// FindTickByTimestamp returns the schedule tick recorded for the exact due
	// timestamp, or nil when none exists.
	FindTickByTimestamp(ctx context.Context, instigatorName string, timestamp time.Time) (*model.Tick, error)
}
