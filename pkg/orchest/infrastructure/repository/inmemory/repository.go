// Package inmemory provides an in-memory implementation of the Store
// interface. It holds all orchestration data in maps within memory, suitable
// for tests and scenarios where persistence is not required.
package inmemory

import (
	"sync"
	"time"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
)

// scheduleTickKey indexes schedule ticks for the per-(instigator, timestamp)
// uniqueness guarantee.
type scheduleTickKey struct {
	instigatorName string
	timestamp      int64
}

// InMemoryStore is an in-memory implementation of the Store interface.
type InMemoryStore struct {
	runs           map[string]*model.Run
	runOrder       []string
	events         map[string][]model.Event
	scheduleStates map[string]*model.ScheduleState
	sensorStates   map[string]*model.SensorState
	ticks          map[string]*model.Tick
	tickOrder      []string
	scheduleTicks  map[scheduleTickKey]string
	backfills      map[string]*model.Backfill
	backfillOrder  []string
	mu             sync.RWMutex
}

// NewInMemoryStore creates and initializes a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		runs:           make(map[string]*model.Run),
		events:         make(map[string][]model.Event),
		scheduleStates: make(map[string]*model.ScheduleState),
		sensorStates:   make(map[string]*model.SensorState),
		ticks:          make(map[string]*model.Tick),
		scheduleTicks:  make(map[scheduleTickKey]string),
		backfills:      make(map[string]*model.Backfill),
	}
}

// Close releases resources used by the store. An in-memory store holds no
// external resources, so this always returns nil.
func (s *InMemoryStore) Close() error {
	return nil
}

var _ repository.Store = (*InMemoryStore)(nil)

// cloneRun deep-copies a run so callers cannot mutate internal state.
func cloneRun(run *model.Run) *model.Run {
	cloned := *run
	cloned.StepKeys = append(model.StringList(nil), run.StepKeys...)
	cloned.Config = cloneRunConfig(run.Config)
	cloned.Tags = run.Tags.Copy()
	cloned.StartTime = cloneTime(run.StartTime)
	cloned.EndTime = cloneTime(run.EndTime)
	return &cloned
}

func cloneRunConfig(config model.RunConfig) model.RunConfig {
	cloned := make(model.RunConfig, len(config))
	for k, v := range config {
		cloned[k] = v
	}
	return cloned
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneScheduleState(state *model.ScheduleState) *model.ScheduleState {
	cloned := *state
	cloned.LastTickTimestamp = cloneTime(state.LastTickTimestamp)
	return &cloned
}

func cloneSensorState(state *model.SensorState) *model.SensorState {
	cloned := *state
	return &cloned
}

func cloneTick(tick *model.Tick) *model.Tick {
	cloned := *tick
	cloned.RunIDs = append(model.StringList(nil), tick.RunIDs...)
	if tick.Error != nil {
		e := *tick.Error
		cloned.Error = &e
	}
	return &cloned
}

func cloneBackfill(backfill *model.Backfill) *model.Backfill {
	cloned := *backfill
	cloned.PartitionNames = append(model.StringList(nil), backfill.PartitionNames...)
	cloned.ReexecutionSteps = append(model.StringList(nil), backfill.ReexecutionSteps...)
	cloned.LaunchedRunIDs = append(model.StringList(nil), backfill.LaunchedRunIDs...)
	return &cloned
}
