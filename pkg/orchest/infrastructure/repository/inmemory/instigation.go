package inmemory

import (
	"context"
	"fmt"
	"sort"
	"time"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
)

// SaveScheduleState persists or replaces the state of a schedule.
func (s *InMemoryStore) SaveScheduleState(ctx context.Context, state *model.ScheduleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scheduleStates[state.ScheduleName] = cloneScheduleState(state)
	return nil
}

// FindScheduleState finds the state of a schedule by name.
func (s *InMemoryStore) FindScheduleState(ctx context.Context, scheduleName string) (*model.ScheduleState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.scheduleStates[scheduleName]
	if !ok {
		return nil, repository.ErrScheduleStateNotFound
	}
	return cloneScheduleState(state), nil
}

// ListScheduleStates returns every known schedule state, ordered by name.
func (s *InMemoryStore) ListScheduleStates(ctx context.Context) ([]*model.ScheduleState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.ScheduleState, 0, len(s.scheduleStates))
	for _, state := range s.scheduleStates {
		out = append(out, cloneScheduleState(state))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduleName < out[j].ScheduleName })
	return out, nil
}

// SaveSensorState persists or replaces the state of a sensor.
func (s *InMemoryStore) SaveSensorState(ctx context.Context, state *model.SensorState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sensorStates[state.SensorName] = cloneSensorState(state)
	return nil
}

// FindSensorState finds the state of a sensor by name.
func (s *InMemoryStore) FindSensorState(ctx context.Context, sensorName string) (*model.SensorState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sensorStates[sensorName]
	if !ok {
		return nil, repository.ErrSensorStateNotFound
	}
	return cloneSensorState(state), nil
}

// ListSensorStates returns every known sensor state, ordered by name.
func (s *InMemoryStore) ListSensorStates(ctx context.Context) ([]*model.SensorState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.SensorState, 0, len(s.sensorStates))
	for _, state := range s.sensorStates {
		out = append(out, cloneSensorState(state))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SensorName < out[j].SensorName })
	return out, nil
}

// CreateTick atomically records a STARTED tick. For schedule ticks the
// per-(instigator, timestamp) uniqueness index rejects duplicates with
// ErrTickAlreadyRecorded.
func (s *InMemoryStore) CreateTick(ctx context.Context, tick *model.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tick.InstigatorType == model.InstigatorTypeSchedule {
		key := scheduleTickKey{tick.InstigatorName, tick.Timestamp.UnixNano()}
		if _, exists := s.scheduleTicks[key]; exists {
			return repository.ErrTickAlreadyRecorded
		}
		s.scheduleTicks[key] = tick.ID
	}
	s.ticks[tick.ID] = cloneTick(tick)
	s.tickOrder = append(s.tickOrder, tick.ID)
	return nil
}

// UpdateTick updates a previously created tick.
func (s *InMemoryStore) UpdateTick(ctx context.Context, tick *model.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ticks[tick.ID]; !exists {
		return fmt.Errorf("tick with ID %s not found for update", tick.ID)
	}
	s.ticks[tick.ID] = cloneTick(tick)
	return nil
}

// ListTicks returns the recorded ticks of an instigator, newest first,
// bounded by limit (limit <= 0 means unbounded).
func (s *InMemoryStore) ListTicks(ctx context.Context, instigatorName string, limit int) ([]*model.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Tick
	for i := len(s.tickOrder) - 1; i >= 0; i-- {
		tick := s.ticks[s.tickOrder[i]]
		if tick.InstigatorName != instigatorName {
			continue
		}
		out = append(out, cloneTick(tick))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// FindTickByTimestamp returns the schedule tick recorded for the exact due
// timestamp, or nil when none exists.
func (s *InMemoryStore) FindTickByTimestamp(ctx context.Context, instigatorName string, timestamp time.Time) (*model.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := scheduleTickKey{instigatorName, timestamp.UnixNano()}
	id, ok := s.scheduleTicks[key]
	if !ok {
		return nil, nil
	}
	return cloneTick(s.ticks[id]), nil
}
