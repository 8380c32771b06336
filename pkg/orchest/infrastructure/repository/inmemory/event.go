package inmemory

import (
	"context"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
)

// AppendEvent persists one event of a run. Cursor assignment is the event
// log's responsibility; the store records events as handed to it.
func (s *InMemoryStore) AppendEvent(ctx context.Context, event model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[event.RunID] = append(s.events[event.RunID], event)
	return nil
}

// ReadEvents returns a run's events with cursor strictly greater than
// afterCursor, in cursor order, bounded by limit (limit <= 0 means unbounded).
func (s *InMemoryStore) ReadEvents(ctx context.Context, runID string, afterCursor int64, limit int) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Event
	for _, ev := range s.events[runID] {
		if ev.Cursor <= afterCursor {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// LastCursor returns the highest assigned cursor of a run, or -1 when the run
// has no events.
func (s *InMemoryStore) LastCursor(ctx context.Context, runID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[runID]
	if len(events) == 0 {
		return -1, nil
	}
	return events[len(events)-1].Cursor, nil
}

// DeleteEvents removes every event of a run.
func (s *InMemoryStore) DeleteEvents(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.events, runID)
	return nil
}
