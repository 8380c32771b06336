package inmemory

import (
	"context"
	"fmt"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
)

// SaveRun persists a new Run.
// It returns an error if a Run with the same ID already exists.
func (s *InMemoryStore) SaveRun(ctx context.Context, run *model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run with ID %s already exists", run.ID)
	}
	s.runs[run.ID] = cloneRun(run)
	s.runOrder = append(s.runOrder, run.ID)
	return nil
}

// UpdateRun updates an existing Run.
// It returns ErrRunNotFound if the Run does not exist.
func (s *InMemoryStore) UpdateRun(ctx context.Context, run *model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; !exists {
		return repository.ErrRunNotFound
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// FindRunByID finds a Run by its ID.
func (s *InMemoryStore) FindRunByID(ctx context.Context, runID string) (*model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, repository.ErrRunNotFound
	}
	return cloneRun(run), nil
}

// ListRuns returns runs matching the filter, newest first, starting after the
// cursor run ID, bounded by limit (limit <= 0 means unbounded).
func (s *InMemoryStore) ListRuns(ctx context.Context, filter repository.RunsFilter, cursor string, limit int) ([]*model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// runOrder is insertion order; walk it backwards for newest-first.
	started := cursor == ""
	var out []*model.Run
	for i := len(s.runOrder) - 1; i >= 0; i-- {
		id := s.runOrder[i]
		if !started {
			if id == cursor {
				started = true
			}
			continue
		}
		run := s.runs[id]
		if !filter.Matches(run) {
			continue
		}
		out = append(out, cloneRun(run))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// DeleteRun removes a run record.
// It returns ErrRunNotFound if the Run does not exist.
func (s *InMemoryStore) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[runID]; !exists {
		return repository.ErrRunNotFound
	}
	delete(s.runs, runID)
	for i, id := range s.runOrder {
		if id == runID {
			s.runOrder = append(s.runOrder[:i], s.runOrder[i+1:]...)
			break
		}
	}
	return nil
}
