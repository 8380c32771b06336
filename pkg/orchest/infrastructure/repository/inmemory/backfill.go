package inmemory

import (
	"context"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
)

// SaveBackfill persists a new Backfill record.
func (s *InMemoryStore) SaveBackfill(ctx context.Context, backfill *model.Backfill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.backfills[backfill.ID] = cloneBackfill(backfill)
	s.backfillOrder = append(s.backfillOrder, backfill.ID)
	return nil
}

// UpdateBackfill updates an existing Backfill record.
func (s *InMemoryStore) UpdateBackfill(ctx context.Context, backfill *model.Backfill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.backfills[backfill.ID]; !exists {
		return repository.ErrBackfillNotFound
	}
	s.backfills[backfill.ID] = cloneBackfill(backfill)
	return nil
}

// FindBackfillByID finds a Backfill by its ID.
func (s *InMemoryStore) FindBackfillByID(ctx context.Context, backfillID string) (*model.Backfill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	backfill, ok := s.backfills[backfillID]
	if !ok {
		return nil, repository.ErrBackfillNotFound
	}
	return cloneBackfill(backfill), nil
}

// ListBackfills returns every backfill record, newest first.
func (s *InMemoryStore) ListBackfills(ctx context.Context) ([]*model.Backfill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Backfill, 0, len(s.backfillOrder))
	for i := len(s.backfillOrder) - 1; i >= 0; i-- {
		out = append(out, cloneBackfill(s.backfills[s.backfillOrder[i]]))
	}
	return out, nil
}
