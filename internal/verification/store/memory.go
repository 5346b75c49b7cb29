package store

import (
	"context"
	"sync"

	"lendus/internal/verification/models"
	"lendus/pkg/platform/sentinel"
	"lendus/pkg/platform/tx"
)

// InMemoryStore keeps one append-only slice of records per field.
type InMemoryStore struct {
	mu     sync.RWMutex
	fields map[models.FieldKey][]*models.Record
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{fields: make(map[models.FieldKey][]*models.Record)}
}

func (s *InMemoryStore) Latest(_ context.Context, key models.FieldKey, _ bool) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.fields[key]
	if len(records) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return records[len(records)-1].Clone(), nil
}

func (s *InMemoryStore) Append(ctx context.Context, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.Key()
	for _, existing := range s.fields[key] {
		if existing.ID == rec.ID {
			return sentinel.ErrUniqueViolation
		}
	}
	n := len(s.fields[key])
	s.fields[key] = append(s.fields[key], rec.Clone())

	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.fields[key] = s.fields[key][:n]
	})
	return nil
}

// Resolve overwrites the outcome of a PENDING record. Any other status is
// sentinel.ErrConflict.
func (s *InMemoryStore) Resolve(ctx context.Context, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.Key()
	for i, existing := range s.fields[key] {
		if existing.ID != rec.ID {
			continue
		}
		if existing.Status != models.StatusPending {
			return sentinel.ErrConflict
		}
		before := existing
		s.fields[key][i] = rec.Clone()
		tx.OnRollback(ctx, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.fields[key][i] = before
		})
		return nil
	}
	return sentinel.ErrNotFound
}

// ListHistory returns copies of every record of the field, oldest first.
func (s *InMemoryStore) ListHistory(_ context.Context, key models.FieldKey) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Record, 0, len(s.fields[key]))
	for _, rec := range s.fields[key] {
		out = append(out, rec.Clone())
	}
	return out, nil
}
