package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lendus/internal/events"
	"lendus/pkg/platform/tx"
)

// InMemoryStore keeps outbox rows in a map. Appends made inside a
// tx.ShardedRunner unit of work are removed again on rollback.
type InMemoryStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]*events.Event
	order  []uuid.UUID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{events: make(map[uuid.UUID]*events.Event)}
}

func (s *InMemoryStore) Append(ctx context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := event
	s.events[event.ID] = &stored
	s.order = append(s.order, event.ID)

	eventID := event.ID
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.events, eventID)
		for i, candidate := range s.order {
			if candidate == eventID {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	})
	return nil
}

func (s *InMemoryStore) ListUnpublished(_ context.Context, limit int) ([]events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, eventID := range s.order {
		event := s.events[eventID]
		if event.PublishedAt != nil {
			continue
		}
		out = append(out, *event)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, eventID := range ids {
		if event, ok := s.events[eventID]; ok {
			published := at
			event.PublishedAt = &published
			event.Attempts++
		}
	}
	return nil
}

func (s *InMemoryStore) MarkFailed(_ context.Context, ids []uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, eventID := range ids {
		if event, ok := s.events[eventID]; ok {
			event.Attempts++
			event.LastError = reason
		}
	}
	return nil
}

// All returns every stored event ordered by creation, for assertions.
func (s *InMemoryStore) All() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Event, 0, len(s.order))
	for _, eventID := range s.order {
		out = append(out, *s.events[eventID])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
