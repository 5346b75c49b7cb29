package store

import (
	"context"
	"sync"
	"time"

	"lendus/internal/application/models"
	id "lendus/pkg/domain"
	"lendus/pkg/platform/sentinel"
	"lendus/pkg/platform/tx"
)

// InMemoryStore keeps applications and their append-only history in maps.
// It exposes no way to edit or remove a history entry.
type InMemoryStore struct {
	mu      sync.RWMutex
	apps    map[id.ApplicationID]*models.Application
	history map[id.ApplicationID][]models.StatusHistoryEntry
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		apps:    make(map[id.ApplicationID]*models.Application),
		history: make(map[id.ApplicationID][]models.StatusHistoryEntry),
	}
}

func (s *InMemoryStore) Insert(ctx context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apps[app.ID]; exists {
		return sentinel.ErrUniqueViolation
	}
	s.apps[app.ID] = app.Clone()

	appID := app.ID
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.apps, appID)
	})
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, tenant id.TenantID, appID id.ApplicationID, _ bool) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[appID]
	if !ok || app.Tenant != tenant {
		return nil, sentinel.ErrNotFound
	}
	return app.Clone(), nil
}

// UpdateStatus moves the application to status when its lock version still
// matches, bumping the lock. submittedAt is only written when non-nil.
func (s *InMemoryStore) UpdateStatus(ctx context.Context, tenant id.TenantID, appID id.ApplicationID, expectedLock int, status models.Status, at time.Time, submittedAt *time.Time) error {
	return s.mutate(ctx, tenant, appID, func(app *models.Application) error {
		if app.LockVersion != expectedLock {
			return sentinel.ErrConflict
		}
		app.Status = status
		app.UpdatedAt = at
		app.LockVersion++
		if submittedAt != nil {
			v := *submittedAt
			app.SubmittedAt = &v
		}
		return nil
	})
}

// SaveSnapshot stores the snapshot once; a second write is
// sentinel.ErrInvalidState.
func (s *InMemoryStore) SaveSnapshot(ctx context.Context, tenant id.TenantID, appID id.ApplicationID, snapshot *models.Snapshot) error {
	return s.mutate(ctx, tenant, appID, func(app *models.Application) error {
		if app.Snapshot != nil {
			return sentinel.ErrInvalidState
		}
		app.Snapshot = snapshot.Clone()
		return nil
	})
}

func (s *InMemoryStore) AppendHistory(ctx context.Context, entry models.StatusHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[entry.ApplicationID]
	if !ok || app.Tenant != entry.Tenant {
		return sentinel.ErrNotFound
	}
	appID := entry.ApplicationID
	n := len(s.history[appID])
	s.history[appID] = append(s.history[appID], entry)

	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.history[appID] = s.history[appID][:n]
	})
	return nil
}

// ListHistory returns a copy of the entries, oldest first.
func (s *InMemoryStore) ListHistory(_ context.Context, tenant id.TenantID, appID id.ApplicationID) ([]models.StatusHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[appID]
	if !ok || app.Tenant != tenant {
		return nil, sentinel.ErrNotFound
	}
	out := make([]models.StatusHistoryEntry, len(s.history[appID]))
	copy(out, s.history[appID])
	return out, nil
}

func (s *InMemoryStore) mutate(ctx context.Context, tenant id.TenantID, appID id.ApplicationID, fn func(app *models.Application) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[appID]
	if !ok || app.Tenant != tenant {
		return sentinel.ErrNotFound
	}
	before := app.Clone()
	if err := fn(app); err != nil {
		return err
	}
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.apps[appID] = before
	})
	return nil
}
