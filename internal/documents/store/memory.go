package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"lendus/internal/documents/models"
	id "lendus/pkg/domain"
	"lendus/pkg/platform/sentinel"
	"lendus/pkg/platform/tx"
)

// InMemoryStore keeps documents in a map. The one-active rule is enforced on
// every write once the constraint is enabled, mirroring the partial unique
// index installed by reconciliation.
type InMemoryStore struct {
	mu            sync.RWMutex
	docs          map[id.DocumentID]*models.Document
	seq           map[id.DocumentID]int64
	nextSeq       int64
	enforceActive bool
}

type MemoryOption func(*InMemoryStore)

// WithoutActiveConstraint starts the store in the pre-reconciliation state in
// which duplicate active rows can exist.
func WithoutActiveConstraint() MemoryOption {
	return func(s *InMemoryStore) {
		s.enforceActive = false
	}
}

func NewInMemory(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		docs:          make(map[id.DocumentID]*models.Document),
		seq:           make(map[id.DocumentID]int64),
		enforceActive: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) FindActive(_ context.Context, key models.Key, _ bool) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := s.activeLocked(key, id.DocumentID{})
	if len(active) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return active[0].Clone(), nil
}

func (s *InMemoryStore) FindByID(_ context.Context, tenant id.TenantID, docID id.DocumentID, _ bool) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok || doc.Tenant != tenant {
		return nil, sentinel.ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *InMemoryStore) ListActive(_ context.Context, tenant id.TenantID, owner id.OwnerRef) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Document
	for _, doc := range s.docs {
		if doc.IsActive && doc.Tenant == tenant && doc.Owner == owner {
			out = append(out, doc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocType < out[j].DocType })
	return out, nil
}

func (s *InMemoryStore) ListActiveByKey(_ context.Context, key models.Key) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := s.activeLocked(key, id.DocumentID{})
	out := make([]*models.Document, 0, len(active))
	for _, doc := range active {
		out = append(out, doc.Clone())
	}
	return out, nil
}

func (s *InMemoryStore) DuplicateActiveKeys(_ context.Context) ([]models.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.Key]int)
	for _, doc := range s.docs {
		if doc.IsActive {
			counts[doc.Key()]++
		}
	}
	var keys []models.Key
	for key, n := range counts {
		if n > 1 {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

func (s *InMemoryStore) ActiveConstraintInstalled(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enforceActive, nil
}

// InstallActiveConstraint fails with sentinel.ErrUniqueViolation while
// duplicate active rows exist, as CREATE UNIQUE INDEX does.
func (s *InMemoryStore) InstallActiveConstraint(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[models.Key]bool)
	for _, doc := range s.docs {
		if !doc.IsActive {
			continue
		}
		if seen[doc.Key()] {
			return sentinel.ErrUniqueViolation
		}
		seen[doc.Key()] = true
	}
	s.enforceActive = true
	return nil
}

func (s *InMemoryStore) Insert(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return sentinel.ErrUniqueViolation
	}
	if doc.IsActive && s.enforceActive && len(s.activeLocked(doc.Key(), doc.ID)) > 0 {
		return sentinel.ErrUniqueViolation
	}
	s.nextSeq++
	s.docs[doc.ID] = doc.Clone()
	s.seq[doc.ID] = s.nextSeq

	docID := doc.ID
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.docs, docID)
		delete(s.seq, docID)
	})
	return nil
}

func (s *InMemoryStore) Retire(ctx context.Context, tenant id.TenantID, docID id.DocumentID, at time.Time, successor id.DocumentID, reason models.ReplacementReason) error {
	return s.mutate(ctx, tenant, docID, func(doc *models.Document) error {
		if !doc.IsActive {
			return sentinel.ErrConflict
		}
		doc.Retire(at, successor, reason)
		return nil
	})
}

func (s *InMemoryStore) MakeActive(ctx context.Context, tenant id.TenantID, docID id.DocumentID, at time.Time) error {
	return s.mutate(ctx, tenant, docID, func(doc *models.Document) error {
		if doc.IsActive {
			return nil
		}
		if s.enforceActive && len(s.activeLocked(doc.Key(), doc.ID)) > 0 {
			return sentinel.ErrUniqueViolation
		}
		doc.Activate(at)
		return nil
	})
}

func (s *InMemoryStore) UpdateStatus(ctx context.Context, tenant id.TenantID, docID id.DocumentID, from, to models.Status, at time.Time) error {
	return s.mutate(ctx, tenant, docID, func(doc *models.Document) error {
		if doc.Status != from {
			return sentinel.ErrConflict
		}
		doc.Status = to
		doc.UpdatedAt = at
		return nil
	})
}

func (s *InMemoryStore) mutate(ctx context.Context, tenant id.TenantID, docID id.DocumentID, fn func(doc *models.Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docID]
	if !ok || doc.Tenant != tenant {
		return sentinel.ErrNotFound
	}
	before := doc.Clone()
	if err := fn(doc); err != nil {
		return err
	}
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.docs[docID] = before
	})
	return nil
}

// activeLocked returns active documents of key other than skip, newest first.
func (s *InMemoryStore) activeLocked(key models.Key, skip id.DocumentID) []*models.Document {
	var out []*models.Document
	for docID, doc := range s.docs {
		if docID != skip && doc.IsActive && doc.Key() == key {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.seq[out[i].ID] > s.seq[out[j].ID]
	})
	return out
}
