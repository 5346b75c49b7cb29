package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"lendus/internal/versionchain/models"
	id "lendus/pkg/domain"
	"lendus/pkg/platform/sentinel"
	"lendus/pkg/platform/tx"
)

// InMemoryStore keeps versions in a map keyed by id plus a current-pointer
// index that enforces one current version per chain the way the partial unique
// index does in Postgres. Mutations register undo steps with the unit of work
// in context.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.RecordID]*models.VersionedRecord
	seq     map[id.RecordID]int64
	current map[models.ChainKey]id.RecordID
	nextSeq int64
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[id.RecordID]*models.VersionedRecord),
		seq:     make(map[id.RecordID]int64),
		current: make(map[models.ChainKey]id.RecordID),
	}
}

func (s *InMemoryStore) FindCurrent(_ context.Context, key models.ChainKey, _ bool) (*models.VersionedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recID, ok := s.current[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.records[recID].Clone(), nil
}

func (s *InMemoryStore) FindLatest(_ context.Context, key models.ChainKey) (*models.VersionedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.VersionedRecord
	for recID, rec := range s.records {
		if rec.Key() != key || rec.IsDeleted() {
			continue
		}
		if latest == nil || s.newer(recID, rec, latest) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return latest.Clone(), nil
}

func (s *InMemoryStore) newer(recID id.RecordID, rec, than *models.VersionedRecord) bool {
	if !rec.CreatedAt.Equal(than.CreatedAt) {
		return rec.CreatedAt.After(than.CreatedAt)
	}
	return s.seq[recID] > s.seq[than.ID]
}

func (s *InMemoryStore) FindByID(_ context.Context, tenant id.TenantID, recordID id.RecordID) (*models.VersionedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordID]
	if !ok || rec.Tenant != tenant {
		return nil, sentinel.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *InMemoryStore) ListCurrent(_ context.Context, tenant id.TenantID, owner id.OwnerRef) ([]*models.VersionedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.VersionedRecord
	for key, recID := range s.current {
		if key.Tenant == tenant && key.Owner == owner {
			out = append(out, s.records[recID].Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Slot < out[j].Slot
	})
	return out, nil
}

func (s *InMemoryStore) Insert(ctx context.Context, rec *models.VersionedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return sentinel.ErrUniqueViolation
	}
	key := rec.Key()
	if rec.IsCurrent && !rec.IsDeleted() {
		if _, taken := s.current[key]; taken {
			return sentinel.ErrUniqueViolation
		}
		s.current[key] = rec.ID
	}
	s.nextSeq++
	s.records[rec.ID] = rec.Clone()
	s.seq[rec.ID] = s.nextSeq

	recID := rec.ID
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.records, recID)
		delete(s.seq, recID)
		if cur, ok := s.current[key]; ok && cur == recID {
			delete(s.current, key)
		}
	})
	return nil
}

func (s *InMemoryStore) Retire(ctx context.Context, tenant id.TenantID, recordID id.RecordID, expectedLock int, at time.Time, reason models.ReplacementReason) error {
	return s.mutate(ctx, tenant, recordID, expectedLock, func(rec *models.VersionedRecord) error {
		if !rec.IsCurrent || rec.IsDeleted() {
			return sentinel.ErrConflict
		}
		rec.Retire(at, reason)
		delete(s.current, rec.Key())
		return nil
	})
}

func (s *InMemoryStore) UpdateStatus(ctx context.Context, tenant id.TenantID, recordID id.RecordID, expectedLock int, status models.Status) error {
	return s.mutate(ctx, tenant, recordID, expectedLock, func(rec *models.VersionedRecord) error {
		if !rec.IsCurrent || rec.IsDeleted() {
			return sentinel.ErrInvalidState
		}
		rec.Status = status
		rec.LockVersion++
		return nil
	})
}

func (s *InMemoryStore) SoftDelete(ctx context.Context, tenant id.TenantID, recordID id.RecordID, at time.Time) error {
	return s.mutate(ctx, tenant, recordID, -1, func(rec *models.VersionedRecord) error {
		if rec.IsDeleted() {
			return nil
		}
		if rec.IsCurrent {
			delete(s.current, rec.Key())
			rec.IsCurrent = false
		}
		rec.DeletedAt = &at
		rec.LockVersion++
		return nil
	})
}

// mutate applies fn to the stored record under the write lock and registers a
// restore of the previous state. expectedLock < 0 skips the optimistic check.
func (s *InMemoryStore) mutate(ctx context.Context, tenant id.TenantID, recordID id.RecordID, expectedLock int, fn func(rec *models.VersionedRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordID]
	if !ok || rec.Tenant != tenant {
		return sentinel.ErrNotFound
	}
	if expectedLock >= 0 && rec.LockVersion != expectedLock {
		return sentinel.ErrConflict
	}

	before := rec.Clone()
	wasCurrent := s.current[rec.Key()] == recordID && rec.IsCurrent
	if err := fn(rec); err != nil {
		return err
	}

	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.records[recordID] = before
		if wasCurrent {
			s.current[before.Key()] = recordID
		}
	})
	return nil
}
