package models

import (
	"time"

	id "lendus/pkg/domain"
)

// VersionedRecord is one version of a typed profile record.
//
// Invariants:
//   - at most one non-deleted record per (tenant, owner, type, slot) has IsCurrent
//   - PreviousVersionID, when set, names a non-current record of the same
//     (owner, type, slot); following it never revisits a record
//
// Slot is empty for single-valued types. Multi-valued types (references)
// keep one chain per slot.
//   - records are never physically deleted; DeletedAt marks retention hiding
type VersionedRecord struct {
	ID                id.RecordID       `json:"id"`
	Tenant            id.TenantID       `json:"tenant_id"`
	Owner             id.OwnerRef       `json:"owner"`
	Type              RecordType        `json:"type"`
	Slot              string            `json:"slot,omitempty"`
	Payload           Payload           `json:"payload"`
	IsCurrent         bool              `json:"is_current"`
	PreviousVersionID *id.RecordID      `json:"previous_version_id,omitempty"`
	ValidFrom         time.Time         `json:"valid_from"`
	ValidUntil        *time.Time        `json:"valid_until,omitempty"`
	Status            Status            `json:"status"`
	ReplacedAt        *time.Time        `json:"replaced_at,omitempty"`
	ReplacementReason ReplacementReason `json:"replacement_reason,omitempty"`
	LockVersion       int               `json:"lock_version"`
	CreatedAt         time.Time         `json:"created_at"`
	DeletedAt         *time.Time        `json:"deleted_at,omitempty"`
}

// NewCurrent builds the PENDING current version of key that follows previous.
func NewCurrent(key ChainKey, payload Payload, previous *id.RecordID, now time.Time) *VersionedRecord {
	return &VersionedRecord{
		ID:                id.NewRecordID(),
		Tenant:            key.Tenant,
		Owner:             key.Owner,
		Type:              key.Type,
		Slot:              key.Slot,
		Payload:           payload,
		IsCurrent:         true,
		PreviousVersionID: previous,
		ValidFrom:         now,
		Status:            StatusPending,
		LockVersion:       1,
		CreatedAt:         now,
	}
}

// IsDeleted reports whether the record was soft-deleted.
func (r *VersionedRecord) IsDeleted() bool {
	return r.DeletedAt != nil
}

// SameChain reports whether other belongs to the same chain.
func (r *VersionedRecord) SameChain(other *VersionedRecord) bool {
	return r.Key() == other.Key()
}

// Retire marks the record as replaced.
func (r *VersionedRecord) Retire(now time.Time, reason ReplacementReason) {
	r.IsCurrent = false
	r.ReplacedAt = &now
	r.ValidUntil = &now
	r.ReplacementReason = reason
	r.Status = StatusSuperseded
	r.LockVersion++
}

// Clone returns a copy that shares no pointers with r.
func (r *VersionedRecord) Clone() *VersionedRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.PreviousVersionID = clonePtr(r.PreviousVersionID)
	c.ValidUntil = clonePtr(r.ValidUntil)
	c.ReplacedAt = clonePtr(r.ReplacedAt)
	c.DeletedAt = clonePtr(r.DeletedAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ChainKey identifies one version chain.
type ChainKey struct {
	Tenant id.TenantID
	Owner  id.OwnerRef
	Type   RecordType
	Slot   string
}

func (k ChainKey) String() string {
	s := k.Tenant.String() + "/" + k.Owner.Key() + "/" + string(k.Type)
	if k.Slot != "" {
		s += "#" + k.Slot
	}
	return s
}

func (r *VersionedRecord) Key() ChainKey {
	return ChainKey{Tenant: r.Tenant, Owner: r.Owner, Type: r.Type, Slot: r.Slot}
}
