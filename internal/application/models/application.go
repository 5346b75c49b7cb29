package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	id "lendus/pkg/domain"
)

// Application is a credit application. Status mirrors the to_status of the
// latest history entry.
type Application struct {
	ID              id.ApplicationID
	Tenant          id.TenantID
	Applicant       id.OwnerRef
	Status          Status
	RequestedAmount int64 // minor units
	TermMonths      int
	Snapshot        *Snapshot
	SubmittedAt     *time.Time
	LockVersion     int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	c := *a
	if a.SubmittedAt != nil {
		v := *a.SubmittedAt
		c.SubmittedAt = &v
	}
	c.Snapshot = a.Snapshot.Clone()
	return &c
}

// RefKind says which store a snapshot reference points into.
type RefKind string

const (
	RefVersionRecord RefKind = "version_record"
	RefDocument      RefKind = "document"
)

// Reference pins one version record or document by id.
type Reference struct {
	Kind RefKind   `json:"kind"`
	ID   uuid.UUID `json:"id"`
	Type string    `json:"type"`
}

// Snapshot slot names.
const (
	SlotIdentification = "identification"
	SlotAddress        = "address"
	SlotEmployment     = "employment"
	SlotBankAccount    = "bank_account"
	SlotReferences     = "references"
	SlotDocuments      = "documents"
)

// Snapshot freezes the ids in force at submission together with a copy of
// their payloads. Keys are slot names; list slots use "references.0",
// "references.1" and optional documents "documents.<DOC_TYPE>".
type Snapshot struct {
	References map[string]Reference       `json:"references"`
	Data       map[string]json.RawMessage `json:"data"`
	CapturedAt time.Time                  `json:"captured_at"`
}

func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := &Snapshot{
		References: make(map[string]Reference, len(s.References)),
		Data:       make(map[string]json.RawMessage, len(s.Data)),
		CapturedAt: s.CapturedAt,
	}
	for k, v := range s.References {
		c.References[k] = v
	}
	for k, v := range s.Data {
		c.Data[k] = append(json.RawMessage(nil), v...)
	}
	return c
}

// StatusHistoryEntry is one immutable row of the audit trail.
type StatusHistoryEntry struct {
	ID            id.HistoryEntryID
	ApplicationID id.ApplicationID
	Tenant        id.TenantID
	From          Status
	To            Status
	ChangedBy     id.ActorID
	ChangedByKind ActorKind
	Notes         string
	At            time.Time
}
