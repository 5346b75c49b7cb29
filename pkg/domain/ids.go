package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "lendus/pkg/domain-errors"
)

// Typed identifiers keep tenant, record, document and application ids from
// being mixed up at call sites. All are UUIDs underneath.
type (
	TenantID       uuid.UUID
	RecordID       uuid.UUID
	DocumentID     uuid.UUID
	ApplicationID  uuid.UUID
	VerificationID uuid.UUID
	HistoryEntryID uuid.UUID
	ActorID        uuid.UUID
)

// maxIDLength bounds input before it reaches the UUID parser.
const maxIDLength = 64

func parseUUID(kind, s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is too long")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return u, nil
}

func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID("tenant id", s)
	return TenantID(u), err
}

func ParseRecordID(s string) (RecordID, error) {
	u, err := parseUUID("record id", s)
	return RecordID(u), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID("document id", s)
	return DocumentID(u), err
}

func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID("application id", s)
	return ApplicationID(u), err
}

func ParseVerificationID(s string) (VerificationID, error) {
	u, err := parseUUID("verification id", s)
	return VerificationID(u), err
}

func ParseActorID(s string) (ActorID, error) {
	u, err := parseUUID("actor id", s)
	return ActorID(u), err
}

func (id TenantID) String() string       { return uuid.UUID(id).String() }
func (id RecordID) String() string       { return uuid.UUID(id).String() }
func (id DocumentID) String() string     { return uuid.UUID(id).String() }
func (id ApplicationID) String() string  { return uuid.UUID(id).String() }
func (id VerificationID) String() string { return uuid.UUID(id).String() }
func (id HistoryEntryID) String() string { return uuid.UUID(id).String() }
func (id ActorID) String() string        { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ApplicationID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id VerificationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ActorID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }

// NewRecordID, NewDocumentID, ... mint fresh random identifiers.
func NewRecordID() RecordID             { return RecordID(uuid.New()) }
func NewDocumentID() DocumentID         { return DocumentID(uuid.New()) }
func NewApplicationID() ApplicationID   { return ApplicationID(uuid.New()) }
func NewVerificationID() VerificationID { return VerificationID(uuid.New()) }
func NewHistoryEntryID() HistoryEntryID { return HistoryEntryID(uuid.New()) }
