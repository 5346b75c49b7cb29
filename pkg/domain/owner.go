package domain

import (
	"github.com/google/uuid"

	dErrors "lendus/pkg/domain-errors"
)

// OwnerKind tags the entity a versioned record or document belongs to.
type OwnerKind string

const (
	OwnerPerson      OwnerKind = "person"
	OwnerCompany     OwnerKind = "company"
	OwnerApplication OwnerKind = "application"
)

// OwnerRef is the tagged owner reference used by every versioned table.
// Construct with PersonOwner/CompanyOwner/ApplicationOwner or ParseOwnerRef.
type OwnerRef struct {
	Kind OwnerKind `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

func PersonOwner(id uuid.UUID) OwnerRef  { return OwnerRef{Kind: OwnerPerson, ID: id} }
func CompanyOwner(id uuid.UUID) OwnerRef { return OwnerRef{Kind: OwnerCompany, ID: id} }

func ApplicationOwner(id ApplicationID) OwnerRef {
	return OwnerRef{Kind: OwnerApplication, ID: uuid.UUID(id)}
}

// ParseOwnerRef builds an OwnerRef from its persisted kind/id columns.
func ParseOwnerRef(kind, id string) (OwnerRef, error) {
	u, err := parseUUID("owner id", id)
	if err != nil {
		return OwnerRef{}, err
	}
	ref := OwnerRef{Kind: OwnerKind(kind), ID: u}
	if err := ref.Validate(); err != nil {
		return OwnerRef{}, err
	}
	return ref, nil
}

// Validate rejects unknown kinds and nil ids.
func (o OwnerRef) Validate() error {
	switch o.Kind {
	case OwnerPerson, OwnerCompany, OwnerApplication:
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "unknown owner kind: "+string(o.Kind))
	}
	if o.ID == uuid.Nil {
		return dErrors.New(dErrors.CodeInvalidInput, "owner id is required")
	}
	return nil
}

// Key renders the owner as "kind:id" for map keys, lock keys and log fields.
func (o OwnerRef) Key() string {
	return string(o.Kind) + ":" + o.ID.String()
}

func (o OwnerRef) String() string {
	return o.Key()
}
