package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	dErrors "lendus/pkg/domain-errors"
)

// Payload is the closed set of typed record bodies. Each variant belongs to
// exactly one family.
type Payload interface {
	Family() Family
	Validate() error
}

// IdentificationPayload backs INE, PASSPORT, RFC and CURP records.
type IdentificationPayload struct {
	Number         string     `json:"number"`
	FullName       string     `json:"full_name,omitempty"`
	IssuingCountry string     `json:"issuing_country,omitempty"`
	IssuedAt       *time.Time `json:"issued_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

func (IdentificationPayload) Family() Family { return FamilyIdentification }

func (p IdentificationPayload) Validate() error {
	if strings.TrimSpace(p.Number) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "identification number is required")
	}
	if p.IssuedAt != nil && p.ExpiresAt != nil && p.ExpiresAt.Before(*p.IssuedAt) {
		return dErrors.New(dErrors.CodeInvalidInput, "identification expires before it was issued")
	}
	return nil
}

// AddressPayload backs HOME, WORK and FISCAL records.
type AddressPayload struct {
	Street         string `json:"street"`
	ExteriorNumber string `json:"exterior_number,omitempty"`
	InteriorNumber string `json:"interior_number,omitempty"`
	Neighborhood   string `json:"neighborhood,omitempty"`
	Municipality   string `json:"municipality,omitempty"`
	State          string `json:"state,omitempty"`
	PostalCode     string `json:"postal_code"`
	Country        string `json:"country,omitempty"`
	ResidenceYears int    `json:"residence_years,omitempty"`
}

func (AddressPayload) Family() Family { return FamilyAddress }

func (p AddressPayload) Validate() error {
	if strings.TrimSpace(p.Street) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "street is required")
	}
	if strings.TrimSpace(p.PostalCode) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "postal code is required")
	}
	if p.ResidenceYears < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "residence years cannot be negative")
	}
	return nil
}

// EmploymentPayload backs SALARIED, SELF_EMPLOYED and BUSINESS_OWNER records.
// MonthlyIncome is in minor currency units.
type EmploymentPayload struct {
	EmployerName  string     `json:"employer_name,omitempty"`
	Position      string     `json:"position,omitempty"`
	MonthlyIncome int64      `json:"monthly_income"`
	Phone         string     `json:"phone,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
}

func (EmploymentPayload) Family() Family { return FamilyEmployment }

func (p EmploymentPayload) Validate() error {
	if p.MonthlyIncome < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "monthly income cannot be negative")
	}
	return nil
}

// ReferencePayload backs personal, family and work references.
type ReferencePayload struct {
	FullName     string `json:"full_name"`
	Relationship string `json:"relationship,omitempty"`
	Phone        string `json:"phone"`
}

func (ReferencePayload) Family() Family { return FamilyReference }

func (p ReferencePayload) Validate() error {
	if strings.TrimSpace(p.FullName) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "reference name is required")
	}
	if strings.TrimSpace(p.Phone) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "reference phone is required")
	}
	return nil
}

// ValidatePayload checks that p is present, belongs to t's family and is
// internally valid.
func ValidatePayload(t RecordType, p Payload) error {
	family, ok := t.Family()
	if !ok {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown record type: "+string(t))
	}
	if p == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "payload is required")
	}
	if p.Family() != family {
		return dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("%s payload cannot be stored as %s", p.Family(), t))
	}
	return p.Validate()
}

// EncodePayload renders a payload for the JSONB column.
func EncodePayload(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload restores the typed variant for t.
func DecodePayload(t RecordType, raw []byte) (Payload, error) {
	family, ok := t.Family()
	if !ok {
		return nil, fmt.Errorf("decode payload: unknown record type %q", t)
	}
	switch family {
	case FamilyIdentification:
		return decode[IdentificationPayload](raw)
	case FamilyAddress:
		return decode[AddressPayload](raw)
	case FamilyEmployment:
		return decode[EmploymentPayload](raw)
	case FamilyReference:
		return decode[ReferencePayload](raw)
	default:
		return nil, fmt.Errorf("decode payload: unhandled family %q", family)
	}
}

func decode[T Payload](raw []byte) (Payload, error) {
	var p T
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", p.Family(), err)
	}
	return p, nil
}
