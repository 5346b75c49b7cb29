package models

import (
	"encoding/json"
	"strings"
	"time"

	id "lendus/pkg/domain"
	dErrors "lendus/pkg/domain-errors"
)

// Method says how a field value was checked.
type Method string

const (
	MethodManual       Method = "MANUAL"
	MethodOCR          Method = "OCR"
	MethodBureau       Method = "BUREAU"
	MethodDocument     Method = "DOCUMENT"
	MethodSelfDeclared Method = "SELF_DECLARED"
)

func (m Method) IsValid() bool {
	switch m {
	case MethodManual, MethodOCR, MethodBureau, MethodDocument, MethodSelfDeclared:
		return true
	}
	return false
}

// Status is the outcome carried by one ledger row.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusVerified  Status = "VERIFIED"
	StatusRejected  Status = "REJECTED"
	StatusCorrected Status = "CORRECTED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected, StatusCorrected:
		return true
	}
	return false
}

// Correction is one old/new value pair.
type Correction struct {
	OldValue    string    `json:"old_value"`
	NewValue    string    `json:"new_value"`
	CorrectedAt time.Time `json:"corrected_at"`
	Reason      string    `json:"reason,omitempty"`
}

// Record is one row of the verification ledger. Several rows per field
// coexist; CorrectionHistory is cumulative across the whole field and
// VerificationData is the provider response, opaque to the ledger.
type Record struct {
	ID                id.VerificationID `json:"id"`
	Tenant            id.TenantID       `json:"tenant_id"`
	Owner             id.OwnerRef       `json:"owner"`
	FieldName         string            `json:"field_name"`
	FieldValue        string            `json:"field_value"`
	Method            Method            `json:"method"`
	Status            Status            `json:"status"`
	RejectionReason   string            `json:"rejection_reason,omitempty"`
	CorrectedAt       *time.Time        `json:"corrected_at,omitempty"`
	CorrectionHistory []Correction      `json:"correction_history"`
	VerificationData  json.RawMessage   `json:"verification_data,omitempty"`
	Confidence        *float64          `json:"confidence,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func (r *Record) Key() FieldKey {
	return FieldKey{Tenant: r.Tenant, Owner: r.Owner, FieldName: r.FieldName}
}

func (r *Record) Clone() *Record {
	c := *r
	if r.CorrectedAt != nil {
		t := *r.CorrectedAt
		c.CorrectedAt = &t
	}
	if r.Confidence != nil {
		v := *r.Confidence
		c.Confidence = &v
	}
	c.CorrectionHistory = append([]Correction(nil), r.CorrectionHistory...)
	if r.VerificationData != nil {
		c.VerificationData = append(json.RawMessage(nil), r.VerificationData...)
	}
	return &c
}

// FieldKey addresses the ledger of one field.
type FieldKey struct {
	Tenant    id.TenantID
	Owner     id.OwnerRef
	FieldName string
}

func (k FieldKey) String() string {
	return k.Tenant.String() + "/" + k.Owner.Key() + "/" + k.FieldName
}

// NormalizeFieldName trims and lowercases a field name.
func NormalizeFieldName(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "field name is required")
	}
	return n, nil
}
