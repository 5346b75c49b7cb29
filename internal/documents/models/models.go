package models

import (
	"strings"
	"time"

	id "lendus/pkg/domain"
	dErrors "lendus/pkg/domain-errors"
)

// DocType is the closed set of document kinds an owner can upload.
type DocType string

const (
	DocINEFront       DocType = "INE_FRONT"
	DocINEBack        DocType = "INE_BACK"
	DocPassport       DocType = "PASSPORT"
	DocProofOfAddress DocType = "PROOF_OF_ADDRESS"
	DocProofOfIncome  DocType = "PROOF_OF_INCOME"
	DocBankStatement  DocType = "BANK_STATEMENT"
	DocRFCCertificate DocType = "RFC_CERTIFICATE"
	DocSelfie         DocType = "SELFIE"
)

func (t DocType) IsValid() bool {
	switch t {
	case DocINEFront, DocINEBack, DocPassport, DocProofOfAddress,
		DocProofOfIncome, DocBankStatement, DocRFCCertificate, DocSelfie:
		return true
	}
	return false
}

func ParseDocType(s string) (DocType, error) {
	t := DocType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown document type: "+s)
	}
	return t, nil
}

// Status is the review state of a document.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
	StatusExpired    Status = "EXPIRED"
	StatusSuperseded Status = "SUPERSEDED"
)

func (s Status) IsReviewOutcome() bool {
	return s == StatusApproved || s == StatusRejected
}

// ReplacementReason is recorded on a document when it stops being active.
type ReplacementReason string

const (
	ReasonCorrected  ReplacementReason = "CORRECTED"
	ReasonUpdated    ReplacementReason = "UPDATED"
	ReasonRenewed    ReplacementReason = "RENEWED"
	ReasonExpired    ReplacementReason = "EXPIRED"
	ReasonReconciled ReplacementReason = "RECONCILED"
)

// NormalizeReason defaults to CORRECTED. RECONCILED is written only by the
// deployment reconciliation pass.
func NormalizeReason(r ReplacementReason) (ReplacementReason, error) {
	switch r {
	case "":
		return ReasonCorrected, nil
	case ReasonCorrected, ReasonUpdated, ReasonRenewed, ReasonExpired:
		return r, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported replacement reason: "+string(r))
	}
}

// File is the blob-store metadata of an upload. The bytes live elsewhere.
type File struct {
	Path      string `json:"path"`
	Checksum  string `json:"checksum"`
	SizeBytes int64  `json:"size_bytes"`
	MimeType  string `json:"mime_type,omitempty"`
}

func (f File) Validate() error {
	if strings.TrimSpace(f.Path) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "file path is required")
	}
	if strings.TrimSpace(f.Checksum) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "file checksum is required")
	}
	if f.SizeBytes <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "file size must be positive")
	}
	return nil
}

// Document is one upload of a (owner, doc type) slot.
//
// Invariants:
//   - at most one document per (tenant, owner, doc type) has IsActive
//   - SupersededByID, when set, leads forward to the active document
//   - ValidTo is set exactly when the document stopped being active
type Document struct {
	ID                id.DocumentID     `json:"id"`
	Tenant            id.TenantID       `json:"tenant_id"`
	Owner             id.OwnerRef       `json:"owner"`
	DocType           DocType           `json:"doc_type"`
	File              File              `json:"file"`
	ProviderData      map[string]any    `json:"provider_data,omitempty"`
	IsActive          bool              `json:"is_active"`
	ValidFrom         time.Time         `json:"valid_from"`
	ValidTo           *time.Time        `json:"valid_to,omitempty"`
	SupersededByID    *id.DocumentID    `json:"superseded_by_id,omitempty"`
	Status            Status            `json:"status"`
	ReplacementReason ReplacementReason `json:"replacement_reason,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Key identifies the slot a document occupies.
type Key struct {
	Tenant  id.TenantID
	Owner   id.OwnerRef
	DocType DocType
}

func (k Key) String() string {
	return k.Tenant.String() + "/" + k.Owner.Key() + "/" + string(k.DocType)
}

func (d *Document) Key() Key {
	return Key{Tenant: d.Tenant, Owner: d.Owner, DocType: d.DocType}
}

// Retire deactivates the document in favour of successor.
func (d *Document) Retire(now time.Time, successor id.DocumentID, reason ReplacementReason) {
	d.IsActive = false
	d.ValidTo = &now
	d.SupersededByID = &successor
	d.Status = StatusSuperseded
	d.ReplacementReason = reason
	d.UpdatedAt = now
}

// Activate makes the document the active one from now on.
func (d *Document) Activate(now time.Time) {
	d.IsActive = true
	d.ValidFrom = now
	d.ValidTo = nil
	d.UpdatedAt = now
}

// Clone returns a copy that shares no pointers or maps with d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.ValidTo != nil {
		v := *d.ValidTo
		c.ValidTo = &v
	}
	if d.SupersededByID != nil {
		v := *d.SupersededByID
		c.SupersededByID = &v
	}
	if d.ProviderData != nil {
		c.ProviderData = make(map[string]any, len(d.ProviderData))
		for k, v := range d.ProviderData {
			c.ProviderData[k] = v
		}
	}
	return &c
}
