package models

import (
	"sort"
	"strings"

	dErrors "lendus/pkg/domain-errors"
)

// Family groups record types that fill the same profile slot.
type Family string

const (
	FamilyIdentification Family = "identification"
	FamilyAddress        Family = "address"
	FamilyEmployment     Family = "employment"
	FamilyReference      Family = "reference"
)

// RecordType is the discriminator of a versioned record. Each (owner, type)
// pair has its own version chain.
type RecordType string

const (
	TypeINE      RecordType = "INE"
	TypePassport RecordType = "PASSPORT"
	TypeRFC      RecordType = "RFC"
	TypeCURP     RecordType = "CURP"

	TypeHome   RecordType = "HOME"
	TypeWork   RecordType = "WORK"
	TypeFiscal RecordType = "FISCAL"

	TypeSalaried      RecordType = "SALARIED"
	TypeSelfEmployed  RecordType = "SELF_EMPLOYED"
	TypeBusinessOwner RecordType = "BUSINESS_OWNER"

	TypeReferencePersonal RecordType = "REFERENCE_PERSONAL"
	TypeReferenceFamily   RecordType = "REFERENCE_FAMILY"
	TypeReferenceWork     RecordType = "REFERENCE_WORK"
)

var recordFamilies = map[RecordType]Family{
	TypeINE:               FamilyIdentification,
	TypePassport:          FamilyIdentification,
	TypeRFC:               FamilyIdentification,
	TypeCURP:              FamilyIdentification,
	TypeHome:              FamilyAddress,
	TypeWork:              FamilyAddress,
	TypeFiscal:            FamilyAddress,
	TypeSalaried:          FamilyEmployment,
	TypeSelfEmployed:      FamilyEmployment,
	TypeBusinessOwner:     FamilyEmployment,
	TypeReferencePersonal: FamilyReference,
	TypeReferenceFamily:   FamilyReference,
	TypeReferenceWork:     FamilyReference,
}

// Family returns the family of a known type.
func (t RecordType) Family() (Family, bool) {
	f, ok := recordFamilies[t]
	return f, ok
}

func (t RecordType) IsValid() bool {
	_, ok := recordFamilies[t]
	return ok
}

// MultiValued reports whether an owner may hold several parallel chains of
// t, told apart by slot. References are the only such family.
func (t RecordType) MultiValued() bool {
	f, ok := recordFamilies[t]
	return ok && f == FamilyReference
}

// maxSlotLength bounds caller-chosen slot labels.
const maxSlotLength = 64

// NormalizeSlot trims slot and checks it against t: multi-valued types need a
// slot, single-valued types must not carry one.
func NormalizeSlot(t RecordType, slot string) (string, error) {
	slot = strings.TrimSpace(slot)
	switch {
	case !t.MultiValued() && slot != "":
		return "", dErrors.New(dErrors.CodeInvalidInput, string(t)+" records do not take a slot")
	case t.MultiValued() && slot == "":
		return "", dErrors.New(dErrors.CodeInvalidInput, string(t)+" records require a slot")
	case len(slot) > maxSlotLength:
		return "", dErrors.New(dErrors.CodeInvalidInput, "slot must be at most 64 characters")
	}
	return slot, nil
}

func (t RecordType) String() string {
	return string(t)
}

// ParseRecordType rejects unknown discriminators.
func ParseRecordType(s string) (RecordType, error) {
	t := RecordType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown record type: "+s)
	}
	return t, nil
}

// TypesOf lists the record types of a family in stable order.
func TypesOf(f Family) []RecordType {
	var out []RecordType
	for t, family := range recordFamilies {
		if family == f {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Status is the review state of a version.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusVerified   Status = "VERIFIED"
	StatusRejected   Status = "REJECTED"
	StatusExpired    Status = "EXPIRED"
	StatusSuperseded Status = "SUPERSEDED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected, StatusExpired, StatusSuperseded:
		return true
	}
	return false
}

// IsReviewOutcome reports whether staff may set s on a current version.
func (s Status) IsReviewOutcome() bool {
	return s == StatusVerified || s == StatusRejected
}

// ReplacementReason records why a version stopped being current.
type ReplacementReason string

const (
	ReasonCorrected ReplacementReason = "CORRECTED"
	ReasonUpdated   ReplacementReason = "UPDATED"
	ReasonRenewed   ReplacementReason = "RENEWED"
	// ReasonExpired is written only by the expiry sweep.
	ReasonExpired ReplacementReason = "EXPIRED"
)

func (r ReplacementReason) IsValid() bool {
	switch r {
	case ReasonCorrected, ReasonUpdated, ReasonRenewed, ReasonExpired:
		return true
	}
	return false
}

// NormalizeReason applies the CORRECTED default and rejects reasons a writer
// may not supply.
func NormalizeReason(r ReplacementReason) (ReplacementReason, error) {
	switch r {
	case "":
		return ReasonCorrected, nil
	case ReasonCorrected, ReasonUpdated, ReasonRenewed:
		return r, nil
	case ReasonExpired:
		return "", dErrors.New(dErrors.CodeInvalidInput, "replacement reason EXPIRED is reserved for the expiry sweep")
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown replacement reason: "+string(r))
	}
}
