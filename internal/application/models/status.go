package models

import (
	dErrors "lendus/pkg/domain-errors"
)

// Status is the lifecycle state of a credit application.
type Status string

const (
	StatusDraft              Status = "DRAFT"
	StatusSubmitted          Status = "SUBMITTED"
	StatusInReview           Status = "IN_REVIEW"
	StatusDocsPending        Status = "DOCS_PENDING"
	StatusCorrectionsPending Status = "CORRECTIONS_PENDING"
	StatusApproved           Status = "APPROVED"
	StatusRejected           Status = "REJECTED"
	StatusCancelled          Status = "CANCELLED"
	StatusDisbursed          Status = "DISBURSED"
	StatusActive             Status = "ACTIVE"
	StatusCompleted          Status = "COMPLETED"
	StatusDefault            Status = "DEFAULT"
)

// AllStatuses lists every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusDraft, StatusSubmitted, StatusInReview, StatusDocsPending, StatusCorrectionsPending,
		StatusApproved, StatusRejected, StatusCancelled, StatusDisbursed, StatusActive,
		StatusCompleted, StatusDefault,
	}
}

// transitions is the complete table; anything absent is invalid.
var transitions = map[Status][]Status{
	StatusDraft:              {StatusSubmitted, StatusCancelled},
	StatusSubmitted:          {StatusInReview, StatusDocsPending, StatusCorrectionsPending, StatusRejected, StatusCancelled},
	StatusInReview:           {StatusDocsPending, StatusCorrectionsPending, StatusApproved, StatusRejected, StatusCancelled},
	StatusDocsPending:        {StatusInReview, StatusRejected, StatusCancelled},
	StatusCorrectionsPending: {StatusInReview, StatusRejected, StatusCancelled},
	StatusApproved:           {StatusDisbursed},
	StatusDisbursed:          {StatusActive},
	StatusActive:             {StatusCompleted, StatusDefault},
}

func (s Status) IsValid() bool {
	for _, candidate := range AllStatuses() {
		if s == candidate {
			return true
		}
	}
	return false
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown application status: "+raw)
	}
	return s, nil
}

// IsTerminal reports statuses with no outgoing transition in this engine.
// APPROVED is terminal for review but still moves on to disbursement.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled, StatusCompleted, StatusDefault:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is in the table.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from s in one step.
func AllowedTransitions(s Status) []Status {
	out := make([]Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}
