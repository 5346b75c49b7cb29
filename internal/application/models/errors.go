package models

import (
	"fmt"
	"strings"

	dErrors "lendus/pkg/domain-errors"
)

// InvalidTransitionError names the rejected edge.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// NewInvalidTransition returns a CodeInvalidTransition error wrapping the edge.
func NewInvalidTransition(from, to Status) error {
	cause := &InvalidTransitionError{From: from, To: to}
	return dErrors.Wrap(cause, dErrors.CodeInvalidTransition, "transition not allowed")
}

// IncompleteProfileError enumerates the snapshot slots that could not be filled.
type IncompleteProfileError struct {
	Missing []string
}

func (e *IncompleteProfileError) Error() string {
	return "incomplete profile: missing " + strings.Join(e.Missing, ", ")
}

// NewIncompleteProfile returns a CodeIncompleteProfile error listing missing slots.
func NewIncompleteProfile(missing []string) error {
	cause := &IncompleteProfileError{Missing: missing}
	return dErrors.Wrap(cause, dErrors.CodeIncompleteProfile, "profile cannot be submitted")
}
