package sentinel

import (
	"errors"
	"fmt"
)

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: an optimistic check failed because a concurrent writer got there first
// - ErrUniqueViolation: storage rejected a row that breaks a uniqueness constraint
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: service or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUniqueViolation = errors.New("unique violation")
	ErrInvalidState    = errors.New("invalid state")
	ErrUnavailable     = errors.New("unavailable")
)

// LostRace reclassifies a unique violation raised after a locked read found
// no holder for the slot. Another writer committed first, so the failure is
// ordinary contention (ErrConflict), not a broken invariant. Other errors are
// returned unchanged.
func LostRace(err error) error {
	if errors.Is(err, ErrUniqueViolation) {
		return fmt.Errorf("%w: slot claimed by a concurrent writer (%v)", ErrConflict, err)
	}
	return err
}
