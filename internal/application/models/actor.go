package models

import (
	"github.com/google/uuid"

	id "lendus/pkg/domain"
	dErrors "lendus/pkg/domain-errors"
)

// ActorKind identifies who drove a transition.
type ActorKind string

const (
	ActorApplicant ActorKind = "applicant"
	ActorStaff     ActorKind = "staff"
	ActorSystem    ActorKind = "system"
)

// Actor is recorded on every status history entry.
type Actor struct {
	ID   id.ActorID
	Kind ActorKind
}

func (a Actor) Validate() error {
	switch a.Kind {
	case ActorApplicant, ActorStaff, ActorSystem:
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "unknown actor kind: "+string(a.Kind))
	}
	if a.ID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "actor id is required")
	}
	return nil
}

// applicantTransitions are the only targets an applicant may request.
var applicantTransitions = map[Status]bool{
	StatusSubmitted: true,
	StatusCancelled: true,
}

// Authorize checks actor rules for moving app to target. Applicants may only
// submit or cancel their own application; every other transition is a
// reviewer action for staff or system actors.
func Authorize(actor Actor, app *Application, to Status) error {
	if actor.Kind != ActorApplicant {
		return nil
	}
	if !applicantTransitions[to] {
		return dErrors.New(dErrors.CodeForbidden, "applicants cannot move an application to "+string(to))
	}
	if app.Applicant.ID != uuid.UUID(actor.ID) {
		return dErrors.New(dErrors.CodeForbidden, "application belongs to another applicant")
	}
	return nil
}
