package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "lendus/pkg/domain"
	dErrors "lendus/pkg/domain-errors"
)

func TestCanTransition_Table(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusDraft, StatusSubmitted}:              true,
		{StatusDraft, StatusCancelled}:              true,
		{StatusSubmitted, StatusInReview}:           true,
		{StatusSubmitted, StatusDocsPending}:        true,
		{StatusSubmitted, StatusCorrectionsPending}: true,
		{StatusSubmitted, StatusRejected}:           true,
		{StatusSubmitted, StatusCancelled}:          true,
		{StatusInReview, StatusDocsPending}:         true,
		{StatusInReview, StatusCorrectionsPending}:  true,
		{StatusInReview, StatusApproved}:            true,
		{StatusInReview, StatusRejected}:            true,
		{StatusInReview, StatusCancelled}:           true,
		{StatusDocsPending, StatusInReview}:         true,
		{StatusDocsPending, StatusRejected}:         true,
		{StatusDocsPending, StatusCancelled}:        true,
		{StatusCorrectionsPending, StatusInReview}:  true,
		{StatusCorrectionsPending, StatusRejected}:  true,
		{StatusCorrectionsPending, StatusCancelled}: true,
		{StatusApproved, StatusDisbursed}:           true,
		{StatusDisbursed, StatusActive}:             true,
		{StatusActive, StatusCompleted}:             true,
		{StatusActive, StatusDefault}:               true,
	}

	// every pair is decided, including self-loops and unknown targets
	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
		assert.False(t, CanTransition(from, Status("ARCHIVED")))
	}
}

func TestTerminalStatusesHaveNoExitExceptApproved(t *testing.T) {
	for _, s := range AllStatuses() {
		if !s.IsTerminal() {
			continue
		}
		if s == StatusApproved {
			assert.Equal(t, []Status{StatusDisbursed}, AllowedTransitions(s))
			continue
		}
		assert.Empty(t, AllowedTransitions(s), s)
	}
}

func TestAllowedTransitionsReturnsCopy(t *testing.T) {
	out := AllowedTransitions(StatusDraft)
	out[0] = StatusDefault
	assert.True(t, CanTransition(StatusDraft, StatusSubmitted))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("IN_REVIEW")
	require.NoError(t, err)
	assert.Equal(t, StatusInReview, s)

	_, err = ParseStatus("in_review")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestAuthorize(t *testing.T) {
	applicantID := uuid.New()
	app := &Application{ID: id.NewApplicationID(), Applicant: id.PersonOwner(applicantID), Status: StatusSubmitted}

	tests := []struct {
		name  string
		actor Actor
		to    Status
		code  dErrors.Code
	}{
		{"owner submits", Actor{ID: id.ActorID(applicantID), Kind: ActorApplicant}, StatusSubmitted, ""},
		{"owner cancels", Actor{ID: id.ActorID(applicantID), Kind: ActorApplicant}, StatusCancelled, ""},
		{"owner cannot approve", Actor{ID: id.ActorID(applicantID), Kind: ActorApplicant}, StatusApproved, dErrors.CodeForbidden},
		{"owner cannot start review", Actor{ID: id.ActorID(applicantID), Kind: ActorApplicant}, StatusInReview, dErrors.CodeForbidden},
		{"other applicant cannot cancel", Actor{ID: id.ActorID(uuid.New()), Kind: ActorApplicant}, StatusCancelled, dErrors.CodeForbidden},
		{"staff reviews", Actor{ID: id.ActorID(uuid.New()), Kind: ActorStaff}, StatusInReview, ""},
		{"staff cancels", Actor{ID: id.ActorID(uuid.New()), Kind: ActorStaff}, StatusCancelled, ""},
		{"system approves", Actor{ID: id.ActorID(uuid.New()), Kind: ActorSystem}, StatusApproved, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.actor, app, tt.to)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, dErrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestActorValidate(t *testing.T) {
	assert.NoError(t, Actor{ID: id.ActorID(uuid.New()), Kind: ActorStaff}.Validate())
	assert.True(t, dErrors.HasCode(Actor{ID: id.ActorID(uuid.New()), Kind: "robot"}.Validate(), dErrors.CodeInvalidInput))
	assert.True(t, dErrors.HasCode(Actor{Kind: ActorSystem}.Validate(), dErrors.CodeInvalidInput))
}

func TestDomainErrorsCarryDetails(t *testing.T) {
	err := NewInvalidTransition(StatusDraft, StatusApproved)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	var edge *InvalidTransitionError
	require.ErrorAs(t, err, &edge)
	assert.Equal(t, StatusDraft, edge.From)
	assert.Equal(t, StatusApproved, edge.To)

	err = NewIncompleteProfile([]string{SlotAddress, SlotBankAccount})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIncompleteProfile))
	var incomplete *IncompleteProfileError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []string{"address", "bank_account"}, incomplete.Missing)
	assert.Contains(t, err.Error(), "missing address, bank_account")
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	snap := &Snapshot{
		References: map[string]Reference{SlotAddress: {Kind: RefVersionRecord, ID: uuid.New(), Type: "HOME"}},
		Data:       map[string]json.RawMessage{SlotAddress: json.RawMessage(`{"street":"Reforma"}`)},
	}
	c := snap.Clone()
	c.Data[SlotAddress][2] = 'X'
	c.References[SlotEmployment] = Reference{Kind: RefVersionRecord, ID: uuid.New()}

	assert.JSONEq(t, `{"street":"Reforma"}`, string(snap.Data[SlotAddress]))
	assert.Len(t, snap.References, 1)

	var nilSnap *Snapshot
	assert.Nil(t, nilSnap.Clone())
}
