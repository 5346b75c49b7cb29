package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"lendus/internal/application/models"
	"lendus/internal/application/service/mocks"
	docmodels "lendus/internal/documents/models"
	"lendus/internal/events"
	vcmodels "lendus/internal/versionchain/models"
	id "lendus/pkg/domain"
	dErrors "lendus/pkg/domain-errors"
	"lendus/pkg/platform/sentinel"
	"lendus/pkg/platform/tx"
	"lendus/pkg/testutil"
)

type appenderFunc func(ctx context.Context, event events.Event) error

func (f appenderFunc) Append(ctx context.Context, event events.Event) error { return f(ctx, event) }

type fixture struct {
	store     *mocks.MockStore
	records   *mocks.MockRecordReader
	documents *mocks.MockDocumentReader
	appended  []events.Event
	tenant    id.TenantID
	app       *models.Application
	staff     models.Actor
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	tenant := id.TenantID(uuid.New())
	return &fixture{
		store:     mocks.NewMockStore(ctrl),
		records:   mocks.NewMockRecordReader(ctrl),
		documents: mocks.NewMockDocumentReader(ctrl),
		tenant:    tenant,
		app: &models.Application{
			ID:          id.NewApplicationID(),
			Tenant:      tenant,
			Applicant:   id.PersonOwner(uuid.New()),
			Status:      models.StatusDraft,
			LockVersion: 4,
			CreatedAt:   testutil.FixedTime,
			UpdatedAt:   testutil.FixedTime,
		},
		staff: models.Actor{ID: id.ActorID(uuid.New()), Kind: models.ActorStaff},
	}
}

func (f *fixture) service(outbox events.Appender) *Service {
	if outbox == nil {
		outbox = appenderFunc(func(_ context.Context, event events.Event) error {
			f.appended = append(f.appended, event)
			return nil
		})
	}
	return New(f.store, f.records, f.documents, outbox, tx.NewShardedRunner())
}

func (f *fixture) profile() ([]*vcmodels.VersionedRecord, []*docmodels.Document) {
	rec := func(t vcmodels.RecordType, slot string, p vcmodels.Payload) *vcmodels.VersionedRecord {
		key := vcmodels.ChainKey{Tenant: f.tenant, Owner: f.app.Applicant, Type: t, Slot: slot}
		return vcmodels.NewCurrent(key, p, nil, testutil.FixedTime)
	}
	records := []*vcmodels.VersionedRecord{
		rec(vcmodels.TypeINE, "", vcmodels.IdentificationPayload{Number: "IDMEX1"}),
		rec(vcmodels.TypeHome, "", vcmodels.AddressPayload{Street: "Madero 1", PostalCode: "06000"}),
		rec(vcmodels.TypeSelfEmployed, "", vcmodels.EmploymentPayload{MonthlyIncome: 100}),
		rec(vcmodels.TypeReferenceFamily, "mother", vcmodels.ReferencePayload{FullName: "A", Phone: "1"}),
		rec(vcmodels.TypeReferenceWork, "manager", vcmodels.ReferencePayload{FullName: "B", Phone: "2"}),
	}
	docs := []*docmodels.Document{{
		ID:        id.NewDocumentID(),
		Tenant:    f.tenant,
		Owner:     f.app.Applicant,
		DocType:   docmodels.DocBankStatement,
		IsActive:  true,
		Status:    docmodels.StatusApproved,
		ValidFrom: testutil.FixedTime,
	}}
	return records, docs
}

func TestTransition_LockConflictWritesNoHistory(t *testing.T) {
	f := newFixture(t)
	f.app.Status = models.StatusSubmitted
	f.store.EXPECT().FindByID(gomock.Any(), f.tenant, f.app.ID, true).Return(f.app.Clone(), nil)
	f.store.EXPECT().UpdateStatus(gomock.Any(), f.tenant, f.app.ID, 4, models.StatusInReview, testutil.FixedTime, (*time.Time)(nil)).
		Return(sentinel.ErrConflict)

	_, err := f.service(nil).Transition(testutil.Context(testutil.FixedTime), f.tenant, f.app.ID, models.StatusInReview, f.staff, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConcurrentModification))
	assert.True(t, dErrors.Retryable(err))
	assert.Empty(t, f.appended)
}

func TestTransition_SubmitStoresSnapshotBeforeStatus(t *testing.T) {
	f := newFixture(t)
	records, docs := f.profile()
	ctx := testutil.Context(testutil.FixedTime)

	gomock.InOrder(
		f.store.EXPECT().FindByID(gomock.Any(), f.tenant, f.app.ID, true).Return(f.app.Clone(), nil),
		f.records.EXPECT().ListCurrent(gomock.Any(), f.tenant, f.app.Applicant).Return(records, nil),
		f.documents.EXPECT().ListActive(gomock.Any(), f.tenant, f.app.Applicant).Return(docs, nil),
		f.store.EXPECT().SaveSnapshot(gomock.Any(), f.tenant, f.app.ID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.TenantID, _ id.ApplicationID, snap *models.Snapshot) error {
				assert.Equal(t, uuid.UUID(records[1].ID), snap.References[models.SlotAddress].ID)
				assert.Equal(t, "SELF_EMPLOYED", snap.References[models.SlotEmployment].Type)
				assert.Equal(t, uuid.UUID(docs[0].ID), snap.References[models.SlotBankAccount].ID)
				assert.True(t, snap.CapturedAt.Equal(testutil.FixedTime))
				return nil
			}),
		f.store.EXPECT().UpdateStatus(gomock.Any(), f.tenant, f.app.ID, 4, models.StatusSubmitted, testutil.FixedTime, gomock.Not(gomock.Nil())).
			Return(nil),
		f.store.EXPECT().AppendHistory(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, entry models.StatusHistoryEntry) error {
				assert.Equal(t, models.StatusDraft, entry.From)
				assert.Equal(t, models.StatusSubmitted, entry.To)
				return nil
			}),
	)

	app, err := f.service(nil).Transition(ctx, f.tenant, f.app.ID, models.StatusSubmitted, f.staff, "submitted at branch")
	require.NoError(t, err)
	assert.Equal(t, 5, app.LockVersion)
	require.NotNil(t, app.SubmittedAt)
	require.Len(t, f.appended, 1)
	assert.Equal(t, events.AggregateApplication, f.appended[0].AggregateType)
}

func TestTransition_StoredSnapshotIsAnInvariantViolation(t *testing.T) {
	f := newFixture(t)
	records, docs := f.profile()
	f.store.EXPECT().FindByID(gomock.Any(), f.tenant, f.app.ID, true).Return(f.app.Clone(), nil)
	f.records.EXPECT().ListCurrent(gomock.Any(), f.tenant, f.app.Applicant).Return(records, nil)
	f.documents.EXPECT().ListActive(gomock.Any(), f.tenant, f.app.Applicant).Return(docs, nil)
	f.store.EXPECT().SaveSnapshot(gomock.Any(), f.tenant, f.app.ID, gomock.Any()).Return(sentinel.ErrInvalidState)

	_, err := f.service(nil).Transition(testutil.Context(testutil.FixedTime), f.tenant, f.app.ID, models.StatusSubmitted, f.staff, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	assert.Empty(t, f.appended)
}

func TestTransition_ReaderFailureAbortsSubmission(t *testing.T) {
	f := newFixture(t)
	f.store.EXPECT().FindByID(gomock.Any(), f.tenant, f.app.ID, true).Return(f.app.Clone(), nil)
	f.records.EXPECT().ListCurrent(gomock.Any(), f.tenant, f.app.Applicant).Return(nil, errors.New("connection reset"))

	_, err := f.service(nil).Transition(testutil.Context(testutil.FixedTime), f.tenant, f.app.ID, models.StatusSubmitted, f.staff, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestTransition_OutboxFailureFailsTransition(t *testing.T) {
	f := newFixture(t)
	f.store.EXPECT().FindByID(gomock.Any(), f.tenant, f.app.ID, true).Return(f.app.Clone(), nil)
	f.store.EXPECT().UpdateStatus(gomock.Any(), f.tenant, f.app.ID, 4, models.StatusCancelled, testutil.FixedTime, (*time.Time)(nil)).Return(nil)
	f.store.EXPECT().AppendHistory(gomock.Any(), gomock.Any()).Return(nil)

	outbox := appenderFunc(func(context.Context, events.Event) error { return errors.New("outbox unavailable") })
	_, err := f.service(outbox).Transition(testutil.Context(testutil.FixedTime), f.tenant, f.app.ID, models.StatusCancelled, f.staff, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestTransition_RejectsBadInputWithoutTouchingStore(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil)
	ctx := context.Background()

	_, err := svc.Transition(ctx, f.tenant, f.app.ID, models.Status("ARCHIVED"), f.staff, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = svc.Transition(ctx, f.tenant, f.app.ID, models.StatusCancelled, models.Actor{Kind: models.ActorStaff}, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	long := make([]byte, maxNotesLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = svc.Transition(ctx, f.tenant, f.app.ID, models.StatusCancelled, f.staff, string(long))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestTransition_EveryIllegalEdgeTouchesOnlyTheLockedRead(t *testing.T) {
	for _, from := range models.AllStatuses() {
		for _, to := range models.AllStatuses() {
			if models.CanTransition(from, to) {
				continue
			}
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				f := newFixture(t)
				f.app.Status = from
				applicant := models.Actor{ID: id.ActorID(f.app.Applicant.ID), Kind: models.ActorApplicant}

				// Any store, reader or outbox call beyond the locked read fails the test.
				f.store.EXPECT().FindByID(gomock.Any(), f.tenant, f.app.ID, true).Return(f.app.Clone(), nil).Times(2)
				svc := f.service(nil)

				for _, actor := range []models.Actor{f.staff, applicant} {
					_, err := svc.Transition(testutil.Context(testutil.FixedTime), f.tenant, f.app.ID, to, actor, "")
					require.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition), "%s: %v", actor.Kind, err)
					var edge *models.InvalidTransitionError
					require.ErrorAs(t, err, &edge)
					assert.Equal(t, from, edge.From)
					assert.Equal(t, to, edge.To)
				}
				assert.Empty(t, f.appended)
			})
		}
	}
}
