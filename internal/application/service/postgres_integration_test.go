//go:build integration

package service_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"lendus/internal/application/models"
	"lendus/internal/application/service"
	"lendus/internal/application/store"
	docmodels "lendus/internal/documents/models"
	docservice "lendus/internal/documents/service"
	docstore "lendus/internal/documents/store"
	"lendus/internal/events"
	eventstore "lendus/internal/events/store"
	vcmodels "lendus/internal/versionchain/models"
	vcservice "lendus/internal/versionchain/service"
	vcstore "lendus/internal/versionchain/store"
	id "lendus/pkg/domain"
	dErrors "lendus/pkg/domain-errors"
	"lendus/pkg/platform/tx"
	"lendus/pkg/testutil"
	"lendus/pkg/testutil/containers"
)

type PostgresApplicationSuite struct {
	suite.Suite
	postgres  *containers.PostgresContainer
	outbox    *eventstore.PostgresStore
	records   *vcservice.Service
	documents *docservice.Service
	service   *service.Service
	clock     *testutil.Clock
	tenant    id.TenantID
	applicant id.OwnerRef
	owner     models.Actor
	staff     models.Actor
}

func TestPostgresApplicationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresApplicationSuite))
}

func (s *PostgresApplicationSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	db := s.postgres.DB
	runner := tx.NewPostgresRunner(db)
	s.outbox = eventstore.NewPostgres(db)
	s.records = vcservice.New(vcstore.NewPostgres(db), runner)
	s.documents = docservice.New(docstore.NewPostgres(db), runner)
	s.service = service.New(store.NewPostgres(db), s.records, s.documents, s.outbox, runner)
}

func (s *PostgresApplicationSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(),
		"application_status_history", "applications", "version_records", "documents", "outbox"))
	s.clock = testutil.NewClock(testutil.FixedTime)
	s.tenant = id.TenantID(uuid.New())
	applicantID := uuid.New()
	s.applicant = id.PersonOwner(applicantID)
	s.owner = models.Actor{ID: id.ActorID(applicantID), Kind: models.ActorApplicant}
	s.staff = models.Actor{ID: id.ActorID(uuid.New()), Kind: models.ActorStaff}
}

func (s *PostgresApplicationSuite) put(t vcmodels.RecordType, payload vcmodels.Payload) id.RecordID {
	return s.putSlot(t, "", payload)
}

func (s *PostgresApplicationSuite) putSlot(t vcmodels.RecordType, slot string, payload vcmodels.Payload) id.RecordID {
	recordID, err := s.records.PutCurrentVersion(s.clock.Next(), vcservice.PutRequest{
		Tenant: s.tenant, Owner: s.applicant, Type: t, Slot: slot, Payload: payload,
	})
	s.Require().NoError(err)
	return recordID
}

func (s *PostgresApplicationSuite) submittedApplication() (*models.Application, id.RecordID) {
	app, err := s.service.CreateDraft(s.clock.Next(), service.CreateDraftRequest{
		Tenant: s.tenant, Applicant: s.applicant, RequestedAmount: 2_500_000, TermMonths: 12, Actor: s.owner,
	})
	s.Require().NoError(err)

	s.put(vcmodels.TypePassport, vcmodels.IdentificationPayload{Number: "G0000001"})
	homeID := s.put(vcmodels.TypeHome, vcmodels.AddressPayload{Street: "Alvaro Obregon 10", PostalCode: "06700"})
	s.put(vcmodels.TypeBusinessOwner, vcmodels.EmploymentPayload{EmployerName: "Fonda", MonthlyIncome: 900_000})
	s.putSlot(vcmodels.TypeReferencePersonal, "friend", vcmodels.ReferencePayload{FullName: "Ana", Phone: "5511111111"})
	s.putSlot(vcmodels.TypeReferencePersonal, "coworker", vcmodels.ReferencePayload{FullName: "Beto", Phone: "5522222222"})
	_, err = s.documents.Activate(s.clock.Next(), docservice.ActivateRequest{
		Tenant: s.tenant, Owner: s.applicant, DocType: docmodels.DocBankStatement,
		File: docmodels.File{Path: "s3://docs/" + uuid.NewString(), Checksum: "sha256:01", SizeBytes: 100},
	})
	s.Require().NoError(err)

	submitted, err := s.service.Transition(s.clock.Next(), s.tenant, app.ID, models.StatusSubmitted, s.owner, "")
	s.Require().NoError(err)
	return submitted, homeID
}

func (s *PostgresApplicationSuite) TestSnapshotSurvivesProfileEdits() {
	app, homeID := s.submittedApplication()

	s.put(vcmodels.TypeHome, vcmodels.AddressPayload{Street: "Durango 200", PostalCode: "06700"})

	stored, err := s.service.Get(context.Background(), s.tenant, app.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored.Snapshot)
	s.Equal(uuid.UUID(homeID), stored.Snapshot.References[models.SlotAddress].ID)

	var data struct {
		Payload vcmodels.AddressPayload `json:"payload"`
	}
	s.Require().NoError(json.Unmarshal(stored.Snapshot.Data[models.SlotAddress], &data))
	s.Equal("Alvaro Obregon 10", data.Payload.Street)
}

func (s *PostgresApplicationSuite) TestSchemaRejectsRewrites() {
	app, _ := s.submittedApplication()
	ctx := context.Background()

	_, err := s.postgres.DB.ExecContext(ctx,
		`UPDATE applications SET snapshot_data = '{}'::jsonb WHERE id = $1`, uuid.UUID(app.ID))
	s.Error(err, "snapshot is frozen")

	_, err = s.postgres.DB.ExecContext(ctx,
		`UPDATE application_status_history SET notes = 'edited' WHERE application_id = $1`, uuid.UUID(app.ID))
	s.Error(err, "history is append-only")

	_, err = s.postgres.DB.ExecContext(ctx,
		`DELETE FROM application_status_history WHERE application_id = $1`, uuid.UUID(app.ID))
	s.Error(err, "history is append-only")
}

func (s *PostgresApplicationSuite) TestTransitionsLeaveOutboxRows() {
	app, _ := s.submittedApplication()
	_, err := s.service.Transition(s.clock.Next(), s.tenant, app.ID, models.StatusInReview, s.staff, "")
	s.Require().NoError(err)

	_, err = s.service.Transition(s.clock.Next(), s.tenant, app.ID, models.StatusDisbursed, s.staff, "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	pending, err := s.outbox.ListUnpublished(context.Background(), 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(events.TypeApplicationStatusChanged, pending[0].Type)

	history, err := s.service.History(context.Background(), s.tenant, app.ID)
	s.Require().NoError(err)
	s.Len(history, 3)
}

func (s *PostgresApplicationSuite) TestIncompleteProfileRollsBack() {
	app, err := s.service.CreateDraft(s.clock.Next(), service.CreateDraftRequest{
		Tenant: s.tenant, Applicant: s.applicant, RequestedAmount: 1, TermMonths: 1, Actor: s.owner,
	})
	s.Require().NoError(err)
	s.put(vcmodels.TypeINE, vcmodels.IdentificationPayload{Number: "IDMEX2"})

	_, err = s.service.Transition(s.clock.Next(), s.tenant, app.ID, models.StatusSubmitted, s.owner, "")
	s.True(dErrors.HasCode(err, dErrors.CodeIncompleteProfile))

	stored, err := s.service.Get(context.Background(), s.tenant, app.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDraft, stored.Status)
	s.Nil(stored.Snapshot)
	pending, err := s.outbox.ListUnpublished(context.Background(), 10)
	s.Require().NoError(err)
	s.Empty(pending)
}
