//go:build integration

package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"lendus/internal/documents/models"
	"lendus/internal/documents/service"
	"lendus/internal/documents/store"
	id "lendus/pkg/domain"
	dErrors "lendus/pkg/domain-errors"
	"lendus/pkg/platform/retry"
	"lendus/pkg/platform/sentinel"
	"lendus/pkg/platform/tx"
	"lendus/pkg/testutil"
	"lendus/pkg/testutil/containers"
)

type PostgresRegistrySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	runner   *tx.PostgresRunner
	service  *service.Service
}

func TestPostgresRegistrySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRegistrySuite))
}

func (s *PostgresRegistrySuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.runner = tx.NewPostgresRunner(s.postgres.DB)
	s.service = service.New(s.store, s.runner, service.WithRetryPolicy(retry.Policy{MaxAttempts: 50}))
}

func (s *PostgresRegistrySuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "documents"))
	_, err := service.NewReconciler(s.store, s.runner, nil).Run(ctx)
	s.Require().NoError(err)
}

func (s *PostgresRegistrySuite) file() models.File {
	return models.File{Path: "s3://docs/" + uuid.NewString(), Checksum: "sha256:aa", SizeBytes: 512}
}

func (s *PostgresRegistrySuite) TestConcurrentActivationsKeepOneActive() {
	ctx := context.Background()
	tenant := id.TenantID(uuid.New())
	owner := id.PersonOwner(uuid.New())
	const writers = 20

	var wg sync.WaitGroup
	var succeeded, contended atomic.Int32
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.Activate(ctx, service.ActivateRequest{
				Tenant: tenant, Owner: owner, DocType: models.DocBankStatement, File: s.file(),
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case dErrors.HasCode(err, dErrors.CodeConcurrentModification):
				s.True(dErrors.Retryable(err))
				contended.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(writers), succeeded.Load()+contended.Load())

	var active int
	err := s.postgres.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM documents
		WHERE tenant_id = $1 AND owner_id = $2 AND doc_type = 'BANK_STATEMENT' AND is_active`,
		uuid.UUID(tenant), owner.ID).Scan(&active)
	s.Require().NoError(err)
	s.Equal(1, active)
}

func (s *PostgresRegistrySuite) TestSupersedeAcrossStagedUpload() {
	ctx := testutil.Context(testutil.FixedTime)
	req := service.ActivateRequest{
		Tenant: id.TenantID(uuid.New()), Owner: id.CompanyOwner(uuid.New()), DocType: models.DocRFCCertificate, File: s.file(),
	}
	active, err := s.service.Activate(ctx, req)
	s.Require().NoError(err)
	req.File = s.file()
	staged, err := s.service.Stage(ctx, req)
	s.Require().NoError(err)

	s.Require().NoError(s.service.Supersede(ctx, req.Tenant, active.ID, staged.ID, models.ReasonUpdated))

	chain, err := s.service.Chain(ctx, req.Tenant, active.ID)
	s.Require().NoError(err)
	s.Require().Len(chain, 2)
	s.Equal(staged.ID, chain[1].ID)
	s.True(chain[1].IsActive)
}

// Duplicate active rows from before the index existed must be cleaned up
// before the index can be created.
func (s *PostgresRegistrySuite) TestReconcileOrdering() {
	ctx := context.Background()
	_, err := s.postgres.DB.ExecContext(ctx, `DROP INDEX IF EXISTS `+store.ActiveIndexName)
	s.Require().NoError(err)

	tenant := id.TenantID(uuid.New())
	owner := id.PersonOwner(uuid.New())
	var ids []id.DocumentID
	for i := 0; i < 3; i++ {
		created := testutil.FixedTime.Add(time.Duration(i) * time.Hour)
		doc := &models.Document{
			ID: id.NewDocumentID(), Tenant: tenant, Owner: owner, DocType: models.DocSelfie, File: s.file(),
			IsActive: true, ValidFrom: created, Status: models.StatusPending, CreatedAt: created, UpdatedAt: created,
		}
		s.Require().NoError(s.store.Insert(ctx, doc))
		ids = append(ids, doc.ID)
	}

	s.ErrorIs(s.store.InstallActiveConstraint(ctx), sentinel.ErrUniqueViolation)

	report, err := service.NewReconciler(s.store, s.runner, nil).Run(testutil.Context(testutil.FixedTime.Add(24*time.Hour)))
	s.Require().NoError(err)
	s.ElementsMatch(ids[:2], report.Retired)

	installed, err := s.store.ActiveConstraintInstalled(ctx)
	s.Require().NoError(err)
	s.True(installed)

	survivor, err := s.service.GetActive(ctx, tenant, owner, models.DocSelfie)
	s.Require().NoError(err)
	s.Equal(ids[2], survivor.ID)
}
