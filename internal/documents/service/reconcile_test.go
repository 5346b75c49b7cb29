package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendus/internal/documents/models"
	"lendus/internal/documents/store"
	id "lendus/pkg/domain"
	dErrors "lendus/pkg/domain-errors"
	"lendus/pkg/platform/sentinel"
	"lendus/pkg/platform/tx"
	"lendus/pkg/testutil"
)

func legacyDocument(tenant id.TenantID, owner id.OwnerRef, docType models.DocType, age time.Duration) *models.Document {
	created := testutil.FixedTime.Add(-age)
	return &models.Document{
		ID:        id.NewDocumentID(),
		Tenant:    tenant,
		Owner:     owner,
		DocType:   docType,
		File:      models.File{Path: "s3://legacy/" + uuid.NewString(), Checksum: "md5:00", SizeBytes: 1},
		IsActive:  true,
		ValidFrom: created,
		Status:    models.StatusApproved,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func seedLegacy(t *testing.T, st *store.InMemoryStore, docs ...*models.Document) {
	t.Helper()
	for _, doc := range docs {
		require.NoError(t, st.Insert(context.Background(), doc))
	}
}

func TestReconciler_KeepsNewestPerSlot(t *testing.T) {
	st := store.NewInMemory(store.WithoutActiveConstraint())
	tenant := id.TenantID(uuid.New())
	owner := id.PersonOwner(uuid.New())

	oldest := legacyDocument(tenant, owner, models.DocBankStatement, 72*time.Hour)
	middle := legacyDocument(tenant, owner, models.DocBankStatement, 48*time.Hour)
	newest := legacyDocument(tenant, owner, models.DocBankStatement, 24*time.Hour)
	single := legacyDocument(tenant, owner, models.DocSelfie, 24*time.Hour)
	seedLegacy(t, st, oldest, middle, newest, single)

	ctx := testutil.Context(testutil.FixedTime)
	report, err := NewReconciler(st, tx.NewShardedRunner(), nil).Run(ctx)
	require.NoError(t, err)
	assert.False(t, report.AlreadyInstalled)
	assert.Equal(t, []models.Key{newest.Key()}, report.Keys)
	assert.ElementsMatch(t, []id.DocumentID{oldest.ID, middle.ID}, report.Retired)

	for _, docID := range []id.DocumentID{oldest.ID, middle.ID} {
		doc, err := st.FindByID(ctx, tenant, docID, false)
		require.NoError(t, err)
		assert.False(t, doc.IsActive)
		assert.Equal(t, models.StatusSuperseded, doc.Status)
		assert.Equal(t, models.ReasonReconciled, doc.ReplacementReason)
		require.NotNil(t, doc.SupersededByID)
		assert.Equal(t, newest.ID, *doc.SupersededByID)
		require.NotNil(t, doc.ValidTo)
		assert.True(t, doc.ValidTo.Equal(testutil.FixedTime))
	}

	installed, err := st.ActiveConstraintInstalled(ctx)
	require.NoError(t, err)
	assert.True(t, installed)

	svc := New(st, tx.NewShardedRunner())
	chain, err := svc.Chain(ctx, tenant, oldest.ID)
	require.NoError(t, err)
	assert.Equal(t, newest.ID, chain[len(chain)-1].ID)

	again, err := NewReconciler(st, tx.NewShardedRunner(), nil).Run(ctx)
	require.NoError(t, err)
	assert.True(t, again.AlreadyInstalled)
	assert.Empty(t, again.Retired)
}

func TestReconciler_ConstraintRequiresCleanup(t *testing.T) {
	sc := testutil.NewScenario(t)
	sc.Given("two active RFC certificates in one slot", func(sc *testutil.Scenario) {
		st := store.NewInMemory(store.WithoutActiveConstraint())
		tenant := id.TenantID(uuid.New())
		owner := id.CompanyOwner(uuid.New())
		seedLegacy(sc.T(), st,
			legacyDocument(tenant, owner, models.DocRFCCertificate, time.Hour),
			legacyDocument(tenant, owner, models.DocRFCCertificate, 2*time.Hour),
		)

		sc.When("the constraint is installed before cleanup", func(sc *testutil.Scenario) {
			err := st.InstallActiveConstraint(context.Background())

			sc.Then("installation fails as a unique violation", func(sc *testutil.Scenario) {
				require.ErrorIs(sc.T(), err, sentinel.ErrUniqueViolation)
			})
		})

		sc.When("the reconciler runs", func(sc *testutil.Scenario) {
			report, err := NewReconciler(st, tx.NewShardedRunner(), nil).Run(sc.Ctx())
			require.NoError(sc.T(), err)

			sc.Then("the older certificate is retired and a second install is a no-op", func(sc *testutil.Scenario) {
				assert.Len(sc.T(), report.Retired, 1)
				require.NoError(sc.T(), st.InstallActiveConstraint(context.Background()))
			})

			sc.Then("a later activation replaces the survivor", func(sc *testutil.Scenario) {
				svc := New(st, tx.NewShardedRunner())
				doc, err := svc.Activate(sc.Ctx(), ActivateRequest{
					Tenant: tenant, Owner: owner, DocType: models.DocRFCCertificate,
					File: models.File{Path: "s3://docs/rfc-2026", Checksum: "sha256:2026", SizeBytes: 10},
				})
				require.NoError(sc.T(), err)
				active, err := svc.GetActive(sc.Ctx(), tenant, owner, models.DocRFCCertificate)
				require.NoError(sc.T(), err)
				assert.Equal(sc.T(), doc.ID, active.ID)
			})
		})
	})
}

type raceStore struct {
	*store.InMemoryStore
	late *models.Document
}

// InstallActiveConstraint simulates an activation that slipped in between
// cleanup and index creation.
func (r *raceStore) InstallActiveConstraint(ctx context.Context) error {
	if r.late != nil {
		late := r.late
		r.late = nil
		if err := r.InMemoryStore.Insert(ctx, late); err != nil {
			return err
		}
	}
	return r.InMemoryStore.InstallActiveConstraint(ctx)
}

func TestReconciler_DuplicateAfterCleanup(t *testing.T) {
	st := store.NewInMemory(store.WithoutActiveConstraint())
	tenant := id.TenantID(uuid.New())
	owner := id.PersonOwner(uuid.New())
	seedLegacy(t, st, legacyDocument(tenant, owner, models.DocPassport, time.Hour))

	racy := &raceStore{InMemoryStore: st, late: legacyDocument(tenant, owner, models.DocPassport, 0)}
	_, err := NewReconciler(racy, tx.NewShardedRunner(), nil).Run(testutil.Context(testutil.FixedTime))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConstraintViolation), "got %v", err)

	installed, err := st.ActiveConstraintInstalled(context.Background())
	require.NoError(t, err)
	assert.False(t, installed)
}
