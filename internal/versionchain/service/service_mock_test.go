package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"lendus/internal/versionchain/models"
	"lendus/internal/versionchain/service/mocks"
	id "lendus/pkg/domain"
	dErrors "lendus/pkg/domain-errors"
	"lendus/pkg/platform/retry"
	"lendus/pkg/platform/sentinel"
	"lendus/pkg/platform/tx"
	"lendus/pkg/testutil"
)

type fixture struct {
	store   *mocks.MockStore
	service *Service
	tenant  id.TenantID
	owner   id.OwnerRef
}

func newFixture(t *testing.T) fixture {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	return fixture{
		store:   st,
		service: New(st, tx.NewShardedRunner(), WithRetryPolicy(retry.Policy{MaxAttempts: 3})),
		tenant:  id.TenantID(uuid.New()),
		owner:   id.PersonOwner(uuid.New()),
	}
}

func (f fixture) request() PutRequest {
	return PutRequest{
		Tenant:  f.tenant,
		Owner:   f.owner,
		Type:    models.TypeHome,
		Payload: models.AddressPayload{Street: "Madero 1", PostalCode: "06000"},
	}
}

func (f fixture) current() *models.VersionedRecord {
	return models.NewCurrent(models.ChainKey{Tenant: f.tenant, Owner: f.owner, Type: models.TypeHome},
		models.AddressPayload{Street: "Madero 0", PostalCode: "06000"}, nil, testutil.FixedTime)
}

func TestPutCurrentVersion_RetriesContention(t *testing.T) {
	ctx := testutil.Context(testutil.FixedTime)

	t.Run("stale lock version is retried after re-reading", func(t *testing.T) {
		f := newFixture(t)
		stale := f.current()
		fresh := stale.Clone()
		fresh.LockVersion = 2

		gomock.InOrder(
			f.store.EXPECT().FindCurrent(gomock.Any(), gomock.Any(), true).Return(stale, nil),
			f.store.EXPECT().Retire(gomock.Any(), f.tenant, stale.ID, 1, gomock.Any(), models.ReasonCorrected).Return(sentinel.ErrConflict),
			f.store.EXPECT().FindCurrent(gomock.Any(), gomock.Any(), true).Return(fresh, nil),
			f.store.EXPECT().Retire(gomock.Any(), f.tenant, fresh.ID, 2, gomock.Any(), models.ReasonCorrected).Return(nil),
			f.store.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, rec *models.VersionedRecord) error {
					require.NotNil(t, rec.PreviousVersionID)
					assert.Equal(t, fresh.ID, *rec.PreviousVersionID)
					assert.True(t, rec.IsCurrent)
					return nil
				}),
		)

		_, err := f.service.PutCurrentVersion(ctx, f.request())
		require.NoError(t, err)
	})

	t.Run("exhausted conflicts surface as concurrent modification", func(t *testing.T) {
		f := newFixture(t)
		cur := f.current()
		f.store.EXPECT().FindCurrent(gomock.Any(), gomock.Any(), true).Return(cur, nil).Times(3)
		f.store.EXPECT().Retire(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(sentinel.ErrConflict).Times(3)

		_, err := f.service.PutCurrentVersion(ctx, f.request())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConcurrentModification), "got %v", err)
		assert.True(t, dErrors.Retryable(err))
	})

	t.Run("insert losing to a concurrent first version is contention", func(t *testing.T) {
		f := newFixture(t)
		core, logs := observer.New(zapcore.InfoLevel)
		f.service = New(f.store, tx.NewShardedRunner(),
			WithRetryPolicy(retry.Policy{MaxAttempts: 3}), WithLogger(zap.New(core)))
		f.store.EXPECT().FindCurrent(gomock.Any(), gomock.Any(), true).Return(nil, sentinel.ErrNotFound).Times(3)
		f.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(sentinel.ErrUniqueViolation).Times(3)

		_, err := f.service.PutCurrentVersion(ctx, f.request())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConcurrentModification), "got %v", err)
		assert.True(t, dErrors.Retryable(err))
		assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len(), "ordinary contention is not logged as an error")
		assert.Equal(t, 2, logs.FilterMessage("concurrent version write; retrying").Len())
	})

	t.Run("unique violation after retiring the current version is a constraint violation", func(t *testing.T) {
		f := newFixture(t)
		core, logs := observer.New(zapcore.InfoLevel)
		f.service = New(f.store, tx.NewShardedRunner(),
			WithRetryPolicy(retry.Policy{MaxAttempts: 3}), WithLogger(zap.New(core)))
		cur := f.current()
		f.store.EXPECT().FindCurrent(gomock.Any(), gomock.Any(), true).Return(cur, nil).Times(3)
		f.store.EXPECT().Retire(gomock.Any(), f.tenant, cur.ID, 1, gomock.Any(), gomock.Any()).Return(nil).Times(3)
		f.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(sentinel.ErrUniqueViolation).Times(3)

		_, err := f.service.PutCurrentVersion(ctx, f.request())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConstraintViolation), "got %v", err)
		assert.False(t, dErrors.Retryable(err))
		assert.Equal(t, 3, logs.FilterLevelExact(zapcore.ErrorLevel).Len(), "two retries and the final report")
	})

	t.Run("a losing insert succeeds once the winner is visible", func(t *testing.T) {
		f := newFixture(t)
		winner := f.current()
		gomock.InOrder(
			f.store.EXPECT().FindCurrent(gomock.Any(), gomock.Any(), true).Return(nil, sentinel.ErrNotFound),
			f.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(sentinel.ErrUniqueViolation),
			f.store.EXPECT().FindCurrent(gomock.Any(), gomock.Any(), true).Return(winner, nil),
			f.store.EXPECT().Retire(gomock.Any(), f.tenant, winner.ID, 1, gomock.Any(), gomock.Any()).Return(nil),
			f.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil),
		)

		_, err := f.service.PutCurrentVersion(ctx, f.request())
		require.NoError(t, err)
	})
}

func TestGetHistory_DetectsBrokenChains(t *testing.T) {
	ctx := context.Background()

	t.Run("cycle", func(t *testing.T) {
		f := newFixture(t)
		head := f.current()
		older := f.current()
		older.IsCurrent = false
		head.PreviousVersionID = &older.ID
		older.PreviousVersionID = &head.ID

		f.store.EXPECT().FindCurrent(gomock.Any(), gomock.Any(), false).Return(head, nil)
		f.store.EXPECT().FindByID(gomock.Any(), f.tenant, older.ID).Return(older, nil)

		_, err := f.service.GetHistory(ctx, f.tenant, f.owner, models.TypeHome)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation), "got %v", err)
	})

	t.Run("dangling link", func(t *testing.T) {
		f := newFixture(t)
		head := f.current()
		missing := id.NewRecordID()
		head.PreviousVersionID = &missing

		f.store.EXPECT().FindCurrent(gomock.Any(), gomock.Any(), false).Return(head, nil)
		f.store.EXPECT().FindByID(gomock.Any(), f.tenant, missing).Return(nil, sentinel.ErrNotFound)

		_, err := f.service.GetHistory(ctx, f.tenant, f.owner, models.TypeHome)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("link into another chain", func(t *testing.T) {
		f := newFixture(t)
		head := f.current()
		foreign := models.NewCurrent(models.ChainKey{Tenant: f.tenant, Owner: f.owner, Type: models.TypeWork},
			models.AddressPayload{Street: "x", PostalCode: "1"}, nil, testutil.FixedTime)
		foreign.IsCurrent = false
		head.PreviousVersionID = &foreign.ID

		f.store.EXPECT().FindCurrent(gomock.Any(), gomock.Any(), false).Return(head, nil)
		f.store.EXPECT().FindByID(gomock.Any(), f.tenant, foreign.ID).Return(foreign, nil)

		_, err := f.service.GetHistory(ctx, f.tenant, f.owner, models.TypeHome)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("link to a current version", func(t *testing.T) {
		f := newFixture(t)
		head := f.current()
		stillCurrent := f.current()
		head.PreviousVersionID = &stillCurrent.ID

		f.store.EXPECT().FindCurrent(gomock.Any(), gomock.Any(), false).Return(head, nil)
		f.store.EXPECT().FindByID(gomock.Any(), f.tenant, stillCurrent.ID).Return(stillCurrent, nil)

		_, err := f.service.GetHistory(ctx, f.tenant, f.owner, models.TypeHome)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}
