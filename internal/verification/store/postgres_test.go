package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendus/internal/verification/models"
	"lendus/pkg/platform/sentinel"
	"lendus/pkg/testutil"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

var recordColumnNames = []string{
	"id", "tenant_id", "owner_kind", "owner_id", "field_name", "field_value", "method", "status",
	"rejection_reason", "corrected_at", "correction_history", "verification_data", "confidence",
	"created_at", "updated_at",
}

func TestPostgresStore_LatestNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	key := testKey()
	mock.ExpectQuery(`(?s)FROM verification_records.*ORDER BY seq DESC.*LIMIT 1 FOR UPDATE`).
		WithArgs(key.Tenant.String(), "person", key.Owner.ID.String(), "rfc").
		WillReturnError(sql.ErrNoRows)

	_, err := s.Latest(context.Background(), key, true)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListHistoryDecodesCorrections(t *testing.T) {
	s, mock := newMockStore(t)
	key := testKey()
	first := newRecord(key, models.StatusRejected)
	second := newRecord(key, models.StatusCorrected)
	corrected := testutil.FixedTime.Add(time.Hour)

	rows := sqlmock.NewRows(recordColumnNames).
		AddRow(first.ID.String(), key.Tenant.String(), "person", key.Owner.ID.String(), "rfc", "AAA", "MANUAL", "REJECTED",
			"typo", nil, []byte(`[]`), nil, nil, testutil.FixedTime, testutil.FixedTime).
		AddRow(second.ID.String(), key.Tenant.String(), "person", key.Owner.ID.String(), "rfc", "AAB", "MANUAL", "CORRECTED",
			"", corrected, []byte(`[{"old_value":"AAA","new_value":"AAB","corrected_at":"2026-03-02T11:00:00Z","reason":"typo"}]`),
			[]byte(`{"source":"staff"}`), 0.5, corrected, corrected)
	mock.ExpectQuery(`(?s)FROM verification_records.*ORDER BY seq`).WillReturnRows(rows)

	history, err := s.ListHistory(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first.ID, history[0].ID)
	assert.Empty(t, history[0].CorrectionHistory)
	assert.Nil(t, history[0].Confidence)
	assert.Equal(t, []models.Correction{{OldValue: "AAA", NewValue: "AAB", CorrectedAt: corrected, Reason: "typo"}}, history[1].CorrectionHistory)
	require.NotNil(t, history[1].Confidence)
	assert.InDelta(t, 0.5, *history[1].Confidence, 1e-9)
	assert.JSONEq(t, `{"source":"staff"}`, string(history[1].VerificationData))
}

func TestPostgresStore_AppendWritesEmptyHistoryArray(t *testing.T) {
	s, mock := newMockStore(t)
	rec := newRecord(testKey(), models.StatusVerified)

	mock.ExpectExec(`INSERT INTO verification_records`).
		WithArgs(rec.ID.String(), rec.Tenant.String(), "person", rec.Owner.ID.String(), "rfc", "value", "MANUAL", "VERIFIED",
			"", nil, []byte(`[]`), nil, nil, testutil.FixedTime, testutil.FixedTime).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Append(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResolveRequiresPending(t *testing.T) {
	s, mock := newMockStore(t)
	rec := newRecord(testKey(), models.StatusVerified)

	mock.ExpectExec(`(?s)UPDATE verification_records.*status = 'PENDING'`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.Resolve(context.Background(), rec), sentinel.ErrConflict)
}
