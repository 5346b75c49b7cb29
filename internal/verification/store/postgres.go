package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"lendus/internal/platform/postgres"
	"lendus/internal/verification/models"
	id "lendus/pkg/domain"
	"lendus/pkg/platform/sentinel"
	"lendus/pkg/platform/tx"
)

// PostgresStore persists the ledger in verification_records. Rows are only
// ever inserted, except for resolving an open PENDING row.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `
	id, tenant_id, owner_kind, owner_id, field_name, field_value, method, status,
	rejection_reason, corrected_at, correction_history, verification_data, confidence,
	created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) Latest(ctx context.Context, key models.FieldKey, forUpdate bool) (*models.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM verification_records
		WHERE tenant_id = $1 AND owner_kind = $2 AND owner_id = $3 AND field_name = $4
		ORDER BY seq DESC
		LIMIT 1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query,
		uuid.UUID(key.Tenant), string(key.Owner.Kind), key.Owner.ID, key.FieldName)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, postgres.Classify("find latest verification", err)
	}
	return rec, nil
}

func (s *PostgresStore) Append(ctx context.Context, rec *models.Record) error {
	history, err := encodeHistory(rec.CorrectionHistory)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO verification_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err = tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(rec.ID),
		uuid.UUID(rec.Tenant),
		string(rec.Owner.Kind),
		rec.Owner.ID,
		rec.FieldName,
		rec.FieldValue,
		string(rec.Method),
		string(rec.Status),
		rec.RejectionReason,
		rec.CorrectedAt,
		history,
		nullableJSON(rec.VerificationData),
		rec.Confidence,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	return postgres.Classify("insert verification", err)
}

func (s *PostgresStore) Resolve(ctx context.Context, rec *models.Record) error {
	query := `
		UPDATE verification_records
		SET method = $3, status = $4, rejection_reason = $5, verification_data = $6,
		    confidence = $7, updated_at = $8
		WHERE tenant_id = $1 AND id = $2 AND status = 'PENDING'`
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(rec.Tenant),
		uuid.UUID(rec.ID),
		string(rec.Method),
		string(rec.Status),
		rec.RejectionReason,
		nullableJSON(rec.VerificationData),
		rec.Confidence,
		rec.UpdatedAt,
	)
	if err != nil {
		return postgres.Classify("resolve verification", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve verification: rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, key models.FieldKey) ([]*models.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM verification_records
		WHERE tenant_id = $1 AND owner_kind = $2 AND owner_id = $3 AND field_name = $4
		ORDER BY seq`
	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx, query,
		uuid.UUID(key.Tenant), string(key.Owner.Kind), key.Owner.ID, key.FieldName)
	if err != nil {
		return nil, postgres.Classify("list verifications", err)
	}
	defer rows.Close()

	out := []*models.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verifications: %w", err)
	}
	return out, nil
}

func encodeHistory(history []models.Correction) ([]byte, error) {
	if history == nil {
		history = []models.Correction{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("encode correction history: %w", err)
	}
	return raw, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func scanRecord(row scanner) (*models.Record, error) {
	var (
		rec              models.Record
		recID, tenantID  uuid.UUID
		ownerID          uuid.UUID
		ownerKind        string
		method, status   string
		history, payload []byte
	)
	err := row.Scan(
		&recID,
		&tenantID,
		&ownerKind,
		&ownerID,
		&rec.FieldName,
		&rec.FieldValue,
		&method,
		&status,
		&rec.RejectionReason,
		&rec.CorrectedAt,
		&history,
		&payload,
		&rec.Confidence,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ID = id.VerificationID(recID)
	rec.Tenant = id.TenantID(tenantID)
	rec.Owner = id.OwnerRef{Kind: id.OwnerKind(ownerKind), ID: ownerID}
	rec.Method = models.Method(method)
	rec.Status = models.Status(status)
	if len(history) > 0 {
		if err := json.Unmarshal(history, &rec.CorrectionHistory); err != nil {
			return nil, fmt.Errorf("decode correction history: %w", err)
		}
	}
	if len(payload) > 0 {
		rec.VerificationData = json.RawMessage(payload)
	}
	return &rec, nil
}
