package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lendus/internal/platform/postgres"
	"lendus/internal/versionchain/models"
	id "lendus/pkg/domain"
	"lendus/pkg/platform/sentinel"
	"lendus/pkg/platform/tx"
)

// PostgresStore persists version chains in the version_records table. The
// partial unique index uniq_version_records_current backs the one-current rule.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `
	id, tenant_id, owner_kind, owner_id, record_type, slot, payload, is_current,
	previous_version_id, valid_from, valid_until, status, replaced_at,
	replacement_reason, lock_version, created_at, deleted_at`

func (s *PostgresStore) FindCurrent(ctx context.Context, key models.ChainKey, forUpdate bool) (*models.VersionedRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM version_records
		WHERE tenant_id = $1 AND owner_kind = $2 AND owner_id = $3 AND record_type = $4
		  AND slot = $5 AND is_current AND deleted_at IS NULL`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query,
		uuid.UUID(key.Tenant), string(key.Owner.Kind), key.Owner.ID, string(key.Type), key.Slot)
	return scanRecord(row, "find current record")
}

func (s *PostgresStore) FindLatest(ctx context.Context, key models.ChainKey) (*models.VersionedRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM version_records
		WHERE tenant_id = $1 AND owner_kind = $2 AND owner_id = $3 AND record_type = $4
		  AND slot = $5 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1`
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query,
		uuid.UUID(key.Tenant), string(key.Owner.Kind), key.Owner.ID, string(key.Type), key.Slot)
	return scanRecord(row, "find latest record")
}

func (s *PostgresStore) FindByID(ctx context.Context, tenant id.TenantID, recordID id.RecordID) (*models.VersionedRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM version_records
		WHERE tenant_id = $1 AND id = $2`
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(tenant), uuid.UUID(recordID))
	return scanRecord(row, "find record")
}

func (s *PostgresStore) ListCurrent(ctx context.Context, tenant id.TenantID, owner id.OwnerRef) ([]*models.VersionedRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM version_records
		WHERE tenant_id = $1 AND owner_kind = $2 AND owner_id = $3
		  AND is_current AND deleted_at IS NULL
		ORDER BY record_type, slot`
	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, uuid.UUID(tenant), string(owner.Kind), owner.ID)
	if err != nil {
		return nil, postgres.Classify("list current records", err)
	}
	defer rows.Close()

	var out []*models.VersionedRecord
	for rows.Next() {
		rec, err := scanRecord(rows, "scan current record")
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate current records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec *models.VersionedRecord) error {
	payload, err := models.EncodePayload(rec.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	var previous *uuid.UUID
	if rec.PreviousVersionID != nil {
		p := uuid.UUID(*rec.PreviousVersionID)
		previous = &p
	}
	var reason *string
	if rec.ReplacementReason != "" {
		r := string(rec.ReplacementReason)
		reason = &r
	}

	query := `
		INSERT INTO version_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err = tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(rec.ID),
		uuid.UUID(rec.Tenant),
		string(rec.Owner.Kind),
		rec.Owner.ID,
		string(rec.Type),
		rec.Slot,
		payload,
		rec.IsCurrent,
		previous,
		rec.ValidFrom,
		rec.ValidUntil,
		string(rec.Status),
		rec.ReplacedAt,
		reason,
		rec.LockVersion,
		rec.CreatedAt,
		rec.DeletedAt,
	)
	return postgres.Classify("insert record", err)
}

func (s *PostgresStore) Retire(ctx context.Context, tenant id.TenantID, recordID id.RecordID, expectedLock int, at time.Time, reason models.ReplacementReason) error {
	query := `
		UPDATE version_records
		SET is_current = FALSE, replaced_at = $3, valid_until = $3, replacement_reason = $4,
		    status = $5, lock_version = lock_version + 1
		WHERE tenant_id = $1 AND id = $2 AND lock_version = $6
		  AND is_current AND deleted_at IS NULL`
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(tenant), uuid.UUID(recordID), at, string(reason), string(models.StatusSuperseded), expectedLock)
	if err != nil {
		return postgres.Classify("retire record", err)
	}
	return expectOneRow(res, "retire record", sentinel.ErrConflict)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, tenant id.TenantID, recordID id.RecordID, expectedLock int, status models.Status) error {
	query := `
		UPDATE version_records
		SET status = $3, lock_version = lock_version + 1
		WHERE tenant_id = $1 AND id = $2 AND lock_version = $4
		  AND is_current AND deleted_at IS NULL`
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(tenant), uuid.UUID(recordID), string(status), expectedLock)
	if err != nil {
		return postgres.Classify("update record status", err)
	}
	return expectOneRow(res, "update record status", sentinel.ErrConflict)
}

func (s *PostgresStore) SoftDelete(ctx context.Context, tenant id.TenantID, recordID id.RecordID, at time.Time) error {
	query := `
		UPDATE version_records
		SET deleted_at = COALESCE(deleted_at, $3), is_current = FALSE, lock_version = lock_version + 1
		WHERE tenant_id = $1 AND id = $2`
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query, uuid.UUID(tenant), uuid.UUID(recordID), at)
	if err != nil {
		return postgres.Classify("soft delete record", err)
	}
	return expectOneRow(res, "soft delete record", sentinel.ErrNotFound)
}

func expectOneRow(res sql.Result, op string, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return none
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, op string) (*models.VersionedRecord, error) {
	var (
		rec        models.VersionedRecord
		recID      uuid.UUID
		tenantID   uuid.UUID
		ownerKind  string
		ownerID    uuid.UUID
		recordType string
		payload    []byte
		previous   *uuid.UUID
		status     string
		reason     sql.NullString
	)
	err := row.Scan(
		&recID,
		&tenantID,
		&ownerKind,
		&ownerID,
		&recordType,
		&rec.Slot,
		&payload,
		&rec.IsCurrent,
		&previous,
		&rec.ValidFrom,
		&rec.ValidUntil,
		&status,
		&rec.ReplacedAt,
		&reason,
		&rec.LockVersion,
		&rec.CreatedAt,
		&rec.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, postgres.Classify(op, err)
	}

	rec.ID = id.RecordID(recID)
	rec.Tenant = id.TenantID(tenantID)
	rec.Owner = id.OwnerRef{Kind: id.OwnerKind(ownerKind), ID: ownerID}
	rec.Type = models.RecordType(recordType)
	rec.Status = models.Status(status)
	rec.ReplacementReason = models.ReplacementReason(reason.String)
	if previous != nil {
		p := id.RecordID(*previous)
		rec.PreviousVersionID = &p
	}
	rec.Payload, err = models.DecodePayload(rec.Type, payload)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
