package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lendus/internal/application/models"
	"lendus/internal/platform/postgres"
	id "lendus/pkg/domain"
	"lendus/pkg/platform/sentinel"
	"lendus/pkg/platform/tx"
)

// PostgresStore persists applications and application_status_history. The
// schema rejects UPDATE/DELETE on history rows and any rewrite of a stored
// snapshot, so the guarantees hold even for writers outside this package.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const applicationColumns = `
	id, tenant_id, applicant_kind, applicant_id, status, requested_amount, term_months,
	snapshot_references, snapshot_data, snapshot_captured_at, submitted_at, lock_version,
	created_at, updated_at`

func (s *PostgresStore) Insert(ctx context.Context, app *models.Application) error {
	query := `
		INSERT INTO applications (id, tenant_id, applicant_kind, applicant_id, status,
			requested_amount, term_months, lock_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(app.ID),
		uuid.UUID(app.Tenant),
		string(app.Applicant.Kind),
		app.Applicant.ID,
		string(app.Status),
		app.RequestedAmount,
		app.TermMonths,
		app.LockVersion,
		app.CreatedAt,
		app.UpdatedAt,
	)
	return postgres.Classify("insert application", err)
}

func (s *PostgresStore) FindByID(ctx context.Context, tenant id.TenantID, appID id.ApplicationID, forUpdate bool) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + `
		FROM applications
		WHERE tenant_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(tenant), uuid.UUID(appID))
	return scanApplication(row)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, tenant id.TenantID, appID id.ApplicationID, expectedLock int, status models.Status, at time.Time, submittedAt *time.Time) error {
	query := `
		UPDATE applications
		SET status = $4, updated_at = $5, submitted_at = COALESCE($6, submitted_at),
		    lock_version = lock_version + 1
		WHERE tenant_id = $1 AND id = $2 AND lock_version = $3`
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(tenant), uuid.UUID(appID), expectedLock, string(status), at, submittedAt)
	if err != nil {
		return postgres.Classify("update application status", err)
	}
	return expectOneRow(res, "update application status", sentinel.ErrConflict)
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, tenant id.TenantID, appID id.ApplicationID, snapshot *models.Snapshot) error {
	refs, err := json.Marshal(snapshot.References)
	if err != nil {
		return fmt.Errorf("encode snapshot references: %w", err)
	}
	data, err := json.Marshal(snapshot.Data)
	if err != nil {
		return fmt.Errorf("encode snapshot data: %w", err)
	}
	query := `
		UPDATE applications
		SET snapshot_references = $3, snapshot_data = $4, snapshot_captured_at = $5
		WHERE tenant_id = $1 AND id = $2 AND snapshot_references IS NULL`
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(tenant), uuid.UUID(appID), refs, data, snapshot.CapturedAt)
	if err != nil {
		return postgres.Classify("save application snapshot", err)
	}
	return expectOneRow(res, "save application snapshot", sentinel.ErrInvalidState)
}

func (s *PostgresStore) AppendHistory(ctx context.Context, entry models.StatusHistoryEntry) error {
	query := `
		INSERT INTO application_status_history (id, application_id, tenant_id, from_status, to_status,
			changed_by, changed_by_kind, notes, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		uuid.UUID(entry.ApplicationID),
		uuid.UUID(entry.Tenant),
		string(entry.From),
		string(entry.To),
		uuid.UUID(entry.ChangedBy),
		string(entry.ChangedByKind),
		entry.Notes,
		entry.At,
	)
	return postgres.Classify("append status history", err)
}

func (s *PostgresStore) ListHistory(ctx context.Context, tenant id.TenantID, appID id.ApplicationID) ([]models.StatusHistoryEntry, error) {
	query := `
		SELECT id, application_id, tenant_id, from_status, to_status, changed_by, changed_by_kind, notes, changed_at
		FROM application_status_history
		WHERE tenant_id = $1 AND application_id = $2
		ORDER BY seq`
	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, uuid.UUID(tenant), uuid.UUID(appID))
	if err != nil {
		return nil, postgres.Classify("list status history", err)
	}
	defer rows.Close()

	var out []models.StatusHistoryEntry
	for rows.Next() {
		var (
			entry                  models.StatusHistoryEntry
			entryID, app, tenantID uuid.UUID
			changedBy              uuid.UUID
			from, to, changedKind  string
		)
		if err := rows.Scan(&entryID, &app, &tenantID, &from, &to, &changedBy, &changedKind, &entry.Notes, &entry.At); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		entry.ID = id.HistoryEntryID(entryID)
		entry.ApplicationID = id.ApplicationID(app)
		entry.Tenant = id.TenantID(tenantID)
		entry.From = models.Status(from)
		entry.To = models.Status(to)
		entry.ChangedBy = id.ActorID(changedBy)
		entry.ChangedByKind = models.ActorKind(changedKind)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history: %w", err)
	}
	return out, nil
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

func scanApplication(row *sql.Row) (*models.Application, error) {
	var (
		app                   models.Application
		appID, tenantID       uuid.UUID
		applicantKind, status string
		applicantID           uuid.UUID
		refs, data            []byte
		capturedAt            *time.Time
	)
	err := row.Scan(
		&appID,
		&tenantID,
		&applicantKind,
		&applicantID,
		&status,
		&app.RequestedAmount,
		&app.TermMonths,
		&refs,
		&data,
		&capturedAt,
		&app.SubmittedAt,
		&app.LockVersion,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, postgres.Classify("find application", err)
	}

	app.ID = id.ApplicationID(appID)
	app.Tenant = id.TenantID(tenantID)
	app.Applicant = id.OwnerRef{Kind: id.OwnerKind(applicantKind), ID: applicantID}
	app.Status = models.Status(status)
	if len(refs) > 0 {
		snapshot := &models.Snapshot{}
		if err := json.Unmarshal(refs, &snapshot.References); err != nil {
			return nil, fmt.Errorf("decode snapshot references: %w", err)
		}
		if err := json.Unmarshal(data, &snapshot.Data); err != nil {
			return nil, fmt.Errorf("decode snapshot data: %w", err)
		}
		if capturedAt != nil {
			snapshot.CapturedAt = *capturedAt
		}
		app.Snapshot = snapshot
	}
	return &app, nil
}
