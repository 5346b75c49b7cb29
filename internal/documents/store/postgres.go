package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"lendus/internal/documents/models"
	"lendus/internal/platform/postgres"
	id "lendus/pkg/domain"
	"lendus/pkg/platform/sentinel"
	"lendus/pkg/platform/tx"
)

// ActiveIndexName is the partial unique index backing the one-active rule.
const ActiveIndexName = "uniq_documents_active"

// PostgresStore persists documents in the documents table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const documentColumns = `
	id, tenant_id, owner_kind, owner_id, doc_type, file_path, file_checksum,
	file_size_bytes, mime_type, provider_data, is_active, valid_from, valid_to,
	superseded_by_id, status, replacement_reason, created_at, updated_at`

func (s *PostgresStore) FindActive(ctx context.Context, key models.Key, forUpdate bool) (*models.Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE tenant_id = $1 AND owner_kind = $2 AND owner_id = $3 AND doc_type = $4 AND is_active
		ORDER BY created_at DESC
		LIMIT 1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query,
		uuid.UUID(key.Tenant), string(key.Owner.Kind), key.Owner.ID, string(key.DocType))
	return scanDocument(row, "find active document")
}

func (s *PostgresStore) FindByID(ctx context.Context, tenant id.TenantID, docID id.DocumentID, forUpdate bool) (*models.Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE tenant_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(tenant), uuid.UUID(docID))
	return scanDocument(row, "find document")
}

func (s *PostgresStore) ListActive(ctx context.Context, tenant id.TenantID, owner id.OwnerRef) ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE tenant_id = $1 AND owner_kind = $2 AND owner_id = $3 AND is_active
		ORDER BY doc_type`
	return s.query(ctx, "list active documents", query, uuid.UUID(tenant), string(owner.Kind), owner.ID)
}

func (s *PostgresStore) ListActiveByKey(ctx context.Context, key models.Key) ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE tenant_id = $1 AND owner_kind = $2 AND owner_id = $3 AND doc_type = $4 AND is_active
		ORDER BY created_at DESC, id DESC
		FOR UPDATE`
	return s.query(ctx, "list active documents by key", query,
		uuid.UUID(key.Tenant), string(key.Owner.Kind), key.Owner.ID, string(key.DocType))
}

func (s *PostgresStore) DuplicateActiveKeys(ctx context.Context) ([]models.Key, error) {
	query := `
		SELECT tenant_id, owner_kind, owner_id, doc_type
		FROM documents
		WHERE is_active
		GROUP BY tenant_id, owner_kind, owner_id, doc_type
		HAVING count(*) > 1
		ORDER BY tenant_id, owner_kind, owner_id, doc_type`
	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, postgres.Classify("find duplicate active documents", err)
	}
	defer rows.Close()

	var keys []models.Key
	for rows.Next() {
		var (
			tenantID  uuid.UUID
			ownerKind string
			ownerID   uuid.UUID
			docType   string
		)
		if err := rows.Scan(&tenantID, &ownerKind, &ownerID, &docType); err != nil {
			return nil, fmt.Errorf("scan duplicate key: %w", err)
		}
		keys = append(keys, models.Key{
			Tenant:  id.TenantID(tenantID),
			Owner:   id.OwnerRef{Kind: id.OwnerKind(ownerKind), ID: ownerID},
			DocType: models.DocType(docType),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate duplicate keys: %w", err)
	}
	return keys, nil
}

func (s *PostgresStore) ActiveConstraintInstalled(ctx context.Context) (bool, error) {
	var installed bool
	err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE tablename = 'documents' AND indexname = $1)`,
		ActiveIndexName).Scan(&installed)
	if err != nil {
		return false, postgres.Classify("check active constraint", err)
	}
	return installed, nil
}

// InstallActiveConstraint creates the partial unique index. Postgres refuses
// with a unique violation while duplicate active rows remain.
func (s *PostgresStore) InstallActiveConstraint(ctx context.Context) error {
	query := `CREATE UNIQUE INDEX IF NOT EXISTS ` + pq.QuoteIdentifier(ActiveIndexName) + `
		ON documents (tenant_id, owner_kind, owner_id, doc_type)
		WHERE is_active`
	_, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query)
	return postgres.Classify("install active constraint", err)
}

func (s *PostgresStore) Insert(ctx context.Context, doc *models.Document) error {
	var provider []byte
	if doc.ProviderData != nil {
		var err error
		provider, err = json.Marshal(doc.ProviderData)
		if err != nil {
			return fmt.Errorf("encode provider data: %w", err)
		}
	}
	var successor *uuid.UUID
	if doc.SupersededByID != nil {
		v := uuid.UUID(*doc.SupersededByID)
		successor = &v
	}
	var reason *string
	if doc.ReplacementReason != "" {
		v := string(doc.ReplacementReason)
		reason = &v
	}

	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(doc.ID),
		uuid.UUID(doc.Tenant),
		string(doc.Owner.Kind),
		doc.Owner.ID,
		string(doc.DocType),
		doc.File.Path,
		doc.File.Checksum,
		doc.File.SizeBytes,
		doc.File.MimeType,
		provider,
		doc.IsActive,
		doc.ValidFrom,
		doc.ValidTo,
		successor,
		string(doc.Status),
		reason,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	return postgres.Classify("insert document", err)
}

func (s *PostgresStore) Retire(ctx context.Context, tenant id.TenantID, docID id.DocumentID, at time.Time, successor id.DocumentID, reason models.ReplacementReason) error {
	query := `
		UPDATE documents
		SET is_active = FALSE, valid_to = $3, superseded_by_id = $4, status = $5,
		    replacement_reason = $6, updated_at = $3
		WHERE tenant_id = $1 AND id = $2 AND is_active`
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(tenant), uuid.UUID(docID), at, uuid.UUID(successor), string(models.StatusSuperseded), string(reason))
	if err != nil {
		return postgres.Classify("retire document", err)
	}
	return expectOneRow(res, "retire document", sentinel.ErrConflict)
}

func (s *PostgresStore) MakeActive(ctx context.Context, tenant id.TenantID, docID id.DocumentID, at time.Time) error {
	query := `
		UPDATE documents
		SET is_active = TRUE, valid_from = $3, valid_to = NULL, updated_at = $3
		WHERE tenant_id = $1 AND id = $2`
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query, uuid.UUID(tenant), uuid.UUID(docID), at)
	if err != nil {
		return postgres.Classify("activate document", err)
	}
	return expectOneRow(res, "activate document", sentinel.ErrNotFound)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, tenant id.TenantID, docID id.DocumentID, from, to models.Status, at time.Time) error {
	query := `
		UPDATE documents
		SET status = $4, updated_at = $5
		WHERE tenant_id = $1 AND id = $2 AND status = $3`
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(tenant), uuid.UUID(docID), string(from), string(to), at)
	if err != nil {
		return postgres.Classify("update document status", err)
	}
	return expectOneRow(res, "update document status", sentinel.ErrConflict)
}

func (s *PostgresStore) query(ctx context.Context, op, query string, args ...any) ([]*models.Document, error) {
	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, postgres.Classify(op, err)
	}
	defer rows.Close()

	var out []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows, op)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner, op string) (*models.Document, error) {
	var (
		doc       models.Document
		docID     uuid.UUID
		tenantID  uuid.UUID
		ownerKind string
		ownerID   uuid.UUID
		docType   string
		provider  []byte
		successor *uuid.UUID
		status    string
		reason    sql.NullString
	)
	err := row.Scan(
		&docID,
		&tenantID,
		&ownerKind,
		&ownerID,
		&docType,
		&doc.File.Path,
		&doc.File.Checksum,
		&doc.File.SizeBytes,
		&doc.File.MimeType,
		&provider,
		&doc.IsActive,
		&doc.ValidFrom,
		&doc.ValidTo,
		&successor,
		&status,
		&reason,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, postgres.Classify(op, err)
	}

	doc.ID = id.DocumentID(docID)
	doc.Tenant = id.TenantID(tenantID)
	doc.Owner = id.OwnerRef{Kind: id.OwnerKind(ownerKind), ID: ownerID}
	doc.DocType = models.DocType(docType)
	doc.Status = models.Status(status)
	doc.ReplacementReason = models.ReplacementReason(reason.String)
	if successor != nil {
		v := id.DocumentID(*successor)
		doc.SupersededByID = &v
	}
	if len(provider) > 0 {
		if err := json.Unmarshal(provider, &doc.ProviderData); err != nil {
			return nil, fmt.Errorf("decode provider data: %w", err)
		}
	}
	return &doc, nil
}
