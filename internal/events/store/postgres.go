package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"lendus/internal/events"
	"lendus/internal/platform/postgres"
	"lendus/pkg/platform/tx"
)

// PostgresStore implements the transactional outbox on the outbox table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts the event using the transaction in ctx, so the row commits
// or rolls back together with the state change it describes.
func (s *PostgresStore) Append(ctx context.Context, event events.Event) error {
	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		event.ID,
		event.AggregateType,
		event.AggregateID,
		event.Type,
		[]byte(event.Payload),
		event.CreatedAt,
	)
	return postgres.Classify("insert outbox entry", err)
}

// ListUnpublished skips rows locked by another relay instance.
func (s *PostgresStore) ListUnpublished(ctx context.Context, limit int) ([]events.Event, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at, attempts, COALESCE(last_error, '')
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`
	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, postgres.Classify("list unpublished outbox entries", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			event   events.Event
			payload []byte
		)
		if err := rows.Scan(&event.ID, &event.AggregateType, &event.AggregateID, &event.Type,
			&payload, &event.CreatedAt, &event.Attempts, &event.LastError); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		event.Payload = payload
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	query := `
		UPDATE outbox
		SET published_at = $2, attempts = attempts + 1, last_error = NULL
		WHERE id = ANY($1::uuid[])`
	_, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query, pq.Array(uuidStrings(ids)), at)
	return postgres.Classify("mark outbox entries published", err)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, ids []uuid.UUID, reason string) error {
	query := `
		UPDATE outbox
		SET attempts = attempts + 1, last_error = $2
		WHERE id = ANY($1::uuid[])`
	_, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query, pq.Array(uuidStrings(ids)), reason)
	return postgres.Classify("mark outbox entries failed", err)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = v.String()
	}
	return out
}
