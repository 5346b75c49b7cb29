// Package events carries domain events from the core to downstream
// collaborators through a transactional outbox.
//
// Services append events inside the same unit of work as the state change
// they describe; the relay publishes committed rows afterwards. Delivery
// retries belong to the relay, never to the core.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the core.
const (
	TypeApplicationStatusChanged = "application.status_changed"
)

// Aggregate types.
const (
	AggregateApplication = "application"
)

// Event is one outbox row.
type Event struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	Type          string
	Payload       json.RawMessage
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Attempts      int
	LastError     string
}

// New builds an event with a JSON-encoded payload.
func New(aggregateType, aggregateID, eventType string, payload any, at time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          eventType,
		Payload:       raw,
		CreatedAt:     at,
	}, nil
}

// StatusChanged is the payload of application.status_changed.
type StatusChanged struct {
	ApplicationID string    `json:"application_id"`
	TenantID      string    `json:"tenant_id"`
	From          string    `json:"from_status"`
	To            string    `json:"to_status"`
	ChangedBy     string    `json:"changed_by"`
	ChangedByKind string    `json:"changed_by_kind"`
	Notes         string    `json:"notes,omitempty"`
	At            time.Time `json:"at"`
	RequestID     string    `json:"request_id,omitempty"`
}

// Appender writes events within the caller's transaction (carried in ctx).
type Appender interface {
	Append(ctx context.Context, event Event) error
}

// Store is the relay's view of the outbox.
type Store interface {
	Appender
	// ListUnpublished returns up to limit unpublished events, oldest first.
	// Inside a transaction the rows stay locked until commit.
	ListUnpublished(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, ids []uuid.UUID, reason string) error
}

// Publisher delivers events to a downstream sink.
type Publisher interface {
	Publish(ctx context.Context, batch []Event) error
	Close() error
}
