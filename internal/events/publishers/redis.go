package publishers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lendus/internal/events"
)

// RedisStream appends events to a Redis stream in one MULTI/EXEC block.
type RedisStream struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

type RedisOption func(*RedisStream)

// WithMaxLen caps the stream length (approximate trimming).
func WithMaxLen(n int64) RedisOption {
	return func(r *RedisStream) {
		r.maxLen = n
	}
}

func NewRedisStream(client redis.Cmdable, stream string, opts ...RedisOption) (*RedisStream, error) {
	if client == nil {
		return nil, errors.New("redis stream: client is required")
	}
	if stream == "" {
		return nil, errors.New("redis stream: stream name is required")
	}
	r := &RedisStream{client: client, stream: stream}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *RedisStream) Publish(ctx context.Context, batch []events.Event) error {
	if len(batch) == 0 {
		return nil
	}
	pipe := r.client.TxPipeline()
	for _, event := range batch {
		args := &redis.XAddArgs{
			Stream: r.stream,
			Values: map[string]any{
				"event_id":       event.ID.String(),
				"event_type":     event.Type,
				"aggregate_type": event.AggregateType,
				"aggregate_id":   event.AggregateID,
				"payload":        string(event.Payload),
				"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
			},
		}
		if r.maxLen > 0 {
			args.MaxLen = r.maxLen
			args.Approx = true
		}
		pipe.XAdd(ctx, args)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis stream: xadd %s: %w", r.stream, err)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (r *RedisStream) Close() error {
	return nil
}
