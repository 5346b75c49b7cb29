//go:build integration

package containers

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"lendus/internal/platform/config"
	"lendus/internal/platform/redis"
)

// RedisContainer is a Redis server for the event stream publisher. The client
// is built by the same constructor cmd/server uses, pool settings included.
type RedisContainer struct {
	Container testcontainers.Container
	URL       string
	Client    *redis.Client
}

// NewRedisContainer starts Redis and connects an engine client to it.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get redis connection string: %v", err)
	}

	client, err := redis.New(ctx, config.RedisConfig{URL: url, PoolSize: 4, MinIdleConns: 1})
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect to redis: %v", err)
	}

	return &RedisContainer{Container: container, URL: url, Client: client}
}

// ResetStream deletes stream so each test starts from an empty log.
func (r *RedisContainer) ResetStream(ctx context.Context, stream string) error {
	return r.Client.Del(ctx, stream).Err()
}

// StreamEventIDs returns the event_id field of every entry in stream, oldest
// first.
func (r *RedisContainer) StreamEventIDs(ctx context.Context, stream string) ([]string, error) {
	entries, err := r.Client.XRange(ctx, stream, "-", "+").Result()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, eventID(entry))
	}
	return ids, nil
}

func eventID(entry goredis.XMessage) string {
	v, _ := entry.Values["event_id"].(string)
	return v
}
