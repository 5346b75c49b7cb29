// Package publishers holds the outbox sinks: Kafka, Redis streams and a
// log-only fallback.
package publishers

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"lendus/internal/events"
	"lendus/internal/platform/config"
)

// Sink names accepted in configuration.
const (
	SinkKafka = "kafka"
	SinkRedis = "redis"
	SinkNone  = "none"
)

// FromConfig builds the publisher selected by cfg.Events.Sink. The redis
// client is only required for the redis sink.
func FromConfig(cfg config.Config, client redis.Cmdable, logger *zap.Logger) (events.Publisher, error) {
	switch cfg.Events.Sink {
	case SinkKafka:
		return NewKafka(cfg.Kafka)
	case SinkRedis:
		if client == nil {
			return nil, errors.New("redis sink selected but REDIS_URL is not set")
		}
		return NewRedisStream(client, cfg.Redis.Stream)
	case SinkNone, "":
		return NewLog(logger), nil
	default:
		return nil, fmt.Errorf("unknown event sink %q", cfg.Events.Sink)
	}
}

// Pinger is implemented by publishers that can report broker reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
