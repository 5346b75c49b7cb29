package publishers

import (
	"context"

	"go.uber.org/zap"

	"lendus/internal/events"
)

// Log writes events to the logger. It backs the "none" sink so the relay
// still drains the outbox in environments without a broker.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

func (l *Log) Publish(_ context.Context, batch []events.Event) error {
	for _, event := range batch {
		l.logger.Info("event published",
			zap.String("event_id", event.ID.String()),
			zap.String("event_type", event.Type),
			zap.String("aggregate_id", event.AggregateID),
			zap.ByteString("payload", event.Payload))
	}
	return nil
}

func (l *Log) Close() error {
	return nil
}
