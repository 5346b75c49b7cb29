package publishers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"lendus/internal/events"
	"lendus/internal/platform/config"
)

func TestFromConfig(t *testing.T) {
	_, client := newRedis(t)

	t.Run("none logs events", func(t *testing.T) {
		pub, err := FromConfig(config.Config{Events: config.Events{Sink: SinkNone}}, nil, nil)
		require.NoError(t, err)
		assert.IsType(t, &Log{}, pub)
	})

	t.Run("redis requires a client", func(t *testing.T) {
		_, err := FromConfig(config.Config{Events: config.Events{Sink: SinkRedis}}, nil, nil)
		assert.Error(t, err)

		pub, err := FromConfig(config.Config{
			Events: config.Events{Sink: SinkRedis},
			Redis:  config.RedisConfig{Stream: "lendus.events"},
		}, client, nil)
		require.NoError(t, err)
		assert.IsType(t, &RedisStream{}, pub)
	})

	t.Run("kafka requires brokers", func(t *testing.T) {
		_, err := FromConfig(config.Config{Events: config.Events{Sink: SinkKafka}, Kafka: config.KafkaConfig{Topic: "t"}}, nil, nil)
		assert.Error(t, err)
	})

	t.Run("unknown sink", func(t *testing.T) {
		_, err := FromConfig(config.Config{Events: config.Events{Sink: "sqs"}}, nil, nil)
		assert.Error(t, err)
	})
}

func TestKafkaRecord(t *testing.T) {
	event := statusEvent(t, uuid.NewString())
	record := Record(event)

	assert.Equal(t, []byte(event.AggregateID), record.Key, "records of one application share a partition")
	assert.Equal(t, []byte(event.Payload), record.Value)
	assert.True(t, record.Timestamp.Equal(event.CreatedAt))

	headers := map[string]string{}
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, event.ID.String(), headers["event_id"])
	assert.Equal(t, events.TypeApplicationStatusChanged, headers["event_type"])
}

func TestLog_Publish(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	pub := NewLog(zap.New(core))

	require.NoError(t, pub.Publish(context.Background(), []events.Event{statusEvent(t, "app-9")}))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "app-9", logs.All()[0].ContextMap()["aggregate_id"])
}
