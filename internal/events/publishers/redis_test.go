package publishers

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendus/internal/events"
	"lendus/pkg/testutil"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func statusEvent(t *testing.T, applicationID string) events.Event {
	t.Helper()
	event, err := events.New(events.AggregateApplication, applicationID, events.TypeApplicationStatusChanged,
		events.StatusChanged{ApplicationID: applicationID, From: "IN_REVIEW", To: "APPROVED"}, testutil.FixedTime)
	require.NoError(t, err)
	return event
}

func TestRedisStream_PublishAppendsInOrder(t *testing.T) {
	_, client := newRedis(t)
	pub, err := NewRedisStream(client, "lendus.test")
	require.NoError(t, err)

	first := statusEvent(t, uuid.NewString())
	second := statusEvent(t, uuid.NewString())
	require.NoError(t, pub.Publish(context.Background(), []events.Event{first, second}))

	entries, err := client.XRange(context.Background(), "lendus.test", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.ID.String(), entries[0].Values["event_id"])
	assert.Equal(t, "application.status_changed", entries[0].Values["event_type"])
	assert.Equal(t, second.AggregateID, entries[1].Values["aggregate_id"])
	assert.JSONEq(t, string(first.Payload), entries[0].Values["payload"].(string))
}

func TestRedisStream_PublishFailsWhenServerDown(t *testing.T) {
	mr, client := newRedis(t)
	pub, err := NewRedisStream(client, "lendus.test")
	require.NoError(t, err)
	mr.Close()

	err = pub.Publish(context.Background(), []events.Event{statusEvent(t, "app-1")})
	assert.Error(t, err)
}

func TestNewRedisStream_Validates(t *testing.T) {
	_, err := NewRedisStream(nil, "s")
	assert.Error(t, err)

	_, client := newRedis(t)
	_, err = NewRedisStream(client, "")
	assert.Error(t, err)
}
