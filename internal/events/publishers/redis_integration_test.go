//go:build integration

package publishers_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"lendus/internal/events"
	"lendus/internal/events/publishers"
	"lendus/internal/events/relay"
	eventstore "lendus/internal/events/store"
	"lendus/pkg/platform/tx"
	"lendus/pkg/testutil"
	"lendus/pkg/testutil/containers"
)

const integrationStream = "lendus.integration"

type RedisStreamSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisStreamSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStreamSuite))
}

func (s *RedisStreamSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisStreamSuite) SetupTest() {
	s.Require().NoError(s.redis.ResetStream(context.Background(), integrationStream))
}

func (s *RedisStreamSuite) appendStatusChange(ctx context.Context, outbox *eventstore.InMemoryStore, to string) events.Event {
	applicationID := uuid.NewString()
	event, err := events.New(events.AggregateApplication, applicationID, events.TypeApplicationStatusChanged,
		events.StatusChanged{ApplicationID: applicationID, From: "IN_REVIEW", To: to}, testutil.FixedTime)
	s.Require().NoError(err)
	s.Require().NoError(outbox.Append(ctx, event))
	return event
}

func (s *RedisStreamSuite) TestRelayDrainsOutboxIntoStream() {
	ctx := context.Background()
	outbox := eventstore.NewInMemory()
	first := s.appendStatusChange(ctx, outbox, "APPROVED")
	second := s.appendStatusChange(ctx, outbox, "REJECTED")

	pub, err := publishers.NewRedisStream(s.redis.Client, integrationStream, publishers.WithMaxLen(1000))
	s.Require().NoError(err)

	r := relay.New(outbox, pub, tx.NewShardedRunner(), relay.WithBatchSize(10))
	n, err := r.Drain(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	ids, err := s.redis.StreamEventIDs(ctx, integrationStream)
	s.Require().NoError(err)
	s.Equal([]string{first.ID.String(), second.ID.String()}, ids)

	n, err = r.Drain(ctx)
	s.Require().NoError(err)
	s.Zero(n, "published rows are not sent twice")
}

func (s *RedisStreamSuite) TestPublishDirect() {
	ctx := context.Background()
	outbox := eventstore.NewInMemory()
	event := s.appendStatusChange(ctx, outbox, "DISBURSED")

	pub, err := publishers.NewRedisStream(s.redis.Client, integrationStream)
	s.Require().NoError(err)
	s.Require().NoError(pub.Publish(ctx, []events.Event{event}))
	s.Require().NoError(s.redis.Client.Health(ctx))

	ids, err := s.redis.StreamEventIDs(ctx, integrationStream)
	s.Require().NoError(err)
	s.Equal([]string{event.ID.String()}, ids)
}
