package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendus/internal/events"
	"lendus/internal/events/store"
	"lendus/internal/platform/metrics"
	"lendus/pkg/platform/circuit"
	"lendus/pkg/platform/tx"
	"lendus/pkg/testutil"
)

type fakePublisher struct {
	mu      sync.Mutex
	err     error
	batches [][]events.Event
}

func (f *fakePublisher) Publish(_ context.Context, batch []events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func seed(t *testing.T, s *store.InMemoryStore, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		event, err := events.New(events.AggregateApplication, uuid.NewString(), events.TypeApplicationStatusChanged,
			events.StatusChanged{To: "SUBMITTED"}, testutil.FixedTime.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.NoError(t, s.Append(context.Background(), event))
	}
}

func TestRelay_DrainPublishesAndMarks(t *testing.T) {
	s := store.NewInMemory()
	seed(t, s, 5)
	pub := &fakePublisher{}
	m := metrics.New(prometheus.NewRegistry())
	r := New(s, pub, tx.NewShardedRunner(), WithBatchSize(3), WithMetrics(m),
		WithClock(func() time.Time { return testutil.FixedTime }))

	n, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, 5, pub.published())
	for _, event := range s.All() {
		require.NotNil(t, event.PublishedAt)
		assert.True(t, event.PublishedAt.Equal(testutil.FixedTime))
	}
	assert.Equal(t, float64(5), promtest.ToFloat64(m.OutboxPublished))
}

func TestRelay_FailuresOpenTheCircuit(t *testing.T) {
	s := store.NewInMemory()
	seed(t, s, 2)
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	now := testutil.FixedTime
	breaker := circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }))
	m := metrics.New(prometheus.NewRegistry())
	r := New(s, pub, tx.NewShardedRunner(), WithBreaker(breaker), WithMetrics(m))

	for i := 0; i < 2; i++ {
		_, err := r.Drain(context.Background())
		assert.ErrorContains(t, err, "broker unavailable")
	}
	assert.True(t, breaker.IsOpen())
	assert.Equal(t, float64(2), promtest.ToFloat64(m.OutboxFailures))

	_, err := r.Drain(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)

	pending, err := s.ListUnpublished(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 2, pending[0].Attempts)
	assert.Equal(t, "broker unavailable", pending[0].LastError)

	pub.mu.Lock()
	pub.err = nil
	pub.mu.Unlock()
	now = now.Add(2 * time.Minute)

	n, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, breaker.IsOpen())
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	s := store.NewInMemory()
	seed(t, s, 3)
	pub := &fakePublisher{}
	r := New(s, pub, tx.NewShardedRunner(), WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return pub.published() == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
