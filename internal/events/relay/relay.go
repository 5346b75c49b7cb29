// Package relay drains the transactional outbox into a publisher.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lendus/internal/events"
	"lendus/internal/platform/metrics"
	"lendus/pkg/platform/circuit"
	"lendus/pkg/platform/tx"
)

// ErrCircuitOpen is returned by Drain while the publisher is considered down.
var ErrCircuitOpen = errors.New("relay: publisher circuit open")

// Relay polls unpublished outbox rows, publishes them and marks them. Rows
// stay locked for the duration of one batch so concurrent relays never
// publish the same row twice from one read.
type Relay struct {
	store     events.Store
	publisher events.Publisher
	tx        tx.Runner
	breaker   *circuit.Breaker
	logger    *zap.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batch     int
	now       func() time.Time
}

type Option func(*Relay)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Relay) {
		if b != nil {
			r.breaker = b
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

func New(store events.Store, publisher events.Publisher, runner tx.Runner, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		tx:        runner,
		breaker:   circuit.New("outbox-publisher", circuit.WithFailureThreshold(3), circuit.WithCooldown(15*time.Second)),
		logger:    zap.NewNop(),
		interval:  time.Second,
		batch:     100,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains the outbox every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started",
		zap.Duration("interval", r.interval),
		zap.Int("batch", r.batch))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			for {
				n, err := r.Drain(ctx)
				if err != nil {
					if !errors.Is(err, ErrCircuitOpen) && ctx.Err() == nil {
						r.logger.Warn("outbox drain failed", zap.Error(err))
					}
					break
				}
				if n < r.batch {
					break
				}
			}
		}
	}
}

// Drain publishes one batch and returns how many events were published.
// A publish failure is recorded on the rows and counts against the breaker.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	if !r.breaker.Allow() {
		return 0, ErrCircuitOpen
	}

	var published int
	var publishErr error
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		published, publishErr = 0, nil
		batch, err := r.store.ListUnpublished(ctx, r.batch)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, len(batch))
		for i, event := range batch {
			ids[i] = event.ID
		}

		if err := r.publisher.Publish(ctx, batch); err != nil {
			publishErr = err
			return r.store.MarkFailed(ctx, ids, err.Error())
		}
		if err := r.store.MarkPublished(ctx, ids, r.now()); err != nil {
			return err
		}
		published = len(batch)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if publishErr != nil {
		r.metrics.IncrementOutboxFailure()
		if _, change := r.breaker.RecordFailure(); change.Opened {
			r.logger.Error("outbox publisher circuit opened", zap.Error(publishErr))
		}
		return 0, publishErr
	}
	if _, change := r.breaker.RecordSuccess(); change.Closed {
		r.logger.Info("outbox publisher circuit closed")
	}
	if published > 0 {
		r.metrics.IncrementOutboxPublished(published)
		r.logger.Debug("outbox batch published", zap.Int("count", published))
	}
	return published, nil
}
