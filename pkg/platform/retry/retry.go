// Package retry runs a unit of work a bounded number of times with capped
// exponential backoff between attempts.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy defines retry behavior for transient failures.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy is three attempts starting 25ms apart, capped at 250ms.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   25 * time.Millisecond,
	MaxDelay:    250 * time.Millisecond,
}

// Normalize fills zero fields from DefaultPolicy.
func (p Policy) Normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy.MaxDelay
	}
	return p
}

// backOff is the attempt-bounded, ctx-aware schedule for p. Delays double
// from BaseDelay up to MaxDelay, without jitter so tests stay deterministic.
func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)
}

// Do calls fn until it succeeds, returns an error retryable rejects, or the
// attempts are exhausted. onRetry, when set, observes each failed attempt that
// will be retried. The last error from fn is returned unchanged, also when ctx
// ends the wait.
func Do(ctx context.Context, p Policy, retryable func(error) bool, onRetry func(attempt int, err error), fn func(ctx context.Context) error) error {
	p = p.Normalize()

	attempt := 0
	var last error
	op := func() error {
		attempt++
		last = fn(ctx)
		if last != nil && !retryable(last) {
			return backoff.Permanent(last)
		}
		return last
	}
	notify := func(err error, _ time.Duration) {
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}

	err := backoff.RetryNotify(op, p.backOff(ctx), notify)
	if err != nil && last != nil {
		return last
	}
	return err
}
