package testutil

import (
	"context"
	"time"

	"github.com/google/uuid"

	"lendus/pkg/requestcontext"
)

// FixedTime is the reference instant used by service tests.
var FixedTime = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// Context returns a background context carrying a request id and a pinned
// request time, the way a transport adapter would populate it.
func Context(at time.Time) context.Context {
	ctx := requestcontext.WithRequestID(context.Background(), "req-"+uuid.NewString()[:8])
	return requestcontext.WithTime(ctx, at)
}

// Clock hands out strictly increasing instants so tests can order writes
// without sleeping.
type Clock struct {
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Next advances the clock by one second and returns a context pinned to it.
func (c *Clock) Next() context.Context {
	c.now = c.now.Add(time.Second)
	return Context(c.now)
}

func (c *Clock) Now() time.Time {
	return c.now
}
