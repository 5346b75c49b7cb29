package tx

import (
	"context"
	"sync"
	"time"

	dErrors "lendus/pkg/domain-errors"
)

// numShards spreads in-memory units of work over independent locks. Work on
// different lock keys (owners, applications) rarely contends.
const numShards = 128

type (
	journalKey struct{}
	lockKey    struct{}
)

// Journal collects undo steps registered by in-memory stores during a unit of
// work; they run in reverse order when the unit fails.
type Journal struct {
	mu   sync.Mutex
	undo []func()
}

func (j *Journal) add(fn func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.undo = append(j.undo, fn)
}

func (j *Journal) rollback() {
	j.mu.Lock()
	steps := j.undo
	j.undo = nil
	j.mu.Unlock()
	for i := len(steps) - 1; i >= 0; i-- {
		steps[i]()
	}
}

func journalFrom(ctx context.Context) (*Journal, bool) {
	j, ok := ctx.Value(journalKey{}).(*Journal)
	return j, ok
}

// OnRollback registers an undo step for the in-memory unit of work in ctx.
// Outside a unit of work it is a no-op.
func OnRollback(ctx context.Context, undo func()) {
	if j, ok := journalFrom(ctx); ok {
		j.add(undo)
	}
}

// WithLockKey names the resource a unit of work mutates so ShardedRunner can
// serialize work on the same key.
func WithLockKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, lockKey{}, key)
}

// ShardedRunner is the in-memory Runner: a sharded mutex keyed by the lock key
// in context plus a rollback journal.
type ShardedRunner struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

func NewShardedRunner() *ShardedRunner {
	return &ShardedRunner{timeout: defaultTxTimeout}
}

func (r *ShardedRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := journalFrom(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	shard := r.selectShard(ctx)
	r.shards[shard].Lock()
	defer r.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	j := &Journal{}
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		j.rollback()
		return err
	}
	return nil
}

// selectShard picks a shard from the lock key in context, or defaults to shard 0.
func (r *ShardedRunner) selectShard(ctx context.Context) int {
	if key, ok := ctx.Value(lockKey{}).(string); ok && key != "" {
		return int(hashString(key) % numShards)
	}
	return 0
}

// hashString is FNV-1a.
func hashString(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
