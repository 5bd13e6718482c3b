package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	dErrors "proctrack/pkg/domain-errors"
)

// TxRunner provides the transactional boundary for one transition.
// Implementations may wrap a database transaction or, in-memory, a lock.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// defaultTxTimeout is the maximum duration of one transition.
const defaultTxTimeout = 5 * time.Second

// numTxShards spreads in-memory transitions over independent locks so
// transitions on different documents do not wait on each other.
const numTxShards = 64

// ShardedTx serializes in-memory transitions per document. Transitions on
// the same document always map to the same shard.
type ShardedTx struct {
	shards  [numTxShards]sync.Mutex
	timeout time.Duration
}

func NewShardedTx(timeout time.Duration) *ShardedTx {
	return &ShardedTx{timeout: timeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := t.selectShard(ctx)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}

func (t *ShardedTx) selectShard(ctx context.Context) int {
	key := lockKeyFrom(ctx)
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % numTxShards)
}

type lockKeyCtx struct{}

// WithLockKey names the document a transition works on.
func WithLockKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, lockKeyCtx{}, key)
}

func lockKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(lockKeyCtx{}).(string)
	return key
}
