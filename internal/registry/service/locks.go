package service

import (
	"context"
	"hash/fnv"
	"time"

	dErrors "landregistry/pkg/domain-errors"
)

// defaultLockShards spreads keys over enough shards that unrelated
// properties rarely contend.
const defaultLockShards = 128

// defaultTxTimeout bounds how long a transition may wait for its lock and
// run its transaction.
const defaultTxTimeout = 5 * time.Second

// cacheWriteTimeout bounds the post-commit cache refresh.
const cacheWriteTimeout = 2 * time.Second

// shardedLocks serializes transitions per key. Two requests for the same
// token always hash to the same shard, so the later one observes the fully
// committed effect of the earlier one. Acquisition honours ctx so no caller
// waits past its deadline.
type shardedLocks struct {
	shards []chan struct{}
}

func newShardedLocks(n int) *shardedLocks {
	if n <= 0 {
		n = defaultLockShards
	}
	l := &shardedLocks{shards: make([]chan struct{}, n)}
	for i := range l.shards {
		l.shards[i] = make(chan struct{}, 1)
	}
	return l
}

// lock acquires the shard for key and returns its release func. An empty key
// takes no lock.
func (l *shardedLocks) lock(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return func() {}, nil
	}
	shard := l.shards[l.shardFor(key)]
	select {
	case shard <- struct{}{}:
		return func() { <-shard }, nil
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "transaction aborted: lock not acquired")
	}
}

func (l *shardedLocks) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(l.shards)))
}
