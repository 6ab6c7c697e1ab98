package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RecalcLockKey builds redis keys for profit-recalculation critical sections.
// Project 0 addresses the global (all projects) recalculation.
func RecalcLockKey(projectID int64) string {
	return fmt.Sprintf("ledger:project:%d:recalc:lock", projectID)
}

// RecalcLock serializes profit recalculations per project. Two interleaved
// regenerations for the same project could double-delete or double-insert,
// so the second caller is rejected rather than queued.
type RecalcLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRecalcLock returns a lock helper backed by redis.
func NewRecalcLock(client *redis.Client, ttl time.Duration) *RecalcLock {
	return &RecalcLock{client: client, ttl: ttl}
}

// Acquire takes the per-project lock. It returns a release function on
// success and ErrRecalcInProgress when another run holds the lock.
// A nil lock (no redis configured) is a no-op.
func (l *RecalcLock) Acquire(ctx context.Context, projectID int64) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	key := RecalcLockKey(projectID)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire recalc lock: %w", err)
	}
	if !ok {
		return nil, ErrRecalcInProgress
	}
	release := func() {
		// Only the holder may release; the token guards against deleting
		// a lock that expired and was re-acquired by another run.
		const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		_ = l.client.Eval(context.Background(), script, []string{key}, token).Err()
	}
	return release, nil
}
