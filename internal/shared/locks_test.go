package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T) (*RecalcLock, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRecalcLock(client, time.Minute), srv
}

func TestRecalcLockSerializesSameProject(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, 1)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, 1)
	require.ErrorIs(t, err, ErrRecalcInProgress)

	release()
	release2, err := lock.Acquire(ctx, 1)
	require.NoError(t, err)
	release2()
}

func TestRecalcLockIndependentProjects(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	rel1, err := lock.Acquire(ctx, 1)
	require.NoError(t, err)
	defer rel1()

	rel2, err := lock.Acquire(ctx, 2)
	require.NoError(t, err, "different projects must not contend")
	rel2()
}

func TestRecalcLockReleaseIgnoresStolenKey(t *testing.T) {
	lock, srv := newTestLock(t)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, 7)
	require.NoError(t, err)

	// Simulate expiry plus takeover by a second run.
	srv.FastForward(2 * time.Minute)
	_, err = lock.Acquire(ctx, 7)
	require.NoError(t, err)

	release() // stale holder must not delete the new owner's lock

	_, err = lock.Acquire(ctx, 7)
	require.ErrorIs(t, err, ErrRecalcInProgress)
}

func TestNilLockIsNoop(t *testing.T) {
	var lock *RecalcLock
	release, err := lock.Acquire(context.Background(), 1)
	require.NoError(t, err)
	release()
}
