package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client), mr
}

func TestLockerAcquireIsExclusive(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()
	key := PeriodLockKey(1, 2025, 3)

	ok, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, locker.Release(ctx, key))

	ok, err = locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLockerAcquireAfterExpiry(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	key := PeriodLockKey(7, 2025, 12)

	ok, err := locker.Acquire(ctx, key, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = locker.Acquire(ctx, key, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPeriodLockKeyShape(t *testing.T) {
	require.Equal(t, "ledger:period:42:2025-03:lock", PeriodLockKey(42, 2025, 3))
}
