package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLocker(client, Options{
		TTL:           10 * time.Second,
		RetryInterval: 5 * time.Millisecond,
		MaxRetries:    3,
	}), mr
}

func TestOwnerLock_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	locker, _ := newTestLocker(t)

	first := locker.NewOwnerLock("alice")
	second := locker.NewOwnerLock("alice")
	assert.Equal(t, first.Key(), second.Key())

	require.NoError(t, locker.Acquire(ctx, first))
	err := locker.Acquire(ctx, second)
	assert.ErrorIs(t, err, ErrLockFailed)

	require.NoError(t, first.Unlock(ctx))
	require.NoError(t, locker.Acquire(ctx, second))
	require.NoError(t, second.Unlock(ctx))
}

func TestOwnerLock_DifferentOwnersIndependent(t *testing.T) {
	ctx := context.Background()
	locker, _ := newTestLocker(t)

	require.NoError(t, locker.Acquire(ctx, locker.NewOwnerLock("alice")))
	require.NoError(t, locker.Acquire(ctx, locker.NewOwnerLock("bob")))
	require.NoError(t, locker.Acquire(ctx, locker.NewPoolLock()))
	require.NoError(t, locker.Acquire(ctx, locker.NewPolicyLock("spin")))
}

func TestUnlock_DoesNotReleaseOthersLock(t *testing.T) {
	ctx := context.Background()
	locker, mr := newTestLocker(t)

	stale := locker.NewPoolLock()
	require.NoError(t, locker.Acquire(ctx, stale))

	mr.FastForward(11 * time.Second)

	fresh := locker.NewPoolLock()
	require.NoError(t, locker.Acquire(ctx, fresh))

	assert.ErrorIs(t, stale.Unlock(ctx), ErrLockExpired)
	assert.True(t, mr.Exists(fresh.Key()), "过期持有者释放时不能删掉新持有者的锁")

	require.NoError(t, fresh.Unlock(ctx))
	assert.False(t, mr.Exists(fresh.Key()))
}

func TestLock_ContextCancelled(t *testing.T) {
	locker, _ := newTestLocker(t)
	holder := locker.NewOwnerLock("carol")
	require.NoError(t, locker.Acquire(context.Background(), holder))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := locker.NewOwnerLock("carol").Lock(ctx, time.Second, 5)
	assert.ErrorIs(t, err, context.Canceled)
}
