package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisLocker(client, "trade:lock:", 5*time.Second), mr
}

func TestAcquireAndRelease(t *testing.T) {
	locker, mr := setupLocker(t)
	ctx := context.Background()

	l := locker.NewLock("product:fund-001")

	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("trade:lock:product:fund-001"))

	require.NoError(t, l.Release(ctx))
	assert.False(t, mr.Exists("trade:lock:product:fund-001"))
}

func TestAcquireContention(t *testing.T) {
	locker, _ := setupLocker(t)
	ctx := context.Background()

	first := locker.NewLock("product:fund-001")
	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Same key, different holder token
	second := locker.NewLock("product:fund-001")
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// A different product is not blocked
	other := locker.NewLock("product:fund-002")
	ok, err = other.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseOnlyByHolder(t *testing.T) {
	locker, _ := setupLocker(t)
	ctx := context.Background()

	holder := locker.NewLock("product:fund-001")
	ok, err := holder.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	intruder := locker.NewLock("product:fund-001")
	err = intruder.Release(ctx)
	assert.ErrorIs(t, err, ErrLockNotHeld)

	// The real holder can still release
	require.NoError(t, holder.Release(ctx))
}

func TestExtend(t *testing.T) {
	locker, mr := setupLocker(t)
	ctx := context.Background()

	l := locker.NewLock("product:fund-001")
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Extend(ctx, 30*time.Second))
	assert.Equal(t, 30*time.Second, mr.TTL("trade:lock:product:fund-001"))

	// Extend after expiry fails
	mr.FastForward(time.Minute)
	err = l.Extend(ctx, 30*time.Second)
	assert.ErrorIs(t, err, ErrLockNotHeld)
}

func TestWithLock(t *testing.T) {
	locker, mr := setupLocker(t)
	ctx := context.Background()

	called := false
	err := locker.WithLock(ctx, "product:fund-001", func(ctx context.Context) error {
		called = true
		assert.True(t, mr.Exists("trade:lock:product:fund-001"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	// Released after fn returns
	assert.False(t, mr.Exists("trade:lock:product:fund-001"))
}

func TestWithLockFailsFastWhenHeld(t *testing.T) {
	locker, _ := setupLocker(t)
	ctx := context.Background()

	blocker := locker.NewLock("product:fund-001")
	ok, err := blocker.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	err = locker.WithLock(ctx, "product:fund-001", func(ctx context.Context) error {
		t.Fatal("must not run under a held lock")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockAcquireFailed)
}

func TestWithLockHeartbeatOutlivesTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	// 60ms TTL, heartbeat every 20ms
	locker := NewRedisLocker(client, "trade:lock:", 60*time.Millisecond)
	ctx := context.Background()

	err = locker.WithLock(ctx, "product:fund-001", func(ctx context.Context) error {
		// Simulated signing wait far beyond the TTL: burn most of the
		// TTL repeatedly and leave the heartbeat room to renew it
		for i := 0; i < 5; i++ {
			mr.FastForward(40 * time.Millisecond)
			time.Sleep(50 * time.Millisecond)
			require.True(t, mr.Exists("trade:lock:product:fund-001"))
		}

		// Exclusivity holds for the whole wait
		other := locker.NewLock("product:fund-001")
		ok, acquireErr := other.Acquire(ctx)
		require.NoError(t, acquireErr)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	// Heartbeat stopped and lock released on return
	assert.False(t, mr.Exists("trade:lock:product:fund-001"))
}

func TestWithLockPropagatesError(t *testing.T) {
	locker, mr := setupLocker(t)
	ctx := context.Background()

	boom := errors.New("order creation failed")
	err := locker.WithLock(ctx, "product:fund-001", func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// Lock is released even when fn errors
	assert.False(t, mr.Exists("trade:lock:product:fund-001"))
}
