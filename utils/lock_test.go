package utils

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockSerialisesSameKey(t *testing.T) {
	l := NewPairLocker(nil, time.Second, 50*time.Millisecond)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "achievement:unlock:1:1")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "achievement:unlock:1:1")
	assert.ErrorIs(t, err, ErrLockTimeout)

	other, err := l.Acquire(ctx, "achievement:unlock:1:2")
	require.NoError(t, err)
	other()

	release()
	release() // second release is a no-op
	again, err := l.Acquire(ctx, "achievement:unlock:1:1")
	require.NoError(t, err)
	again()

	assert.Empty(t, l.local.slots)
}

func TestLocalLockMutualExclusion(t *testing.T) {
	l := NewPairLocker(nil, time.Second, 5*time.Second)
	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "k")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLockFallsBackWhenRedisIsDown(t *testing.T) {
	rc := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rc.Close()

	l := NewPairLocker(rc, time.Second, time.Second)
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release()
}
