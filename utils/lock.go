package utils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a lock could not be acquired within the wait budget.
var ErrLockTimeout = errors.New("lock wait timeout")

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// PairLocker serialises work on a key. It uses Redis SET NX when a client is
// configured and an in-process keyed mutex otherwise, or when Redis errors.
type PairLocker struct {
	rc    *redis.Client
	ttl   time.Duration
	wait  time.Duration
	retry time.Duration
	local *keyedMutex
}

// NewPairLocker creates a locker. rc may be nil.
func NewPairLocker(rc *redis.Client, ttl, wait time.Duration) *PairLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &PairLocker{rc: rc, ttl: ttl, wait: wait, retry: 25 * time.Millisecond, local: newKeyedMutex()}
}

// Acquire blocks until key is held, ctx is done or the wait budget runs out.
func (l *PairLocker) Acquire(ctx context.Context, key string) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	if l.rc != nil {
		release, err := l.acquireRedis(ctx, key)
		if err == nil {
			return release, nil
		}
		if errors.Is(err, ErrLockTimeout) {
			return nil, err
		}
		Sugar.Warnf("redis lock unavailable, using local lock key=%s err=%v", key, err)
	}
	return l.local.lock(ctx, key)
}

func (l *PairLocker) acquireRedis(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.rc.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, err
		}
		if ok {
			return func() {
				rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := releaseScript.Run(rctx, l.rc, []string{key}, token).Err(); err != nil {
					Sugar.Warnf("redis lock release failed key=%s err=%v", key, err)
				}
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ErrLockTimeout
		case <-ticker.C:
		}
	}
}

// keyedMutex hands out one channel-based mutex per key and forgets it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{slots: map[string]*slot{}}
}

func (k *keyedMutex) lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		k.unref(key, s)
		return nil, ErrLockTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.unref(key, s)
		})
	}, nil
}

func (k *keyedMutex) unref(key string, s *slot) {
	k.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
	k.mu.Unlock()
}
