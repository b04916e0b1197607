package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes work on one caller. Different keys never block each other.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LocalLocker is an in-process keyed mutex. Entries are freed when unused.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, lk)
		return nil, fmt.Errorf("session: lock %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lk.ch
			l.release(key, lk)
		})
	}, nil
}

func (l *LocalLocker) release(key string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}

// size is the number of keys currently tracked.
func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

const (
	lockKeyPrefix       = "booking_lock:"
	defaultLockLease    = 45 * time.Second
	defaultRetryBackoff = 25 * time.Millisecond
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a lease lock shared by every replica. While held, the lease
// is extended every third of its length, so a transition slower than the
// lease keeps the lock until unlock or until the holder process dies.
type RedisLocker struct {
	redis   *redis.Client
	lease   time.Duration
	backoff time.Duration
	onLost  func(key string)
}

type RedisLockerOption func(*RedisLocker)

func WithLease(d time.Duration) RedisLockerOption {
	return func(r *RedisLocker) {
		if d > 0 {
			r.lease = d
		}
	}
}

func WithRetryBackoff(d time.Duration) RedisLockerOption {
	return func(r *RedisLocker) {
		if d > 0 {
			r.backoff = d
		}
	}
}

// WithLostLeaseHook is called when release finds the lease already gone.
func WithLostLeaseHook(fn func(key string)) RedisLockerOption {
	return func(r *RedisLocker) { r.onLost = fn }
}

func NewRedisLocker(client *redis.Client, opts ...RedisLockerOption) *RedisLocker {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	r := &RedisLocker{redis: client, lease: defaultLockLease, backoff: defaultRetryBackoff}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := lockKeyPrefix + key
	for {
		ok, err := r.redis.SetNX(ctx, redisKey, token, r.lease).Result()
		if err != nil {
			return nil, fmt.Errorf("session: acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(r.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("session: lock %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	var lost atomic.Bool
	go r.keepAlive(key, redisKey, token, &lost, stop, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped
			// Release must not depend on the caller's context, which may already be cancelled.
			relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			n, err := releaseScript.Run(relCtx, r.redis, []string{redisKey}, token).Int()
			if (err != nil || n == 0) && r.onLost != nil && !lost.Load() {
				r.onLost(key)
			}
		})
	}, nil
}

// keepAlive extends the lease until stop is closed or the lease is found to
// belong to someone else.
func (r *RedisLocker) keepAlive(key, redisKey, token string, lost *atomic.Bool, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	interval := r.lease / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := refreshScript.Run(ctx, r.redis, []string{redisKey}, token, r.lease.Milliseconds()).Int()
			cancel()
			if err == nil && n == 0 {
				lost.Store(true)
				if r.onLost != nil {
					r.onLost(key)
				}
				return
			}
		}
	}
}
