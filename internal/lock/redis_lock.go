// Package lock is a Redis mutex with TTL and owner-token verification.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"academic-sync-service/internal/logger"
)

const DefaultKeyPrefix = "lock:"

var ErrNotAcquired = errors.New("lock not acquired")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLock struct {
	rdb    *redis.Client
	prefix string

	// retries and retryDelay shape the acquire in WithLock
	retries    int
	retryDelay time.Duration
}

func NewRedisLock(rdb *redis.Client, prefix string) *RedisLock {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisLock{rdb: rdb, prefix: prefix}
}

// WithRetry makes WithLock retry a held lock up to retries extra times, delay apart,
// before giving up with ErrNotAcquired.
func (l *RedisLock) WithRetry(retries int, delay time.Duration) *RedisLock {
	l.retries = max(retries, 0)
	l.retryDelay = delay
	return l
}

// Acquire sets the lock if nobody holds it. ok=false means it is held elsewhere.
func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = l.rdb.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release removes the lock only if token still owns it.
func (l *RedisLock) Release(ctx context.Context, key, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, l.rdb, []string{l.prefix + key}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("release %s: %w", key, err)
	}
	return n == 1, nil
}

// AcquireWithRetry retries Acquire up to maxRetries extra times, sleeping delay in between.
func (l *RedisLock) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, delay time.Duration) (string, bool, error) {
	for attempt := 0; ; attempt++ {
		token, ok, err := l.Acquire(ctx, key, ttl)
		if err != nil || ok {
			return token, ok, err
		}
		if attempt >= maxRetries {
			return "", false, nil
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", false, ctx.Err()
		case <-t.C:
		}
	}
}

// WithLock runs fn while holding key. It returns ErrNotAcquired if the lock stays held
// through the configured retries. The lock is released even if fn panics.
func (l *RedisLock) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	token, ok, err := l.AcquireWithRetry(ctx, key, ttl, l.retries, l.retryDelay)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAcquired
	}

	defer func() {
		// release must happen even if ctx was cancelled by the caller
		released, err := l.Release(context.WithoutCancel(ctx), key, token)
		log := logger.FromContext(ctx).WithField("lock_key", key)
		switch {
		case err != nil:
			log.WithError(err).Warn("lock release failed")
		case !released:
			log.Warn("lock expired before release")
		}
	}()

	return fn(ctx)
}
