package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockPrefix = "provision:lock:v1:"

// ErrRunInProgress indicates another process holds the provisioning lock.
var ErrRunInProgress = errors.New("another provisioning run is in progress")

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0
`)

// Lock serializes provisioning runs that share state.
type Lock interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), err error)
}

// NoopLock never blocks. Used when no shared lock backend is configured.
type NoopLock struct{}

// Acquire always succeeds.
func (NoopLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

// RedisLock holds a Redis key for the duration of a run. Each holder writes a
// unique token and only deletes the key while it still owns it.
type RedisLock struct {
	cache *redis.Client
}

// NewRedisLock builds a lock backed by cache.
func NewRedisLock(cache *redis.Client) *RedisLock {
	return &RedisLock{cache: cache}
}

// Acquire reserves name for ttl or fails with ErrRunInProgress.
func (l *RedisLock) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	key := lockPrefix + name
	token := uuid.NewString()

	ok, err := l.cache.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrRunInProgress)
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		releaseScript.Run(releaseCtx, l.cache, []string{key}, token) // best effort
	}
	return release, nil
}
