package faucet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultDelay is the minimum gap the public faucet expects between requests.
	DefaultDelay = 10 * time.Second

	throttleKey  = "faucet:throttle:v1"
	minRedisPoll = 50 * time.Millisecond
	// inflightLease bounds how long a crashed holder can keep the slot.
	inflightLease = time.Minute
)

// Throttle spaces faucet requests. Wait blocks until the next request may
// be sent and Done marks that request as finished; the following request is
// admitted no sooner than the delay after Done.
type Throttle interface {
	Wait(ctx context.Context) error
	Done(ctx context.Context)
}

// LocalThrottle admits one request at a time within one process. The first
// call never waits.
type LocalThrottle struct {
	slot  chan struct{}
	delay time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewLocalThrottle builds an in-process throttle.
func NewLocalThrottle(delay time.Duration) *LocalThrottle {
	return &LocalThrottle{delay: delay, slot: make(chan struct{}, 1)}
}

// Wait takes the slot, then sleeps until delay has passed since the previous
// request finished.
func (t *LocalThrottle) Wait(ctx context.Context) error {
	select {
	case t.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	t.mu.Lock()
	last := t.last
	t.mu.Unlock()

	if !last.IsZero() {
		if wait := t.delay - time.Since(last); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				<-t.slot
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil
}

// Done records the finish time and frees the slot.
func (t *LocalThrottle) Done(_ context.Context) {
	t.mu.Lock()
	t.last = time.Now()
	t.mu.Unlock()

	select {
	case <-t.slot:
	default:
	}
}

// RedisThrottle spaces faucet calls across every process sharing the Redis
// instance, so parallel operators do not trip the faucet's rate limit.
type RedisThrottle struct {
	cache *redis.Client
	delay time.Duration
	key   string
}

// NewRedisThrottle builds a throttle backed by a Redis key with a TTL of delay.
func NewRedisThrottle(cache *redis.Client, delay time.Duration) *RedisThrottle {
	return &RedisThrottle{cache: cache, delay: delay, key: throttleKey}
}

// Wait reserves the slot for the duration of a request, waiting out the
// remaining TTL of a slot held by another caller.
func (t *RedisThrottle) Wait(ctx context.Context) error {
	if t.delay <= 0 {
		return nil
	}
	for {
		ok, err := t.cache.SetNX(ctx, t.key, time.Now().UTC().Format(time.RFC3339Nano), t.delay+inflightLease).Result()
		if err != nil {
			return fmt.Errorf("reserve faucet slot: %w", err)
		}
		if ok {
			return nil
		}

		ttl, err := t.cache.PTTL(ctx, t.key).Result()
		if err != nil {
			return fmt.Errorf("read faucet slot ttl: %w", err)
		}
		if ttl < minRedisPoll {
			ttl = minRedisPoll
		}

		timer := time.NewTimer(ttl)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Done keeps the slot for delay from now so the next caller waits for the
// gap after this request finished.
func (t *RedisThrottle) Done(ctx context.Context) {
	if t.delay <= 0 {
		return
	}
	// best effort; the lease still expires the slot on error
	_ = t.cache.SetXX(context.WithoutCancel(ctx), t.key, time.Now().UTC().Format(time.RFC3339Nano), t.delay).Err()
}

type throttledClient struct {
	next     Client
	throttle Throttle
}

// WithThrottle returns a Client that waits on throttle before every request
// and reports each finished request back to it.
func WithThrottle(next Client, throttle Throttle) Client {
	if throttle == nil {
		return next
	}
	return &throttledClient{next: next, throttle: throttle}
}

func (c *throttledClient) NewAccount(ctx context.Context) (Credentials, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return Credentials{}, fmt.Errorf("%w: throttle: %w", ErrFaucet, err)
	}
	defer c.throttle.Done(ctx)
	return c.next.NewAccount(ctx)
}
