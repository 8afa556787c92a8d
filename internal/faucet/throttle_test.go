package faucet

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocalThrottleFirstCallImmediate(t *testing.T) {
	throttle := NewLocalThrottle(time.Hour)

	start := time.Now()
	if err := throttle.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("first call should not wait")
	}
}

func TestLocalThrottleSpacesFromRequestEnd(t *testing.T) {
	const delay = 50 * time.Millisecond
	var starts []time.Time
	var firstEnd time.Time
	next := ClientFunc(func(context.Context) (Credentials, error) {
		starts = append(starts, time.Now())
		if len(starts) == 1 {
			time.Sleep(80 * time.Millisecond)
			firstEnd = time.Now()
		}
		return Credentials{Address: "r", Secret: "s"}, nil
	})
	client := WithThrottle(next, NewLocalThrottle(delay))

	for i := 0; i < 2; i++ {
		if _, err := client.NewAccount(context.Background()); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if gap := starts[1].Sub(firstEnd); gap < delay {
		t.Fatalf("second request started %s after the first finished, want at least %s", gap, delay)
	}
}

func TestLocalThrottleOneRequestInFlight(t *testing.T) {
	throttle := NewLocalThrottle(0)
	if err := throttle.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := throttle.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the held slot to block, got %v", err)
	}

	throttle.Done(context.Background())
	if err := throttle.Wait(context.Background()); err != nil {
		t.Fatalf("wait after done: %v", err)
	}
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return mr, cache
}

func TestRedisThrottleSharesSlot(t *testing.T) {
	mr, cache := setupRedis(t)
	delay := 10 * time.Second

	first := NewRedisThrottle(cache, delay)
	if err := first.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	if ttl := mr.TTL(throttleKey); ttl != delay+inflightLease {
		t.Fatalf("expected in-flight ttl %s, got %s", delay+inflightLease, ttl)
	}
	first.Done(context.Background())
	if ttl := mr.TTL(throttleKey); ttl != delay {
		t.Fatalf("expected slot ttl %s after the request finished, got %s", delay, ttl)
	}

	// a second process sharing the same redis must wait for the slot
	second := NewRedisThrottle(cache, delay)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := second.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline while slot is held, got %v", err)
	}

	mr.FastForward(delay)
	if err := second.Wait(context.Background()); err != nil {
		t.Fatalf("wait after slot expired: %v", err)
	}
}

func TestRedisThrottleZeroDelay(t *testing.T) {
	mr, cache := setupRedis(t)

	throttle := NewRedisThrottle(cache, 0)
	if err := throttle.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if mr.Exists(throttleKey) {
		t.Fatal("zero delay should not reserve a slot")
	}
}
