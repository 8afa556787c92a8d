package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const faucetRateLimitPrefix = "rl:faucet:"

// FaucetRateLimit caps account creation per client IP within a one minute
// window. Without Redis it lets every request through; on cache errors it
// fails open.
func FaucetRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 30
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}

		ctx := c.UserContext()
		key := faucetRateLimitPrefix + c.IP()
		cnt, err := cache.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("faucet rate limit unavailable", "error", err)
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(ctx, key, time.Minute)
		}

		if cnt > int64(maxPerMin) {
			if ttl, err := cache.TTL(ctx, key).Result(); err == nil && ttl > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(ttl.Round(time.Second)/time.Second)))
			}
			return fiber.NewError(fiber.StatusTooManyRequests, "faucet limit reached, try again later")
		}
		return c.Next()
	}
}
