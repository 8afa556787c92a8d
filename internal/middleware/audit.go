package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RPCMethodLocal is the Locals key handlers use to expose the JSON-RPC method
// of a request to the audit log.
const RPCMethodLocal = "rpc_method"

// Audit emits one structured log line per request.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Int("status", c.Response().StatusCode()),
			slog.Duration("duration", time.Since(start)),
		}
		if id := RequestIDFrom(c); id != "" {
			attrs = append(attrs, slog.String("request_id", id))
		}
		if rpc, ok := c.Locals(RPCMethodLocal).(string); ok && rpc != "" {
			attrs = append(attrs, slog.String("rpc_method", rpc))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			logger.Error("request failed", attrs...)
			return err
		}

		logger.Debug("request completed", attrs...)
		return nil
	}
}
