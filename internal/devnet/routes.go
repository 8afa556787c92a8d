package devnet

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/evr_bootstrap/internal/ledger"
	"github.com/congo-pay/evr_bootstrap/internal/middleware"
)

const replayTTL = 10 * time.Minute

// Deps aggregates what the devnet routes need.
type Deps struct {
	Node            *Node
	Cache           *redis.Client
	Logger          *slog.Logger
	FaucetPerMinute int
}

// Setup registers middlewares, the faucet, the JSON-RPC endpoint and health.
func Setup(app *fiber.App, d Deps) {
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	app.Get("/healthz", healthHandler(d))
	app.Post("/newcreds",
		middleware.FaucetRateLimit(d.Cache, d.FaucetPerMinute, d.Logger),
		middleware.Replay(d.Cache, replayTTL, d.Logger),
		faucetHandler(d),
	)
	app.Post("/", rpcHandler(d))
}

func faucetHandler(d Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		creds, err := d.Node.NewAccount()
		if err != nil {
			d.Logger.Error("faucet account failed", "error", err, "request_id", middleware.RequestIDFrom(c))
			return fiber.NewError(http.StatusInternalServerError, "could not create account")
		}
		d.Logger.Info("faucet account created", "address", creds.Address, "request_id", middleware.RequestIDFrom(c))
		return c.Status(http.StatusOK).JSON(creds)
	}
}

func rpcHandler(d Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req ledger.RPCRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil || req.Method == "" {
			return fiber.NewError(http.StatusBadRequest, "invalid json-rpc request")
		}
		c.Locals(middleware.RPCMethodLocal, req.Method)

		var params json.RawMessage
		if len(req.Params) > 0 {
			params = req.Params[0]
		}
		result := d.Node.Dispatch(c.UserContext(), req.Method, params)
		return c.Status(http.StatusOK).JSON(fiber.Map{"result": result})
	}
}

func healthHandler(d Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		redisStatus := "disabled"
		if d.Cache != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			redisStatus = "ok"
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				redisStatus = err.Error()
			}
		}

		status := http.StatusOK
		if redisStatus != "ok" && redisStatus != "disabled" {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":     fiber.Map{"ledger": "ok", "redis": redisStatus},
			"network_id": d.Node.networkID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}
