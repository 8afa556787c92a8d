package devnet

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/evr_bootstrap/internal/config"
	"github.com/congo-pay/evr_bootstrap/internal/ledger"
)

// Server wraps the Fiber application serving the local faucet and node.
type Server struct {
	app  *fiber.App
	node *Node
	addr string
}

// New builds a devnet server on a fresh simulated ledger.
func New(cfg config.Config, cache *redis.Client, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "evr-devnet",
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	node := NewNode(ledger.NewInMemory(), cfg.NetworkID)
	Setup(app, Deps{
		Node:            node,
		Cache:           cache,
		Logger:          logger,
		FaucetPerMinute: cfg.DevnetFaucetPerMinute,
	})

	return &Server{app: app, node: node, addr: cfg.DevnetAddress()}
}

// App exposes the Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Node returns the node behind the server.
func (s *Server) Node() *Node {
	return s.node
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
