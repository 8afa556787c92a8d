package infra

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/evr_bootstrap/internal/config"
)

// Backends holds the optional shared services a command may use. DB is only
// set for the postgres state backend and Cache only when REDIS_URL is set.
type Backends struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
}

// Open connects the backends the configuration asks for. On error anything
// already opened is closed again.
func Open(ctx context.Context, cfg config.Config) (*Backends, error) {
	b := &Backends{}

	if cfg.StateBackend == config.StateBackendPostgres {
		db, err := NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.DB = db
	}

	if cfg.RedisURL != "" {
		cache, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			b.Close(nil)
			return nil, err
		}
		b.Cache = cache
	}

	return b, nil
}

// Close releases every open backend.
func (b *Backends) Close(logger *slog.Logger) {
	if b == nil {
		return
	}
	if b.DB != nil {
		b.DB.Close()
		b.DB = nil
	}
	if b.Cache != nil {
		if err := b.Cache.Close(); err != nil && logger != nil {
			logger.Warn("close redis", "error", err)
		}
		b.Cache = nil
	}
}

// NewPostgresPool configures and returns a PostgreSQL connection pool.
func NewPostgresPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	// One operator process never needs more than a couple of connections.
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// NewRedisClient configures a Redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
