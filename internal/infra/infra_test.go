package infra

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/congo-pay/evr_bootstrap/internal/config"
	"github.com/congo-pay/evr_bootstrap/internal/logging"
)

func TestOpenWithRedisOnly(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	cfg := config.Config{StateBackend: config.StateBackendFile, RedisURL: "redis://" + mr.Addr()}
	b, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if b.DB != nil {
		t.Fatal("file backend should not open postgres")
	}
	if b.Cache == nil {
		t.Fatal("expected redis client")
	}

	b.Close(logging.Discard())
	if b.Cache != nil {
		t.Fatal("close should drop the redis client")
	}
}

func TestOpenWithoutBackends(t *testing.T) {
	b, err := Open(context.Background(), config.Config{StateBackend: config.StateBackendFile})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if b.DB != nil || b.Cache != nil {
		t.Fatalf("expected no backends, got %+v", b)
	}
	b.Close(nil)
}

func TestNewRedisClientRequiresURL(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewPostgresPool(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty url")
	}
}
