package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"FAUCET_ENDPOINT", "CONF_FAUCETS_URL", "LEDGER_NODE_ENDPOINT", "CONF_RIPPLED_URL",
		"NETWORK_ID", "LOG_LEVEL", "STATE_BACKEND", "STATE_FILE", "DATABASE_URL", "REDIS_URL",
		faucetDelaySecondsVar, faucetDelayDurationVar, timeoutSecondsVar, timeoutDurationVar,
		"ACCOUNT_MODE", "EVR_CURRENCY", "TRUSTLINE_LIMIT", "TOTAL_SUPPLY", "DEVNET_PORT", "DEVNET_FAUCET_PER_MINUTE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FaucetEndpoint != defaultFaucetEndpoint {
		t.Fatalf("unexpected faucet endpoint %s", cfg.FaucetEndpoint)
	}
	if cfg.LedgerEndpoint != defaultLedgerEndpoint {
		t.Fatalf("unexpected ledger endpoint %s", cfg.LedgerEndpoint)
	}
	if cfg.NetworkID != 21338 {
		t.Fatalf("expected network id 21338, got %d", cfg.NetworkID)
	}
	if cfg.FaucetDelay != 10*time.Second {
		t.Fatalf("expected 10s faucet delay, got %s", cfg.FaucetDelay)
	}
	if cfg.StateBackend != StateBackendFile || cfg.StateFile != "accounts/accounts.json" {
		t.Fatalf("unexpected state settings %s %s", cfg.StateBackend, cfg.StateFile)
	}
	if cfg.AccountMode != AccountModeReuse {
		t.Fatalf("expected reuse mode, got %s", cfg.AccountMode)
	}
	if cfg.DevnetFaucetPerMinute != 30 {
		t.Fatalf("expected 30 faucet calls per minute, got %d", cfg.DevnetFaucetPerMinute)
	}
	if cfg.DevnetAddress() != ":6006" {
		t.Fatalf("unexpected devnet address %s", cfg.DevnetAddress())
	}
}

func TestLoadLegacyVariables(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONF_FAUCETS_URL", "http://localhost:6006/newcreds")
	t.Setenv("CONF_RIPPLED_URL", "ws://localhost:6006")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FaucetEndpoint != "http://localhost:6006/newcreds" {
		t.Fatalf("legacy faucet url ignored: %s", cfg.FaucetEndpoint)
	}
	if cfg.LedgerEndpoint != "ws://localhost:6006" {
		t.Fatalf("legacy rippled url ignored: %s", cfg.LedgerEndpoint)
	}

	t.Setenv("FAUCET_ENDPOINT", "http://faucet.local/newcreds")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FaucetEndpoint != "http://faucet.local/newcreds" {
		t.Fatalf("FAUCET_ENDPOINT should win, got %s", cfg.FaucetEndpoint)
	}
}

func TestLoadDurations(t *testing.T) {
	clearEnv(t)
	t.Setenv(faucetDelaySecondsVar, "3")
	t.Setenv(timeoutDurationVar, "1500ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FaucetDelay != 3*time.Second {
		t.Fatalf("expected 3s, got %s", cfg.FaucetDelay)
	}
	if cfg.RequestTimeout != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s, got %s", cfg.RequestTimeout)
	}

	t.Setenv(faucetDelaySecondsVar, "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected invalid delay error")
	}
}

func TestLoadValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv("STATE_BACKEND", "postgres")
	if _, err := Load(); err == nil {
		t.Fatal("expected DATABASE_URL error")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/evr")
	if _, err := Load(); err != nil {
		t.Fatalf("postgres backend with url: %v", err)
	}

	t.Setenv("ACCOUNT_MODE", "sometimes")
	if _, err := Load(); err == nil {
		t.Fatal("expected invalid account mode error")
	}

	clearEnv(t)
	t.Setenv("NETWORK_ID", "-1")
	if _, err := Load(); err == nil {
		t.Fatal("expected invalid network id error")
	}
}
