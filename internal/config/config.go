package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultFaucetEndpoint  = "https://xahau-test.net/newcreds"
	defaultLedgerEndpoint  = "wss://xahau-test.net"
	defaultNetworkID       = 21338
	defaultLogLevel        = "info"
	defaultStateBackend    = StateBackendFile
	defaultStateFile       = "accounts/accounts.json"
	defaultFaucetDelay     = 10 * time.Second
	defaultRequestTimeout  = 30 * time.Second
	defaultAccountMode     = AccountModeReuse
	defaultCurrency        = "EVR"
	defaultTrustLineLimit  = "9999999999999999e80"
	defaultTotalSupply     = "99999999999"
	defaultDevnetPort      = "6006"
	defaultDevnetFaucetMax = 30
	faucetDelaySecondsVar  = "FAUCET_DELAY_SECONDS"
	faucetDelayDurationVar = "FAUCET_DELAY"
	timeoutSecondsVar      = "REQUEST_TIMEOUT_SECONDS"
	timeoutDurationVar     = "REQUEST_TIMEOUT"
)

const (
	// StateBackendFile keeps provisioning state in a JSON file.
	StateBackendFile = "file"
	// StateBackendPostgres keeps provisioning state in PostgreSQL.
	StateBackendPostgres = "postgres"

	// AccountModeReuse keeps roles that already exist in the state store.
	AccountModeReuse = "reuse"
	// AccountModeRecreate always requests fresh faucet accounts and replaces the stored state.
	AccountModeRecreate = "recreate"
)

// Config captures runtime configuration loaded from environment variables.
type Config struct {
	FaucetEndpoint string
	LedgerEndpoint string
	NetworkID      uint32
	LogLevel       string
	StateBackend   string
	StateFile      string
	DatabaseURL    string
	RedisURL       string
	FaucetDelay    time.Duration
	RequestTimeout time.Duration
	AccountMode    string
	Currency       string
	TrustLineLimit string
	TotalSupply    string
	DevnetPort     string

	// DevnetFaucetPerMinute caps /newcreds calls per client IP when Redis is set.
	DevnetFaucetPerMinute int
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		FaucetEndpoint: getEnv("FAUCET_ENDPOINT", getEnv("CONF_FAUCETS_URL", defaultFaucetEndpoint)),
		LedgerEndpoint: getEnv("LEDGER_NODE_ENDPOINT", getEnv("CONF_RIPPLED_URL", defaultLedgerEndpoint)),
		NetworkID:      defaultNetworkID,
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		StateBackend:   strings.ToLower(getEnv("STATE_BACKEND", defaultStateBackend)),
		StateFile:      getEnv("STATE_FILE", defaultStateFile),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		FaucetDelay:    defaultFaucetDelay,
		RequestTimeout: defaultRequestTimeout,
		AccountMode:    strings.ToLower(getEnv("ACCOUNT_MODE", defaultAccountMode)),
		Currency:       getEnv("EVR_CURRENCY", defaultCurrency),
		TrustLineLimit: getEnv("TRUSTLINE_LIMIT", defaultTrustLineLimit),
		TotalSupply:    getEnv("TOTAL_SUPPLY", defaultTotalSupply),
		DevnetPort:     getEnv("DEVNET_PORT", defaultDevnetPort),
	}

	if v := os.Getenv("NETWORK_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("invalid NETWORK_ID: %w", err)
		}
		cfg.NetworkID = uint32(id)
	}

	cfg.DevnetFaucetPerMinute = defaultDevnetFaucetMax
	if v := os.Getenv("DEVNET_FAUCET_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid DEVNET_FAUCET_PER_MINUTE %q", v)
		}
		cfg.DevnetFaucetPerMinute = n
	}

	d, err := durationFromEnv(faucetDelaySecondsVar, faucetDelayDurationVar, defaultFaucetDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.FaucetDelay = d

	d, err = durationFromEnv(timeoutSecondsVar, timeoutDurationVar, defaultRequestTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RequestTimeout = d

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.StateBackend {
	case StateBackendFile:
		if c.StateFile == "" {
			return fmt.Errorf("STATE_FILE must be set")
		}
	case StateBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when STATE_BACKEND=%s", StateBackendPostgres)
		}
	default:
		return fmt.Errorf("invalid STATE_BACKEND %q", c.StateBackend)
	}

	switch c.AccountMode {
	case AccountModeReuse, AccountModeRecreate:
	default:
		return fmt.Errorf("invalid ACCOUNT_MODE %q", c.AccountMode)
	}

	if c.FaucetEndpoint == "" {
		return fmt.Errorf("FAUCET_ENDPOINT must be set")
	}
	if c.LedgerEndpoint == "" {
		return fmt.Errorf("LEDGER_NODE_ENDPOINT must be set")
	}
	if c.FaucetDelay < 0 {
		return fmt.Errorf("faucet delay must not be negative")
	}
	return nil
}

// DevnetAddress returns the listen address in the format Fiber expects.
func (c Config) DevnetAddress() string {
	if strings.HasPrefix(c.DevnetPort, ":") {
		return c.DevnetPort
	}
	return fmt.Sprintf(":%s", c.DevnetPort)
}

func durationFromEnv(secondsVar, durationVar string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsVar, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationVar, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
