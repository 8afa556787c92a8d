package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/congo-pay/evr_bootstrap/internal/config"
	"github.com/congo-pay/evr_bootstrap/internal/faucet"
	"github.com/congo-pay/evr_bootstrap/internal/infra"
	"github.com/congo-pay/evr_bootstrap/internal/ledger"
	"github.com/congo-pay/evr_bootstrap/internal/logging"
	"github.com/congo-pay/evr_bootstrap/internal/provision"
	"github.com/congo-pay/evr_bootstrap/internal/state"
)

// Factory variables, replaced in tests.
var (
	loadConfig   = config.Load
	newLogger    = logging.New
	openBackends = infra.Open

	newLedgerClient = func(cfg config.Config) ledger.Client {
		return ledger.NewRPCClient(cfg.LedgerEndpoint, cfg.NetworkID, cfg.RequestTimeout)
	}
	newFaucetClient = func(cfg config.Config) faucet.Client {
		return faucet.NewHTTPClient(cfg.FaucetEndpoint, cfg.RequestTimeout)
	}
)

// env is what a command body works with.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	seq    *provision.Sequencer
}

// runOptions selects what run prepares before calling the command body.
type runOptions struct {
	// connect opens the ledger connection; it is closed on every return path.
	connect bool
	// requires lists roles that must be stored before anything touches the network.
	requires []state.Role
}

// run wires configuration, backends, the state store and the sequencer, then
// calls fn.
func run(ctx context.Context, name string, opts runOptions, fn func(ctx context.Context, e env) error) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel).With("command", name)
	defer func() {
		if err != nil {
			logger.Error("command failed", "error", err)
		}
	}()

	backends, err := openBackends(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open backends: %w", err)
	}
	defer backends.Close(logger)

	store, err := buildStore(ctx, cfg, backends)
	if err != nil {
		return err
	}

	if len(opts.requires) > 0 {
		current, err := store.Load(ctx)
		if err != nil {
			return err
		}
		if err := state.RequireRoles(current, opts.requires...); err != nil {
			return err
		}
	}

	client := newLedgerClient(cfg)
	if opts.connect {
		if err := client.Connect(ctx); err != nil {
			return err
		}
		defer func() {
			if cerr := client.Close(); cerr != nil {
				logger.Warn("close ledger connection", "error", cerr)
			}
		}()
	}

	seq, err := provision.NewSequencer(provision.Deps{
		Store:  store,
		Faucet: faucet.WithThrottle(newFaucetClient(cfg), buildThrottle(cfg, backends)),
		Ledger: client,
		Lock:   buildLock(backends),
		Logger: logger,
	}, provision.Options{
		Currency:       cfg.Currency,
		TrustLineLimit: cfg.TrustLineLimit,
		TotalSupply:    cfg.TotalSupply,
		AccountMode:    provision.AccountMode(cfg.AccountMode),
	})
	if err != nil {
		return err
	}

	return fn(ctx, env{cfg: cfg, logger: logger, seq: seq})
}

func buildStore(ctx context.Context, cfg config.Config, b *infra.Backends) (state.Store, error) {
	if cfg.StateBackend != config.StateBackendPostgres {
		return state.NewFileStore(cfg.StateFile), nil
	}
	if b.DB == nil {
		return nil, fmt.Errorf("postgres state backend selected but no database is open")
	}
	store := state.NewPostgresStore(b.DB)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func buildThrottle(cfg config.Config, b *infra.Backends) faucet.Throttle {
	if b.Cache != nil {
		return faucet.NewRedisThrottle(b.Cache, cfg.FaucetDelay)
	}
	return faucet.NewLocalThrottle(cfg.FaucetDelay)
}

func buildLock(b *infra.Backends) provision.Lock {
	if b.Cache != nil {
		return provision.NewRedisLock(b.Cache)
	}
	return provision.NoopLock{}
}
