package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/congo-pay/evr_bootstrap/internal/devnet"
	"github.com/congo-pay/evr_bootstrap/internal/infra"
	"github.com/congo-pay/evr_bootstrap/internal/state"
)

const shutdownPeriod = 10 * time.Second

// Bootstrap returns the bootstrap command.
func Bootstrap() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the issuer and foundation accounts and mint the EVR supply",
		Long: `Bootstrap runs the whole issuance flow:

  1. create the issuer and foundation accounts from the faucet
  2. enable rippling on the issuer
  3. open the foundation trust line to the issuer
  4. mint the total supply to the foundation

Accounts already stored are reused unless ACCOUNT_MODE=recreate.
Minting is not deduplicated: every run issues the supply again.

Example:
  evrctl bootstrap`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBootstrap(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

// Fund returns the fund command.
func Fund() *cobra.Command {
	return &cobra.Command{
		Use:   "fund <recipient-secret> <amount>",
		Short: "Pay EVR from the foundation to a recipient account",
		Long: `Fund makes sure the recipient trusts the issuer and then pays the
amount from the foundation account. Running it twice pays twice.

Example:
  evrctl fund sn3nxiW7v8KXzPzAqzyHXbSSKNuN9 1000`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFund(cmd.Context(), cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

// TrustLine returns the trustline command.
func TrustLine() *cobra.Command {
	var currency, issuer string

	cmd := &cobra.Command{
		Use:   "trustline <secret>",
		Short: "Open a trust line from an account to the EVR issuer",
		Long: `TrustLine creates a trust line for the account behind the secret. Without
--currency and --issuer it trusts EVR issued by the stored issuer account.
An existing line is left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrustLine(cmd.Context(), cmd.OutOrStdout(), args[0], currency, issuer)
		},
	}

	cmd.Flags().StringVar(&currency, "currency", "", "Currency code to trust (requires --issuer)")
	cmd.Flags().StringVar(&issuer, "issuer", "", "Issuer address to trust (requires --currency)")
	cmd.MarkFlagsRequiredTogether("currency", "issuer")

	return cmd
}

// Accounts returns the accounts command.
func Accounts() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "Print the stored issuer and foundation accounts",
		Long:  "Accounts prints the stored account addresses and secrets.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), "accounts", runOptions{}, func(ctx context.Context, e env) error {
				records, err := e.seq.AccountDetails(ctx)
				if err != nil {
					return err
				}
				printAccountDetails(cmd.OutOrStdout(), records)
				return nil
			})
		},
	}
}

// Devnet returns the devnet command.
func Devnet() *cobra.Command {
	return &cobra.Command{
		Use:   "devnet",
		Short: "Serve a local simulated faucet and ledger node",
		Long: `Devnet serves POST /newcreds and a JSON-RPC endpoint on DEVNET_PORT,
backed by an in-memory ledger. Point FAUCET_ENDPOINT and
LEDGER_NODE_ENDPOINT at it to rehearse a bootstrap locally.

Example:
  evrctl devnet
  FAUCET_ENDPOINT=http://localhost:6006/newcreds \
  LEDGER_NODE_ENDPOINT=ws://localhost:6006 FAUCET_DELAY_SECONDS=0 evrctl bootstrap`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDevnet(cmd.Context())
		},
	}
}

func runBootstrap(ctx context.Context, out io.Writer) error {
	return run(ctx, "bootstrap", runOptions{connect: true}, func(ctx context.Context, e env) error {
		if err := e.seq.Bootstrap(ctx); err != nil {
			return err
		}
		records, err := e.seq.AccountDetails(ctx)
		if err != nil {
			return err
		}
		printAccountDetails(out, records)
		return nil
	})
}

func runFund(ctx context.Context, out io.Writer, secret, amount string) error {
	opts := runOptions{connect: true, requires: []state.Role{state.RoleIssuer, state.RoleFoundation}}
	return run(ctx, "fund", opts, func(ctx context.Context, e env) error {
		address, err := e.seq.FundRecipient(ctx, secret, amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s were issued from Foundation account to %s.\n", amount, e.cfg.Currency, address)
		return nil
	})
}

func runTrustLine(ctx context.Context, out io.Writer, secret, currency, issuer string) error {
	opts := runOptions{connect: true}
	if currency == "" && issuer == "" {
		opts.requires = []state.Role{state.RoleIssuer}
	}
	return run(ctx, "trustline", opts, func(ctx context.Context, e env) error {
		holder, err := e.seq.CreateTrustLine(ctx, secret, currency, issuer)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Trust line ready for %s.\n", holder.Address)
		return nil
	})
}

func runDevnet(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel).With("command", "devnet")

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			return err
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	srv := devnet.New(cfg, cache, logger)

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()
	logger.Info("devnet listening", "address", cfg.DevnetAddress(), "network_id", cfg.NetworkID)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
		}
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownPeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shutdown error", "error", err)
		return err
	}
	logger.Info("devnet exited cleanly")
	return nil
}
