package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/evr_bootstrap/internal/faucet"
	"github.com/congo-pay/evr_bootstrap/internal/ledger"
	"github.com/congo-pay/evr_bootstrap/internal/state"
)

// AccountMode decides what CreateAccounts does with roles already stored.
type AccountMode string

const (
	// ModeReuse keeps stored roles and persists each new role as soon as it exists.
	ModeReuse AccountMode = "reuse"
	// ModeRecreate requests fresh accounts for every role and replaces the
	// stored state once all of them were created.
	ModeRecreate AccountMode = "recreate"

	lockName = "evr"
	lockTTL  = 15 * time.Minute
)

// Options holds the token parameters of a run.
type Options struct {
	Currency       string
	TrustLineLimit string
	TotalSupply    string
	AccountMode    AccountMode
}

// DefaultOptions returns the EVR issuance parameters.
func DefaultOptions() Options {
	return Options{
		Currency:       ledger.CurrencyEVR,
		TrustLineLimit: ledger.DefaultTrustLineLimit,
		TotalSupply:    ledger.TotalMintedEVR,
		AccountMode:    ModeReuse,
	}
}

// Deps aggregates the collaborators a Sequencer calls into.
type Deps struct {
	Store  state.Store
	Faucet faucet.Client
	Ledger ledger.Client
	Lock   Lock
	Logger *slog.Logger
}

// Sequencer runs the provisioning steps against an already connected ledger
// client. It never connects or closes the client itself.
type Sequencer struct {
	store  state.Store
	faucet faucet.Client
	ledger ledger.Client
	lock   Lock
	opts   Options
	logger *slog.Logger
}

// NewSequencer validates deps and fills defaults for empty options.
func NewSequencer(d Deps, opts Options) (*Sequencer, error) {
	if d.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if d.Ledger == nil {
		return nil, fmt.Errorf("ledger client is required")
	}
	if d.Lock == nil {
		d.Lock = NoopLock{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	defaults := DefaultOptions()
	if opts.Currency == "" {
		opts.Currency = defaults.Currency
	}
	if opts.TrustLineLimit == "" {
		opts.TrustLineLimit = defaults.TrustLineLimit
	}
	if opts.TotalSupply == "" {
		opts.TotalSupply = defaults.TotalSupply
	}
	switch opts.AccountMode {
	case "":
		opts.AccountMode = defaults.AccountMode
	case ModeReuse, ModeRecreate:
	default:
		return nil, fmt.Errorf("unknown account mode %q", opts.AccountMode)
	}

	return &Sequencer{
		store:  d.Store,
		faucet: d.Faucet,
		ledger: d.Ledger,
		lock:   d.Lock,
		opts:   opts,
		logger: d.Logger,
	}, nil
}

// CreateAccounts requests a faucet account for every role in state.Roles.
func (s *Sequencer) CreateAccounts(ctx context.Context) (state.State, error) {
	if s.faucet == nil {
		return nil, fmt.Errorf("faucet client is required")
	}

	current, err := s.startingState(ctx)
	if err != nil {
		return nil, err
	}

	for _, role := range state.Roles {
		if current.Has(role) {
			rec, _ := current.Get(role)
			s.logger.Info("reusing stored account", "role", role, "address", rec.Address)
			continue
		}

		creds, err := s.faucet.NewAccount(ctx)
		if err != nil {
			if !errors.Is(err, faucet.ErrFaucet) {
				err = fmt.Errorf("%w: %w", faucet.ErrFaucet, err)
			}
			return nil, fmt.Errorf("create %s account: %w", role, err)
		}

		rec := state.AccountRecord{Role: role, Address: creds.Address, Secret: creds.Secret}
		if err := current.Put(rec); err != nil {
			return nil, fmt.Errorf("create %s account: %w", role, err)
		}
		s.logger.Info("created account", "role", role, "address", rec.Address)

		if s.opts.AccountMode == ModeReuse {
			if err := s.store.Save(ctx, current); err != nil {
				return nil, fmt.Errorf("persist %s account: %w", role, err)
			}
		}
	}

	if s.opts.AccountMode == ModeRecreate {
		if err := s.replaceStored(ctx, current); err != nil {
			return nil, fmt.Errorf("persist accounts: %w", err)
		}
	}

	return current, nil
}

// replaceStored writes a recreated state over the stored one. Insert-only
// stores swap their records atomically through Replace.
func (s *Sequencer) replaceStored(ctx context.Context, current state.State) error {
	if r, ok := s.store.(state.Replacer); ok {
		return r.Replace(ctx, current)
	}
	return s.store.Save(ctx, current)
}

func (s *Sequencer) startingState(ctx context.Context) (state.State, error) {
	stored, err := s.store.Load(ctx)
	noState := errors.Is(err, state.ErrNoState)
	if err != nil && !noState {
		return nil, err
	}

	if s.opts.AccountMode == ModeRecreate {
		if !noState && len(stored) > 0 {
			s.logger.Warn("recreating accounts, stored accounts will be abandoned", "roles", len(stored))
		}
		return state.New(), nil
	}
	if noState {
		return state.New(), nil
	}
	return stored, nil
}

// EnableRippling sets asfDefaultRipple on the issuer unless the flag is
// already set.
func (s *Sequencer) EnableRippling(ctx context.Context, issuer state.AccountRecord) error {
	flags, err := s.ledger.AccountFlags(ctx, issuer.Address)
	if err != nil {
		return fmt.Errorf("read issuer flags: %w", err)
	}
	if flags&ledger.LsfDefaultRipple != 0 {
		s.logger.Info("rippling already enabled", "address", issuer.Address)
		return nil
	}

	if err := s.ledger.SetDefaultRipple(ctx, accountOf(issuer)); err != nil {
		return fmt.Errorf("enable rippling: %w", err)
	}
	s.logger.Info("enabled rippling on issuer account", "address", issuer.Address)
	return nil
}

// EnsureTrustLine creates a trust line from holder to issuer only when none
// exists for currency. It reports whether a TrustSet was submitted.
func (s *Sequencer) EnsureTrustLine(ctx context.Context, holder ledger.Account, currency, issuer, limit string) (bool, error) {
	lines, err := s.ledger.TrustLines(ctx, holder.Address, currency, issuer)
	if err != nil {
		return false, fmt.Errorf("query trust lines: %w", err)
	}
	if len(lines) > 0 {
		s.logger.Info("trust line already present", "holder", holder.Address, "currency", currency, "issuer", issuer)
		return false, nil
	}

	if err := s.ledger.SetTrustLine(ctx, holder, currency, issuer, limit); err != nil {
		return false, fmt.Errorf("set trust line: %w", err)
	}
	s.logger.Info("trust line created", "holder", holder.Address, "currency", currency, "issuer", issuer, "limit", limit)
	return true, nil
}

// MintAndDistribute pays totalSupply from the issuer to the foundation.
// Every call issues the amount again.
func (s *Sequencer) MintAndDistribute(ctx context.Context, issuer, foundation state.AccountRecord, totalSupply string) error {
	if err := validateAmount(totalSupply); err != nil {
		return err
	}
	if err := s.ledger.Pay(ctx, accountOf(issuer), foundation.Address, totalSupply, s.opts.Currency, issuer.Address); err != nil {
		return fmt.Errorf("mint to foundation: %w", err)
	}
	s.logger.Info("issued tokens to foundation", "amount", totalSupply, "currency", s.opts.Currency, "foundation", foundation.Address)
	return nil
}

// FundRecipient makes sure the recipient trusts the issuer and pays amount
// from the foundation. It returns the recipient address. The payment is not
// deduplicated; running it twice pays twice.
func (s *Sequencer) FundRecipient(ctx context.Context, recipientSecret, amount string) (string, error) {
	release, err := s.lock.Acquire(ctx, lockName, lockTTL)
	if err != nil {
		return "", err
	}
	defer release()

	current, err := s.loadRoles(ctx, state.RoleIssuer, state.RoleFoundation)
	if err != nil {
		return "", err
	}
	if err := validateAmount(amount); err != nil {
		return "", err
	}
	issuer, _ := current.Get(state.RoleIssuer)
	foundation, _ := current.Get(state.RoleFoundation)

	recipient, err := s.ledger.ResolveAccount(ctx, recipientSecret)
	if err != nil {
		return "", err
	}
	if _, err := s.EnsureTrustLine(ctx, recipient, s.opts.Currency, issuer.Address, s.opts.TrustLineLimit); err != nil {
		return "", err
	}

	if err := s.ledger.Pay(ctx, accountOf(foundation), recipient.Address, amount, s.opts.Currency, issuer.Address); err != nil {
		return "", fmt.Errorf("pay recipient: %w", err)
	}
	s.logger.Info("funded recipient from foundation", "amount", amount, "currency", s.opts.Currency, "recipient", recipient.Address)
	return recipient.Address, nil
}

// CreateTrustLine ensures the account behind secret trusts issuer for
// currency. With both left empty it trusts the configured currency of the
// stored issuer.
func (s *Sequencer) CreateTrustLine(ctx context.Context, secret, currency, issuer string) (ledger.Account, error) {
	if (currency == "") != (issuer == "") {
		return ledger.Account{}, fmt.Errorf("currency and issuer must be given together")
	}
	if currency == "" {
		current, err := s.loadRoles(ctx, state.RoleIssuer)
		if err != nil {
			return ledger.Account{}, err
		}
		rec, _ := current.Get(state.RoleIssuer)
		currency, issuer = s.opts.Currency, rec.Address
	}

	holder, err := s.ledger.ResolveAccount(ctx, secret)
	if err != nil {
		return ledger.Account{}, err
	}
	if _, err := s.EnsureTrustLine(ctx, holder, currency, issuer, s.opts.TrustLineLimit); err != nil {
		return ledger.Account{}, err
	}
	return holder, nil
}

type step struct {
	to  Stage
	run func(ctx context.Context) error
}

// Bootstrap runs the whole issuance flow. Each step after account creation
// reloads the stored state, so a step sees exactly what was persisted. The
// first failure stops the run and is returned as a *StageError.
func (s *Sequencer) Bootstrap(ctx context.Context) error {
	release, err := s.lock.Acquire(ctx, lockName, lockTTL)
	if err != nil {
		return err
	}
	defer release()

	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID)

	steps := []step{
		{to: StageAccountsCreated, run: func(ctx context.Context) error {
			_, err := s.CreateAccounts(ctx)
			return err
		}},
		{to: StageRipplingEnabled, run: func(ctx context.Context) error {
			current, err := s.loadRoles(ctx, state.RoleIssuer)
			if err != nil {
				return err
			}
			issuer, _ := current.Get(state.RoleIssuer)
			return s.EnableRippling(ctx, issuer)
		}},
		{to: StageFoundationTrustLineEnsured, run: func(ctx context.Context) error {
			current, err := s.loadRoles(ctx, state.RoleIssuer, state.RoleFoundation)
			if err != nil {
				return err
			}
			issuer, _ := current.Get(state.RoleIssuer)
			foundation, _ := current.Get(state.RoleFoundation)
			_, err = s.EnsureTrustLine(ctx, accountOf(foundation), s.opts.Currency, issuer.Address, s.opts.TrustLineLimit)
			return err
		}},
		{to: StageTokensMinted, run: func(ctx context.Context) error {
			current, err := s.loadRoles(ctx, state.RoleIssuer, state.RoleFoundation)
			if err != nil {
				return err
			}
			issuer, _ := current.Get(state.RoleIssuer)
			foundation, _ := current.Get(state.RoleFoundation)
			return s.MintAndDistribute(ctx, issuer, foundation, s.opts.TotalSupply)
		}},
	}

	stage := StageStart
	logger.Info("bootstrap started", "stage", stage, "account_mode", s.opts.AccountMode)
	for _, st := range steps {
		if err := st.run(ctx); err != nil {
			logger.Error("bootstrap step failed", "from", stage, "to", st.to, "error", err)
			return &StageError{From: stage, To: st.to, Err: err}
		}
		stage = st.to
		logger.Info("bootstrap step completed", "stage", stage)
	}

	logger.Info("bootstrap finished", "stage", StageDone)
	return nil
}

// AccountDetails returns the stored records in creation order.
func (s *Sequencer) AccountDetails(ctx context.Context) ([]state.AccountRecord, error) {
	current, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	var out []state.AccountRecord
	for _, role := range state.Roles {
		if rec, ok := current.Get(role); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Sequencer) loadRoles(ctx context.Context, roles ...state.Role) (state.State, error) {
	current, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := state.RequireRoles(current, roles...); err != nil {
		return nil, err
	}
	return current, nil
}

func accountOf(rec state.AccountRecord) ledger.Account {
	return ledger.Account{Address: rec.Address, Secret: rec.Secret}
}

func validateAmount(amount string) error {
	if strings.Contains(amount, "/") {
		return fmt.Errorf("amount must be a positive decimal, got %q", amount)
	}
	v, ok := new(big.Rat).SetString(amount)
	if !ok || v.Sign() <= 0 {
		return fmt.Errorf("amount must be a positive decimal, got %q", amount)
	}
	return nil
}
