package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
)

type lineKey struct {
	peer     string
	currency string
}

type line struct {
	// balance is seen from the holder side; positive means the peer owes the holder.
	balance *big.Rat
	limit   *big.Rat
	raw     string
}

type memAccount struct {
	secret string
	flags  uint32
	lines  map[lineKey]*line
}

// InMemory is a concurrency-safe simulated ledger useful for unit tests and
// the local devnet. It models account flags, trust lines and issued balances.
type InMemory struct {
	mu          sync.RWMutex
	accounts    map[string]*memAccount
	bySecret    map[string]string
	submissions map[string]int
	connects    int
	closes      int
}

// NewInMemory creates an empty simulated ledger.
func NewInMemory() *InMemory {
	return &InMemory{
		accounts:    make(map[string]*memAccount),
		bySecret:    make(map[string]string),
		submissions: make(map[string]int),
	}
}

// CreateAccount funds a new account for secret, or returns the existing one.
func (l *InMemory) CreateAccount(secret string) Account {
	return l.Fund(DeriveAddress(secret), secret)
}

// Fund creates address controlled by secret, or returns the existing
// account. Callers that derive real key pairs register them here.
func (l *InMemory) Fund(address, secret string) Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.accounts[address]; !exists {
		l.accounts[address] = &memAccount{secret: secret, lines: make(map[lineKey]*line)}
		l.bySecret[secret] = address
	}
	return Account{Address: address, Secret: secret}
}

// Connect records that a connection was opened.
func (l *InMemory) Connect(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connects++
	return nil
}

// Close records that the connection was released.
func (l *InMemory) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closes++
	return nil
}

// Connections reports how many times Connect and Close were called.
func (l *InMemory) Connections() (connects, closes int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connects, l.closes
}

// Submissions reports how many transactions of txType were applied.
func (l *InMemory) Submissions(txType string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.submissions[txType]
}

// ResolveAccount returns the funded account for secret, or derives its
// address when none exists.
func (l *InMemory) ResolveAccount(_ context.Context, secret string) (Account, error) {
	if secret == "" {
		return Account{}, fmt.Errorf("secret is required")
	}
	l.mu.RLock()
	address, ok := l.bySecret[secret]
	l.mu.RUnlock()
	if !ok {
		address = DeriveAddress(secret)
	}
	return Account{Address: address, Secret: secret}, nil
}

// AccountFlags returns the account root flags.
func (l *InMemory) AccountFlags(_ context.Context, address string) (uint32, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.accounts[address]
	if !ok {
		return 0, fmt.Errorf("%s: %w", address, ErrAccountNotFound)
	}
	return acc.flags, nil
}

// SetDefaultRipple applies AccountSet with asfDefaultRipple.
func (l *InMemory) SetDefaultRipple(_ context.Context, account Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.signer("AccountSet", account)
	if err != nil {
		return err
	}
	acc.flags |= LsfDefaultRipple
	l.submissions["AccountSet"]++
	return nil
}

// TrustLines lists the lines of address towards issuer in currency. Empty
// currency or issuer match every line.
func (l *InMemory) TrustLines(_ context.Context, address, currency, issuer string) ([]TrustLine, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, ok := l.accounts[address]
	if !ok {
		return nil, fmt.Errorf("%s: %w", address, ErrAccountNotFound)
	}

	var out []TrustLine
	for key, ln := range acc.lines {
		if currency != "" && key.currency != currency {
			continue
		}
		if issuer != "" && key.peer != issuer {
			continue
		}
		out = append(out, TrustLine{
			Account:  key.peer,
			Currency: key.currency,
			Balance:  formatAmount(ln.balance),
			Limit:    ln.raw,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Account == out[j].Account {
			return out[i].Currency < out[j].Currency
		}
		return out[i].Account < out[j].Account
	})
	return out, nil
}

// SetTrustLine creates or updates the holder's line to issuer.
func (l *InMemory) SetTrustLine(_ context.Context, account Account, currency, issuer, limit string) error {
	const txType = "TrustSet"

	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.signer(txType, account)
	if err != nil {
		return err
	}
	if issuer == account.Address || currency == "" {
		return &SubmissionError{TransactionType: txType, Result: ResultDisabled, Message: "malformed trust line"}
	}
	if _, ok := l.accounts[issuer]; !ok {
		return &SubmissionError{TransactionType: txType, Result: ResultNoDestination, Message: "issuer does not exist"}
	}
	lim, ok := parseAmount(limit)
	if !ok || lim.Sign() < 0 {
		return &SubmissionError{TransactionType: txType, Result: ResultBadLimit, Message: "invalid limit " + limit}
	}

	key := lineKey{peer: issuer, currency: currency}
	if ln, exists := acc.lines[key]; exists {
		ln.limit = lim
		ln.raw = limit
	} else {
		acc.lines[key] = &line{balance: new(big.Rat), limit: lim, raw: limit}
	}
	l.submissions[txType]++
	return nil
}

// Pay moves an issued amount. The issuer can mint to any holder with a line;
// other senders need a balance and the issuer must allow rippling.
func (l *InMemory) Pay(_ context.Context, from Account, to, amount, currency, issuer string) error {
	const txType = "Payment"

	l.mu.Lock()
	defer l.mu.Unlock()

	sender, err := l.signer(txType, from)
	if err != nil {
		return err
	}
	value, ok := parseAmount(amount)
	if !ok || value.Sign() <= 0 {
		return &SubmissionError{TransactionType: txType, Result: ResultBadAmount, Message: "invalid amount " + amount}
	}
	if _, ok := l.accounts[to]; !ok {
		return &SubmissionError{TransactionType: txType, Result: ResultNoDestination, Message: "destination does not exist"}
	}
	issuerAcc, ok := l.accounts[issuer]
	if !ok {
		return &SubmissionError{TransactionType: txType, Result: ResultNoDestination, Message: "issuer does not exist"}
	}

	key := lineKey{peer: issuer, currency: currency}

	// redeeming back to the issuer
	if to == issuer {
		ln, ok := sender.lines[key]
		if !ok || ln.balance.Cmp(value) < 0 {
			return &SubmissionError{TransactionType: txType, Result: ResultUnfunded, Message: "insufficient balance"}
		}
		ln.balance.Sub(ln.balance, value)
		l.submissions[txType]++
		return nil
	}

	recipient := l.accounts[to]
	dst, ok := recipient.lines[key]
	if !ok {
		return &SubmissionError{TransactionType: txType, Result: ResultPathDry, Message: "destination has no trust line"}
	}
	next := new(big.Rat).Add(dst.balance, value)
	if next.Cmp(dst.limit) > 0 {
		return &SubmissionError{TransactionType: txType, Result: ResultPathDry, Message: "destination trust line limit exceeded"}
	}

	if from.Address != issuer {
		if issuerAcc.flags&LsfDefaultRipple == 0 {
			return &SubmissionError{TransactionType: txType, Result: ResultPathDry, Message: "issuer does not allow rippling"}
		}
		src, ok := sender.lines[key]
		if !ok || src.balance.Cmp(value) < 0 {
			return &SubmissionError{TransactionType: txType, Result: ResultUnfunded, Message: "insufficient balance"}
		}
		src.balance.Sub(src.balance, value)
	}

	dst.balance = next
	l.submissions[txType]++
	return nil
}

// Balance returns the holder's balance of currency issued by issuer.
func (l *InMemory) Balance(address, currency, issuer string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.accounts[address]
	if !ok {
		return "0"
	}
	ln, ok := acc.lines[lineKey{peer: issuer, currency: currency}]
	if !ok {
		return "0"
	}
	return formatAmount(ln.balance)
}

// signer must be called with l.mu held.
func (l *InMemory) signer(txType string, account Account) (*memAccount, error) {
	badAuth := &SubmissionError{TransactionType: txType, Result: ResultBadAuth, Message: "secret does not match account"}
	if account.Secret == "" {
		return nil, badAuth
	}
	acc, ok := l.accounts[account.Address]
	if !ok {
		if DeriveAddress(account.Secret) != account.Address {
			return nil, badAuth
		}
		return nil, &SubmissionError{TransactionType: txType, Result: ResultNoAccount, Message: "source account does not exist"}
	}
	if acc.secret != account.Secret {
		return nil, badAuth
	}
	return acc, nil
}

func parseAmount(s string) (*big.Rat, bool) {
	if s == "" {
		return nil, false
	}
	return new(big.Rat).SetString(s)
}

func formatAmount(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	return strings.TrimRight(strings.TrimRight(r.FloatString(15), "0"), ".")
}
