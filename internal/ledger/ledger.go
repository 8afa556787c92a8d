package ledger

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSubmission occurs when the ledger rejects a submitted transaction.
	ErrSubmission = errors.New("ledger rejected transaction")

	// ErrRPC indicates the node could not serve a request.
	ErrRPC = errors.New("ledger rpc failed")

	// ErrAccountNotFound is returned for addresses without a ledger entry.
	ErrAccountNotFound = errors.New("account not found")

	// ErrNotConnected is returned when a client is used outside Connect/Close.
	ErrNotConnected = errors.New("ledger client not connected")
)

const (
	// CurrencyEVR is the currency code issued by the issuer account.
	CurrencyEVR = "EVR"
	// DefaultTrustLineLimit is the limit used for every EVR trust line.
	DefaultTrustLineLimit = "9999999999999999e80"
	// TotalMintedEVR is the fixed supply paid to the foundation.
	TotalMintedEVR = "99999999999"

	// AsfDefaultRipple is the AccountSet flag enabling rippling by default.
	AsfDefaultRipple uint32 = 8
	// LsfDefaultRipple is the account root flag reported once rippling is enabled.
	LsfDefaultRipple uint32 = 0x00800000

	ResultSuccess       = "tesSUCCESS"
	ResultQueued        = "terQUEUED"
	ResultNoAccount     = "terNO_ACCOUNT"
	ResultBadAuth       = "tefBAD_AUTH"
	ResultBadAmount     = "temBAD_AMOUNT"
	ResultBadLimit      = "temBAD_LIMIT"
	ResultDisabled      = "temDISABLED"
	ResultNoDestination = "tecNO_DST"
	ResultPathDry       = "tecPATH_DRY"
	ResultUnfunded      = "tecUNFUNDED_PAYMENT"
)

// Account identifies a ledger account and the secret the node signs with.
type Account struct {
	Address string
	Secret  string
}

// TrustLine is one line of an account towards a peer, seen from the account.
type TrustLine struct {
	Account  string
	Currency string
	Balance  string
	Limit    string
}

// SubmissionError carries the engine result of a rejected transaction.
type SubmissionError struct {
	TransactionType string
	Result          string
	Message         string
}

func (e *SubmissionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s rejected: %s (%s)", e.TransactionType, e.Result, e.Message)
	}
	return fmt.Sprintf("%s rejected: %s", e.TransactionType, e.Result)
}

func (e *SubmissionError) Unwrap() error {
	return ErrSubmission
}

// Accepted reports whether an engine result means the transaction was applied
// or queued for the next ledger.
func Accepted(result string) bool {
	return result == ResultSuccess || result == ResultQueued
}

// Client defines the ledger operations the provisioning flow needs. A client
// holds one network connection between Connect and Close.
type Client interface {
	Connect(ctx context.Context) error
	Close() error

	ResolveAccount(ctx context.Context, secret string) (Account, error)
	AccountFlags(ctx context.Context, address string) (uint32, error)
	SetDefaultRipple(ctx context.Context, account Account) error
	TrustLines(ctx context.Context, address, currency, issuer string) ([]TrustLine, error)
	SetTrustLine(ctx context.Context, account Account, currency, issuer, limit string) error
	Pay(ctx context.Context, from Account, to, amount, currency, issuer string) error
}
