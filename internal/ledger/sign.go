package ledger

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	binarycodec "github.com/Peersyst/xrpl-go/binary-codec"
	"github.com/Peersyst/xrpl-go/xrpl/wallet"
)

// ErrInvalidSecret is returned for secrets that are not a valid family seed.
var ErrInvalidSecret = errors.New("invalid account secret")

// Signer holds the key pair derived from a family seed and signs
// transactions locally so the secret never leaves the process.
type Signer struct {
	Address   string
	PublicKey string

	wallet wallet.Wallet
}

// NewSigner derives the classic address and key pair for secret.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: secret is required", ErrInvalidSecret)
	}
	w, err := wallet.FromSeed(secret, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSecret, err)
	}
	return &Signer{
		Address:   string(w.ClassicAddress),
		PublicKey: strings.ToUpper(w.PublicKey),
		wallet:    w,
	}, nil
}

// Sign serializes tx, signs it and returns the hex blob with its hash.
func (s *Signer) Sign(tx TxJSON) (blob, hash string, err error) {
	if tx.Account != s.Address {
		return "", "", &SubmissionError{TransactionType: tx.TransactionType, Result: ResultBadAuth, Message: "secret does not match account"}
	}
	blob, hash, err = s.wallet.Sign(tx.Flatten())
	if err != nil {
		return "", "", fmt.Errorf("sign %s: %w", tx.TransactionType, err)
	}
	return blob, strings.ToUpper(hash), nil
}

// Flatten renders tx in the field layout the binary codec encodes.
func (tx TxJSON) Flatten() map[string]any {
	flat := map[string]any{
		"TransactionType": tx.TransactionType,
		"Account":         tx.Account,
		"Fee":             tx.Fee,
		"Sequence":        tx.Sequence,
		"Flags":           tx.Flags,
	}
	if tx.LastLedgerSequence != 0 {
		flat["LastLedgerSequence"] = tx.LastLedgerSequence
	}
	if tx.NetworkID != 0 {
		flat["NetworkID"] = tx.NetworkID
	}
	if tx.SetFlag != 0 {
		flat["SetFlag"] = tx.SetFlag
	}
	if tx.Destination != "" {
		flat["Destination"] = tx.Destination
	}
	if tx.Amount != nil {
		flat["Amount"] = tx.Amount.flatten()
	}
	if tx.LimitAmount != nil {
		flat["LimitAmount"] = tx.LimitAmount.flatten()
	}
	return flat
}

func (a IssuedAmount) flatten() map[string]any {
	return map[string]any{"currency": a.Currency, "issuer": a.Issuer, "value": a.Value}
}

// DecodeTx parses a signed transaction blob back into the submitted fields.
func DecodeTx(blob string) (TxJSON, error) {
	fields, err := binarycodec.Decode(blob)
	if err != nil {
		return TxJSON{}, fmt.Errorf("decode tx blob: %w", err)
	}

	var tx TxJSON
	tx.TransactionType = stringField(fields, "TransactionType")
	tx.Account = stringField(fields, "Account")
	tx.Destination = stringField(fields, "Destination")
	tx.Fee = stringField(fields, "Fee")
	tx.SigningPubKey = strings.ToUpper(stringField(fields, "SigningPubKey"))
	for name, dst := range map[string]*uint32{
		"Sequence":           &tx.Sequence,
		"LastLedgerSequence": &tx.LastLedgerSequence,
		"NetworkID":          &tx.NetworkID,
		"SetFlag":            &tx.SetFlag,
		"Flags":              &tx.Flags,
	} {
		if v, ok := fields[name]; ok {
			n, err := toUint32(v)
			if err != nil {
				return TxJSON{}, fmt.Errorf("decode tx blob: %s: %w", name, err)
			}
			*dst = n
		}
	}
	tx.Amount = issuedField(fields, "Amount")
	tx.LimitAmount = issuedField(fields, "LimitAmount")

	if tx.TransactionType == "" || tx.Account == "" {
		return TxJSON{}, fmt.Errorf("decode tx blob: TransactionType and Account are required")
	}
	return tx, nil
}

func stringField(fields map[string]any, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

// issuedField returns nil for native XRP amounts and missing fields.
func issuedField(fields map[string]any, name string) *IssuedAmount {
	m, ok := fields[name].(map[string]any)
	if !ok {
		return nil
	}
	return &IssuedAmount{
		Currency: stringField(m, "currency"),
		Issuer:   stringField(m, "issuer"),
		Value:    stringField(m, "value"),
	}
}

func toUint32(v any) (uint32, error) {
	var n uint64
	switch x := v.(type) {
	case uint32:
		return x, nil
	case uint16:
		return uint32(x), nil
	case uint8:
		return uint32(x), nil
	case uint64:
		n = x
	case int:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d", x)
		}
		n = uint64(x)
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d", x)
		}
		n = uint64(x)
	case float64:
		if x < 0 || x > math.MaxUint32 || x != math.Trunc(x) {
			return 0, fmt.Errorf("invalid value %v", x)
		}
		n = uint64(x)
	case string:
		parsed, err := strconv.ParseUint(x, 10, 32)
		if err != nil {
			return 0, err
		}
		n = parsed
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
	if n > math.MaxUint32 {
		return 0, fmt.Errorf("value %d overflows uint32", n)
	}
	return uint32(n), nil
}
