package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultFeeMultMax   = 1000
	defaultPollInterval = time.Second
	defaultValidateWait = 60 * time.Second
	lastLedgerOffset    = 20
	errActNotFound      = "actNotFound"
	errTxnNotFound      = "txnNotFound"
)

// RPCOption tunes an RPCClient.
type RPCOption func(*RPCClient)

// WithPollInterval sets how often a submitted transaction is checked for validation.
func WithPollInterval(d time.Duration) RPCOption {
	return func(c *RPCClient) {
		c.pollInterval = d
	}
}

// WithValidationTimeout bounds how long a submission waits to be validated.
func WithValidationTimeout(d time.Duration) RPCOption {
	return func(c *RPCClient) {
		c.validateWait = d
	}
}

// RPCClient talks to a rippled-compatible node over JSON-RPC. Transactions
// are autofilled, signed locally and submitted as blobs, so only public
// methods are used and secrets never reach the node.
type RPCClient struct {
	endpoint     string
	networkID    uint32
	timeout      time.Duration
	pollInterval time.Duration
	validateWait time.Duration

	mu   sync.Mutex
	http *fiber.Client
}

// NewRPCClient builds a client for endpoint. WebSocket URLs are mapped to the
// HTTP(S) JSON-RPC endpoint on the same host.
func NewRPCClient(endpoint string, networkID uint32, timeout time.Duration, opts ...RPCOption) *RPCClient {
	c := &RPCClient{
		endpoint:     HTTPEndpoint(endpoint),
		networkID:    networkID,
		timeout:      timeout,
		pollInterval: defaultPollInterval,
		validateWait: defaultValidateWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPEndpoint rewrites ws:// and wss:// URLs to http:// and https://.
func HTTPEndpoint(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "wss://"):
		return "https://" + strings.TrimPrefix(endpoint, "wss://")
	case strings.HasPrefix(endpoint, "ws://"):
		return "http://" + strings.TrimPrefix(endpoint, "ws://")
	default:
		return endpoint
	}
}

// Endpoint returns the JSON-RPC URL in use.
func (c *RPCClient) Endpoint() string {
	return c.endpoint
}

// Connect acquires the HTTP client and checks that the node serves the
// configured network.
func (c *RPCClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.http == nil {
		client := fiber.AcquireClient()
		client.UserAgent = "evrctl"
		c.http = client
	}
	c.mu.Unlock()

	var info ServerInfoResult
	if err := c.call(ctx, "server_info", struct{}{}, &info); err != nil {
		c.Close()
		return fmt.Errorf("connect %s: %w", c.endpoint, err)
	}
	if c.networkID != 0 && info.Info.NetworkID != 0 && info.Info.NetworkID != c.networkID {
		c.Close()
		return fmt.Errorf("connect %s: node serves network %d, expected %d", c.endpoint, info.Info.NetworkID, c.networkID)
	}
	return nil
}

// Close releases the HTTP client. It is safe to call more than once.
func (c *RPCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.http != nil {
		fiber.ReleaseClient(c.http)
		c.http = nil
	}
	return nil
}

// ResolveAccount derives the classic address of secret locally.
func (c *RPCClient) ResolveAccount(_ context.Context, secret string) (Account, error) {
	signer, err := NewSigner(secret)
	if err != nil {
		return Account{}, fmt.Errorf("resolve account: %w", err)
	}
	return Account{Address: signer.Address, Secret: secret}, nil
}

// AccountFlags returns the validated account root flags.
func (c *RPCClient) AccountFlags(ctx context.Context, address string) (uint32, error) {
	var res AccountInfoResult
	if err := c.call(ctx, "account_info", AccountParams{Account: address, LedgerIndex: "validated"}, &res); err != nil {
		return 0, fmt.Errorf("account info %s: %w", address, err)
	}
	return res.AccountData.Flags, nil
}

// SetDefaultRipple submits AccountSet with asfDefaultRipple.
func (c *RPCClient) SetDefaultRipple(ctx context.Context, account Account) error {
	return c.submit(ctx, account.Secret, TxJSON{
		TransactionType: "AccountSet",
		Account:         account.Address,
		SetFlag:         AsfDefaultRipple,
	})
}

// TrustLines lists the validated lines of address towards issuer in currency.
func (c *RPCClient) TrustLines(ctx context.Context, address, currency, issuer string) ([]TrustLine, error) {
	var res AccountLinesResult
	params := AccountParams{Account: address, Peer: issuer, LedgerIndex: "validated"}
	if err := c.call(ctx, "account_lines", params, &res); err != nil {
		return nil, fmt.Errorf("account lines %s: %w", address, err)
	}

	var out []TrustLine
	for _, ln := range res.Lines {
		if currency != "" && ln.Currency != currency {
			continue
		}
		if issuer != "" && ln.Account != issuer {
			continue
		}
		out = append(out, TrustLine{Account: ln.Account, Currency: ln.Currency, Balance: ln.Balance, Limit: ln.Limit})
	}
	return out, nil
}

// SetTrustLine submits TrustSet for the holder account.
func (c *RPCClient) SetTrustLine(ctx context.Context, account Account, currency, issuer, limit string) error {
	return c.submit(ctx, account.Secret, TxJSON{
		TransactionType: "TrustSet",
		Account:         account.Address,
		LimitAmount:     &IssuedAmount{Currency: currency, Issuer: issuer, Value: limit},
	})
}

// Pay submits a Payment of an issued currency.
func (c *RPCClient) Pay(ctx context.Context, from Account, to, amount, currency, issuer string) error {
	return c.submit(ctx, from.Secret, TxJSON{
		TransactionType: "Payment",
		Account:         from.Address,
		Destination:     to,
		Amount:          &IssuedAmount{Currency: currency, Issuer: issuer, Value: amount},
	})
}

func (c *RPCClient) submit(ctx context.Context, secret string, tx TxJSON) error {
	signer, err := NewSigner(secret)
	if err != nil {
		return fmt.Errorf("submit %s: %w", tx.TransactionType, err)
	}
	if signer.Address != tx.Account {
		return &SubmissionError{TransactionType: tx.TransactionType, Result: ResultBadAuth, Message: "secret does not match account"}
	}
	// Networks with an id above 1024 require it in every transaction.
	if c.networkID > 1024 {
		tx.NetworkID = c.networkID
	}
	if err := c.autofill(ctx, &tx); err != nil {
		return fmt.Errorf("submit %s: %w", tx.TransactionType, err)
	}

	blob, hash, err := signer.Sign(tx)
	if err != nil {
		return err
	}

	var res SubmitResult
	if err := c.call(ctx, "submit", SubmitParams{TxBlob: blob}, &res); err != nil {
		return fmt.Errorf("submit %s: %w", tx.TransactionType, err)
	}
	if !Accepted(res.EngineResult) {
		return &SubmissionError{TransactionType: tx.TransactionType, Result: res.EngineResult, Message: res.EngineResultMessage}
	}
	if res.TxJSON.Hash != "" {
		hash = res.TxJSON.Hash
	}
	return c.waitValidated(ctx, tx.TransactionType, hash)
}

// autofill sets Sequence, Fee and LastLedgerSequence from the open ledger.
func (c *RPCClient) autofill(ctx context.Context, tx *TxJSON) error {
	var info AccountInfoResult
	if err := c.call(ctx, "account_info", AccountParams{Account: tx.Account, LedgerIndex: "current"}, &info); err != nil {
		return fmt.Errorf("autofill sequence: %w", err)
	}
	tx.Sequence = info.AccountData.Sequence

	var fee FeeResult
	if err := c.call(ctx, "fee", struct{}{}, &fee); err != nil {
		return fmt.Errorf("autofill fee: %w", err)
	}
	drops, err := pickFee(fee)
	if err != nil {
		return fmt.Errorf("autofill fee: %w", err)
	}
	tx.Fee = drops

	var current LedgerCurrentResult
	if err := c.call(ctx, "ledger_current", struct{}{}, &current); err != nil {
		return fmt.Errorf("autofill last ledger: %w", err)
	}
	tx.LastLedgerSequence = current.LedgerCurrentIndex + lastLedgerOffset
	return nil
}

// pickFee pays the open ledger fee, never less than the base fee and never
// more than defaultFeeMultMax times it.
func pickFee(res FeeResult) (string, error) {
	base, err := strconv.ParseUint(res.Drops.BaseFee, 10, 64)
	if err != nil || base == 0 {
		return "", fmt.Errorf("%w: invalid base fee %q", ErrRPC, res.Drops.BaseFee)
	}
	fee := base
	if open, err := strconv.ParseUint(res.Drops.OpenLedgerFee, 10, 64); err == nil && open > fee {
		fee = open
	}
	if fee > base*defaultFeeMultMax {
		return "", fmt.Errorf("%w: open ledger fee %d drops exceeds %d times the base fee", ErrRPC, fee, defaultFeeMultMax)
	}
	return strconv.FormatUint(fee, 10), nil
}

// waitValidated polls tx until the transaction is in a validated ledger and
// reports its final result.
func (c *RPCClient) waitValidated(ctx context.Context, txType, hash string) error {
	ctx, cancel := context.WithTimeout(ctx, c.validateWait)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var res TxResult
		err := c.call(ctx, "tx", TxParams{Transaction: hash}, &res)
		switch {
		case err == nil && res.Validated:
			if res.Meta.TransactionResult != ResultSuccess {
				return &SubmissionError{TransactionType: txType, Result: res.Meta.TransactionResult, Message: "validated with failure"}
			}
			return nil
		case err != nil && !isRPCError(err, errTxnNotFound):
			return fmt.Errorf("wait for %s %s: %w", txType, hash, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s %s: %w", txType, hash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// rpcError is an error reported in the result body.
type rpcError struct {
	method  string
	code    string
	message string
}

func (e *rpcError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("%s: %s: %s", e.method, e.code, e.message)
	}
	return fmt.Sprintf("%s: %s", e.method, e.code)
}

func (e *rpcError) Unwrap() error {
	if e.code == errActNotFound {
		return ErrAccountNotFound
	}
	return ErrRPC
}

func isRPCError(err error, code string) bool {
	var rerr *rpcError
	return errors.As(err, &rerr) && rerr.code == code
}

func (c *RPCClient) call(ctx context.Context, method string, params, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	client := c.http
	c.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", method, err)
	}

	timeout, err := requestTimeout(ctx, c.timeout)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	agent := client.Post(c.endpoint).JSON(RPCRequest{Method: method, Params: []json.RawMessage{raw}})
	if timeout > 0 {
		agent.Timeout(timeout)
	}

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s: %w", ErrRPC, method, errors.Join(errs...))
	}
	if status != fiber.StatusOK {
		return fmt.Errorf("%w: %s: http status %d", ErrRPC, method, status)
	}

	var envelope RPCResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%w: %s: decode response: %w", ErrRPC, method, err)
	}
	var st RPCStatus
	if err := json.Unmarshal(envelope.Result, &st); err != nil {
		return fmt.Errorf("%w: %s: decode status: %w", ErrRPC, method, err)
	}
	if st.Status == "error" || st.Error != "" {
		return &rpcError{method: method, code: st.Error, message: st.ErrorMessage}
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("%w: %s: decode result: %w", ErrRPC, method, err)
	}
	return nil
}

// requestTimeout caps timeout by the context deadline. A deadline that has
// already passed is reported as context.DeadlineExceeded.
func requestTimeout(ctx context.Context, timeout time.Duration) (time.Duration, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return timeout, nil
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0, context.DeadlineExceeded
	}
	if timeout <= 0 || remaining < timeout {
		return remaining, nil
	}
	return timeout, nil
}
