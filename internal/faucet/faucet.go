package faucet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
)

// ErrFaucet wraps every failure to obtain an account from the faucet.
var ErrFaucet = errors.New("faucet request failed")

const maxErrorBody = 512

// Credentials is the funded account returned by the faucet.
type Credentials struct {
	Address string `json:"address"`
	Secret  string `json:"secret"`
}

// Client represents a connector to an external account faucet.
type Client interface {
	NewAccount(ctx context.Context) (Credentials, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context) (Credentials, error)

// NewAccount calls f.
func (f ClientFunc) NewAccount(ctx context.Context) (Credentials, error) {
	return f(ctx)
}

// StatusError is returned when the faucet answers with a non-200 status.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("faucet returned status %d: %s", e.Status, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrFaucet
}

// HTTPClient requests accounts by POSTing to the faucet endpoint.
type HTTPClient struct {
	endpoint string
	timeout  time.Duration
	http     *fiber.Client
}

// NewHTTPClient builds a faucet client. A zero timeout leaves the transport default.
func NewHTTPClient(endpoint string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		timeout:  timeout,
		http:     &fiber.Client{UserAgent: "evrctl"},
	}
}

// NewAccount asks the faucet for a new funded account.
func (c *HTTPClient) NewAccount(ctx context.Context) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, fmt.Errorf("%w: %w", ErrFaucet, err)
	}

	timeout, err := effectiveTimeout(ctx, c.timeout)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %w", ErrFaucet, err)
	}
	agent := c.http.Post(c.endpoint)
	if timeout > 0 {
		agent.Timeout(timeout)
	}

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return Credentials{}, fmt.Errorf("%w: %w", ErrFaucet, errors.Join(errs...))
	}
	if status != fiber.StatusOK {
		return Credentials{}, &StatusError{Status: status, Body: truncate(string(body))}
	}

	var creds Credentials
	if err := json.Unmarshal(body, &creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: decode response: %w", ErrFaucet, err)
	}
	if creds.Address == "" || creds.Secret == "" {
		return Credentials{}, fmt.Errorf("%w: response missing address or secret", ErrFaucet)
	}
	return creds, nil
}

// effectiveTimeout caps timeout by the context deadline and fails once the
// deadline has passed.
func effectiveTimeout(ctx context.Context, timeout time.Duration) (time.Duration, error) {
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

// truncate cuts s to at most maxErrorBody bytes without splitting a rune.
func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
