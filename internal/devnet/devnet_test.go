package devnet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/congo-pay/evr_bootstrap/internal/config"
	"github.com/congo-pay/evr_bootstrap/internal/faucet"
	"github.com/congo-pay/evr_bootstrap/internal/ledger"
	"github.com/congo-pay/evr_bootstrap/internal/logging"
	"github.com/congo-pay/evr_bootstrap/internal/provision"
	"github.com/congo-pay/evr_bootstrap/internal/state"
)

const testNetworkID = 21338

func startDevnet(t *testing.T) (*Server, string) {
	t.Helper()
	cfg := config.Config{NetworkID: testNetworkID, DevnetPort: "0", DevnetFaucetPerMinute: 30}
	srv := New(cfg, nil, logging.Discard())
	httpSrv := httptest.NewServer(adaptor.FiberApp(srv.App()))
	t.Cleanup(httpSrv.Close)
	return srv, httpSrv.URL
}

func connectRPC(t *testing.T, url string) *ledger.RPCClient {
	t.Helper()
	client := ledger.NewRPCClient(url, testNetworkID, 5*time.Second,
		ledger.WithPollInterval(10*time.Millisecond),
		ledger.WithValidationTimeout(time.Second))
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newAccount(t *testing.T, node *Node) faucet.Credentials {
	t.Helper()
	creds, err := node.NewAccount()
	if err != nil {
		t.Fatalf("new account: %v", err)
	}
	return creds
}

func TestBootstrapAgainstDevnet(t *testing.T) {
	ctx := context.Background()
	srv, url := startDevnet(t)
	rpc := connectRPC(t, url)

	store := state.NewMemoryStore(nil)
	seq, err := provision.NewSequencer(provision.Deps{
		Store:  store,
		Faucet: faucet.NewHTTPClient(url+"/newcreds", 5*time.Second),
		Ledger: rpc,
		Logger: logging.Discard(),
	}, provision.DefaultOptions())
	if err != nil {
		t.Fatalf("new sequencer: %v", err)
	}

	if err := seq.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	current, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	issuer, _ := current.Get(state.RoleIssuer)
	foundation, _ := current.Get(state.RoleFoundation)
	sim := srv.Node().Ledger()
	if got := sim.Balance(foundation.Address, ledger.CurrencyEVR, issuer.Address); got != ledger.TotalMintedEVR {
		t.Fatalf("expected foundation balance %s, got %s", ledger.TotalMintedEVR, got)
	}

	recipient := newAccount(t, srv.Node())
	for _, amount := range []string{"100", "50"} {
		if _, err := seq.FundRecipient(ctx, recipient.Secret, amount); err != nil {
			t.Fatalf("fund %s: %v", amount, err)
		}
	}
	if got := sim.Balance(recipient.Address, ledger.CurrencyEVR, issuer.Address); got != "150" {
		t.Fatalf("expected recipient balance 150, got %s", got)
	}
	if n := sim.Submissions("TrustSet"); n != 2 {
		t.Fatalf("expected 2 TrustSet submissions, got %d", n)
	}

	// a second bootstrap reuses the accounts and only mints again
	if err := seq.Bootstrap(ctx); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if n := sim.Submissions("AccountSet"); n != 1 {
		t.Fatalf("expected 1 AccountSet submission, got %d", n)
	}
	if n := sim.Submissions("TrustSet"); n != 2 {
		t.Fatalf("expected TrustSet count to stay at 2, got %d", n)
	}
}

func TestDevnetRejectedPaymentSurfaces(t *testing.T) {
	ctx := context.Background()
	srv, url := startDevnet(t)
	rpc := connectRPC(t, url)

	holder := newAccount(t, srv.Node())
	issuer := newAccount(t, srv.Node())
	err := rpc.Pay(ctx, ledger.Account{Address: issuer.Address, Secret: issuer.Secret}, holder.Address, "10", ledger.CurrencyEVR, issuer.Address)

	var subErr *ledger.SubmissionError
	if !errors.As(err, &subErr) || subErr.Result != ledger.ResultPathDry {
		t.Fatalf("expected tecPATH_DRY, got %v", err)
	}
}

func TestDevnetAccountNotFound(t *testing.T) {
	_, url := startDevnet(t)
	rpc := connectRPC(t, url)

	if _, err := rpc.AccountFlags(context.Background(), "rMissing"); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestDevnetNetworkMismatch(t *testing.T) {
	_, url := startDevnet(t)
	client := ledger.NewRPCClient(url, 1, time.Second)
	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("expected network mismatch error")
	}
}

func decode[T any](t *testing.T, v any) T {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func submitSigned(t *testing.T, node *Node, secret string, tx ledger.TxJSON) ledger.SubmitResult {
	t.Helper()
	signer, err := ledger.NewSigner(secret)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	blob, _, err := signer.Sign(tx)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	params, _ := json.Marshal(ledger.SubmitParams{TxBlob: blob})
	return decode[ledger.SubmitResult](t, node.Dispatch(context.Background(), "submit", params))
}

func accountSet(address string, sequence uint32) ledger.TxJSON {
	return ledger.TxJSON{
		TransactionType: "AccountSet",
		Account:         address,
		SetFlag:         ledger.AsfDefaultRipple,
		Fee:             baseFeeDrops,
		Sequence:        sequence,
		NetworkID:       testNetworkID,
	}
}

func TestNodeDispatch(t *testing.T) {
	ctx := context.Background()
	node := NewNode(ledger.NewInMemory(), testNetworkID)

	unknown := decode[ledger.RPCStatus](t, node.Dispatch(ctx, "wallet_propose", nil))
	if unknown.Error != errUnknownCmd {
		t.Fatalf("expected unknownCmd, got %+v", unknown)
	}

	missing := decode[ledger.RPCStatus](t, node.Dispatch(ctx, "tx", json.RawMessage(`{"transaction":"ABC"}`)))
	if missing.Error != errTxnNotFound {
		t.Fatalf("expected txnNotFound, got %+v", missing)
	}

	secretSubmit := decode[ledger.RPCStatus](t, node.Dispatch(ctx, "submit", json.RawMessage(`{"secret":"s1","tx_json":{}}`)))
	if secretSubmit.Error != errInvalidParams {
		t.Fatalf("expected sign-and-submit to be refused, got %+v", secretSubmit)
	}

	acc := newAccount(t, node)
	info := decode[ledger.AccountInfoResult](t, node.Dispatch(ctx, "account_info", json.RawMessage(`{"account":"`+acc.Address+`"}`)))
	if info.AccountData.Sequence != firstSequence {
		t.Fatalf("expected sequence %d, got %+v", firstSequence, info)
	}

	tx := accountSet(acc.Address, firstSequence)
	tx.NetworkID = 0
	if res := submitSigned(t, node, acc.Secret, tx); res.EngineResult != resultNeedNetwork {
		t.Fatalf("expected %s, got %+v", resultNeedNetwork, res)
	}

	applied := submitSigned(t, node, acc.Secret, accountSet(acc.Address, firstSequence))
	if applied.EngineResult != ledger.ResultSuccess || applied.TxJSON.Hash == "" {
		t.Fatalf("expected applied AccountSet, got %+v", applied)
	}

	lookup, _ := json.Marshal(ledger.TxParams{Transaction: applied.TxJSON.Hash})
	validated := decode[ledger.TxResult](t, node.Dispatch(ctx, "tx", lookup))
	if !validated.Validated || validated.Meta.TransactionResult != ledger.ResultSuccess {
		t.Fatalf("unexpected tx result %+v", validated)
	}

	current := decode[ledger.LedgerCurrentResult](t, node.Dispatch(ctx, "ledger_current", nil))
	if current.LedgerCurrentIndex != genesisLedgerSeq+1 {
		t.Fatalf("expected ledger %d, got %d", genesisLedgerSeq+1, current.LedgerCurrentIndex)
	}
}

func TestNodeSequenceChecks(t *testing.T) {
	node := NewNode(ledger.NewInMemory(), testNetworkID)
	acc := newAccount(t, node)

	if res := submitSigned(t, node, acc.Secret, accountSet(acc.Address, firstSequence+1)); res.EngineResult != resultPreSeq {
		t.Fatalf("expected %s, got %+v", resultPreSeq, res)
	}
	if res := submitSigned(t, node, acc.Secret, accountSet(acc.Address, firstSequence)); res.EngineResult != ledger.ResultSuccess {
		t.Fatalf("expected success, got %+v", res)
	}
	if res := submitSigned(t, node, acc.Secret, accountSet(acc.Address, firstSequence)); res.EngineResult != resultPastSeq {
		t.Fatalf("expected %s, got %+v", resultPastSeq, res)
	}
	if n := node.Ledger().Submissions("AccountSet"); n != 1 {
		t.Fatalf("expected one applied AccountSet, got %d", n)
	}
}

func TestNodeRejectsUnknownSigner(t *testing.T) {
	node := NewNode(ledger.NewInMemory(), testNetworkID)
	acc := newAccount(t, node)

	// a seed the faucet never issued
	outsider, err := ledger.NewSeed()
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	signer, err := ledger.NewSigner(outsider)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	if res := submitSigned(t, node, outsider, accountSet(signer.Address, firstSequence)); res.EngineResult != ledger.ResultNoAccount {
		t.Fatalf("expected %s, got %+v", ledger.ResultNoAccount, res)
	}

	node.mu.Lock()
	node.keys[acc.Address].publicKey = signer.PublicKey
	node.mu.Unlock()
	if res := submitSigned(t, node, acc.Secret, accountSet(acc.Address, firstSequence)); res.EngineResult != ledger.ResultBadAuth {
		t.Fatalf("expected %s, got %+v", ledger.ResultBadAuth, res)
	}
}
