package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func setupIssuer(t *testing.T) (*InMemory, Account, Account) {
	t.Helper()
	l := NewInMemory()
	issuer := l.CreateAccount("sIssuerSecret")
	holder := l.CreateAccount("sHolderSecret")
	return l, issuer, holder
}

func TestInMemoryTrustLineRequiredForPayment(t *testing.T) {
	l, issuer, holder := setupIssuer(t)
	ctx := context.Background()

	err := l.Pay(ctx, issuer, holder.Address, "10", CurrencyEVR, issuer.Address)
	var subErr *SubmissionError
	if !errors.As(err, &subErr) || subErr.Result != ResultPathDry {
		t.Fatalf("expected tecPATH_DRY without trust line, got %v", err)
	}

	if err := l.SetTrustLine(ctx, holder, CurrencyEVR, issuer.Address, DefaultTrustLineLimit); err != nil {
		t.Fatalf("trust set: %v", err)
	}
	if err := l.Pay(ctx, issuer, holder.Address, TotalMintedEVR, CurrencyEVR, issuer.Address); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := l.Balance(holder.Address, CurrencyEVR, issuer.Address); got != TotalMintedEVR {
		t.Fatalf("expected balance %s, got %s", TotalMintedEVR, got)
	}
}

func TestInMemoryHolderPaymentNeedsRippling(t *testing.T) {
	l, issuer, foundation := setupIssuer(t)
	recipient := l.CreateAccount("sRecipientSecret")
	ctx := context.Background()

	for _, acc := range []Account{foundation, recipient} {
		if err := l.SetTrustLine(ctx, acc, CurrencyEVR, issuer.Address, DefaultTrustLineLimit); err != nil {
			t.Fatalf("trust set: %v", err)
		}
	}
	if err := l.Pay(ctx, issuer, foundation.Address, "1000", CurrencyEVR, issuer.Address); err != nil {
		t.Fatalf("mint: %v", err)
	}

	err := l.Pay(ctx, foundation, recipient.Address, "100", CurrencyEVR, issuer.Address)
	if !errors.Is(err, ErrSubmission) {
		t.Fatalf("expected rejection without rippling, got %v", err)
	}

	if err := l.SetDefaultRipple(ctx, issuer); err != nil {
		t.Fatalf("enable rippling: %v", err)
	}
	if err := l.Pay(ctx, foundation, recipient.Address, "100.5", CurrencyEVR, issuer.Address); err != nil {
		t.Fatalf("payment: %v", err)
	}
	if got := l.Balance(foundation.Address, CurrencyEVR, issuer.Address); got != "899.5" {
		t.Fatalf("expected foundation balance 899.5, got %s", got)
	}
	if got := l.Balance(recipient.Address, CurrencyEVR, issuer.Address); got != "100.5" {
		t.Fatalf("expected recipient balance 100.5, got %s", got)
	}

	err = l.Pay(ctx, foundation, recipient.Address, "5000", CurrencyEVR, issuer.Address)
	var subErr *SubmissionError
	if !errors.As(err, &subErr) || subErr.Result != ResultUnfunded {
		t.Fatalf("expected unfunded payment, got %v", err)
	}
}

func TestInMemoryRejectsWrongSecret(t *testing.T) {
	l, issuer, _ := setupIssuer(t)

	err := l.SetDefaultRipple(context.Background(), Account{Address: issuer.Address, Secret: "sWrong"})
	var subErr *SubmissionError
	if !errors.As(err, &subErr) || subErr.Result != ResultBadAuth {
		t.Fatalf("expected tefBAD_AUTH, got %v", err)
	}
	if l.Submissions("AccountSet") != 0 {
		t.Fatal("rejected transaction was counted")
	}
}

func TestInMemoryTrustLinesFilter(t *testing.T) {
	l, issuer, holder := setupIssuer(t)
	other := l.CreateAccount("sOtherIssuer")
	ctx := context.Background()

	_ = l.SetTrustLine(ctx, holder, CurrencyEVR, issuer.Address, "100")
	_ = l.SetTrustLine(ctx, holder, "USD", other.Address, "100")

	lines, err := l.TrustLines(ctx, holder.Address, CurrencyEVR, issuer.Address)
	if err != nil {
		t.Fatalf("trust lines: %v", err)
	}
	if len(lines) != 1 || lines[0].Account != issuer.Address || lines[0].Limit != "100" {
		t.Fatalf("unexpected lines: %+v", lines)
	}

	all, _ := l.TrustLines(ctx, holder.Address, "", "")
	if len(all) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(all))
	}

	if _, err := l.TrustLines(ctx, "rMissing", CurrencyEVR, issuer.Address); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestInMemoryConcurrentPayments(t *testing.T) {
	l, issuer, foundation := setupIssuer(t)
	ctx := context.Background()
	_ = l.SetDefaultRipple(ctx, issuer)
	_ = l.SetTrustLine(ctx, foundation, CurrencyEVR, issuer.Address, DefaultTrustLineLimit)
	_ = l.Pay(ctx, issuer, foundation.Address, "10000", CurrencyEVR, issuer.Address)

	const workers = 10
	recipients := make([]Account, workers)
	for i := range recipients {
		recipients[i] = l.CreateAccount(fmt.Sprintf("sRecipient-%d", i))
		_ = l.SetTrustLine(ctx, recipients[i], CurrencyEVR, issuer.Address, DefaultTrustLineLimit)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := l.Pay(ctx, foundation, recipients[i].Address, "500", CurrencyEVR, issuer.Address); err != nil {
				t.Errorf("payment %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if got := l.Balance(foundation.Address, CurrencyEVR, issuer.Address); got != "5000" {
		t.Fatalf("expected remaining 5000, got %s", got)
	}
}

func TestHTTPEndpoint(t *testing.T) {
	cases := map[string]string{
		"wss://xahau-test.net":   "https://xahau-test.net",
		"ws://localhost:6006":    "http://localhost:6006",
		"https://xahau-test.net": "https://xahau-test.net",
	}
	for in, want := range cases {
		if got := HTTPEndpoint(in); got != want {
			t.Fatalf("HTTPEndpoint(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestInMemoryFundRegistersExternalKeys(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	acc := l.Fund(genesisAddress, genesisSeed)

	resolved, err := l.ResolveAccount(ctx, genesisSeed)
	if err != nil || resolved.Address != genesisAddress {
		t.Fatalf("expected %s, got %+v %v", genesisAddress, resolved, err)
	}
	if err := l.SetDefaultRipple(ctx, acc); err != nil {
		t.Fatalf("account set: %v", err)
	}

	err = l.SetDefaultRipple(ctx, Account{Address: genesisAddress, Secret: "sOther"})
	var subErr *SubmissionError
	if !errors.As(err, &subErr) || subErr.Result != ResultBadAuth {
		t.Fatalf("expected tefBAD_AUTH, got %v", err)
	}
}
