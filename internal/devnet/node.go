package devnet

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/congo-pay/evr_bootstrap/internal/faucet"
	"github.com/congo-pay/evr_bootstrap/internal/ledger"
)

// Error codes reported in JSON-RPC results.
const (
	errUnknownCmd    = "unknownCmd"
	errInvalidParams = "invalidParams"
	errActNotFound   = "actNotFound"
	errTxnNotFound   = "txnNotFound"
	errInternal      = "internal"

	resultWrongNetwork = "telWRONG_NETWORK"
	resultNeedNetwork  = "telREQUIRES_NETWORK_ID"
	resultPastSeq      = "tefPAST_SEQ"
	resultPreSeq       = "terPRE_SEQ"
	resultMaxLedger    = "tefMAX_LEDGER"

	baseFeeDrops     = "10"
	genesisLedgerSeq = 2
	firstSequence    = 1
)

// key is a faucet-issued account as the node knows it.
type key struct {
	secret    string
	publicKey string
	sequence  uint32
}

// Node answers the subset of rippled JSON-RPC the provisioning flow uses,
// backed by a simulated ledger. Submissions are signed blobs from faucet
// accounts and every applied transaction is validated immediately.
type Node struct {
	ledger    *ledger.InMemory
	networkID uint32

	mu            sync.Mutex
	ledgerCurrent uint32
	keys          map[string]*key
	txs           map[string]string
}

// NewNode serves l under networkID.
func NewNode(l *ledger.InMemory, networkID uint32) *Node {
	return &Node{
		ledger:        l,
		networkID:     networkID,
		ledgerCurrent: genesisLedgerSeq,
		keys:          make(map[string]*key),
		txs:           make(map[string]string),
	}
}

// Ledger exposes the simulated ledger, mainly for tests.
func (n *Node) Ledger() *ledger.InMemory {
	return n.ledger
}

// NewAccount creates and funds a fresh account with a real family seed.
func (n *Node) NewAccount() (faucet.Credentials, error) {
	seed, err := ledger.NewSeed()
	if err != nil {
		return faucet.Credentials{}, err
	}
	signer, err := ledger.NewSigner(seed)
	if err != nil {
		return faucet.Credentials{}, err
	}

	acc := n.ledger.Fund(signer.Address, seed)
	n.mu.Lock()
	n.keys[acc.Address] = &key{secret: seed, publicKey: signer.PublicKey, sequence: firstSequence}
	n.mu.Unlock()
	return faucet.Credentials{Address: acc.Address, Secret: acc.Secret}, nil
}

// Dispatch runs method with its first positional params object.
func (n *Node) Dispatch(ctx context.Context, method string, params json.RawMessage) any {
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	switch method {
	case "server_info":
		var res ledger.ServerInfoResult
		res.Status = "success"
		res.Info.BuildVersion = "devnet"
		res.Info.ServerState = "full"
		res.Info.NetworkID = n.networkID
		return res
	case "account_info":
		return n.accountInfo(ctx, params)
	case "account_lines":
		return n.accountLines(ctx, params)
	case "fee":
		res := ledger.FeeResult{RPCStatus: success()}
		res.Drops.BaseFee = baseFeeDrops
		res.Drops.MinimumFee = baseFeeDrops
		res.Drops.OpenLedgerFee = baseFeeDrops
		return res
	case "ledger_current":
		n.mu.Lock()
		defer n.mu.Unlock()
		return ledger.LedgerCurrentResult{RPCStatus: success(), LedgerCurrentIndex: n.ledgerCurrent}
	case "submit":
		return n.submit(ctx, params)
	case "tx":
		return n.tx(params)
	default:
		return rpcError(errUnknownCmd, "unknown method "+method)
	}
}

func (n *Node) accountInfo(ctx context.Context, params json.RawMessage) any {
	var p ledger.AccountParams
	if err := json.Unmarshal(params, &p); err != nil || p.Account == "" {
		return rpcError(errInvalidParams, "account is required")
	}
	flags, err := n.ledger.AccountFlags(ctx, p.Account)
	if err != nil {
		return lookupError(err)
	}

	res := ledger.AccountInfoResult{RPCStatus: success()}
	res.AccountData.Account = p.Account
	res.AccountData.Flags = flags
	res.AccountData.Sequence = firstSequence
	n.mu.Lock()
	if k, ok := n.keys[p.Account]; ok {
		res.AccountData.Sequence = k.sequence
	}
	n.mu.Unlock()
	return res
}

func (n *Node) accountLines(ctx context.Context, params json.RawMessage) any {
	var p ledger.AccountParams
	if err := json.Unmarshal(params, &p); err != nil || p.Account == "" {
		return rpcError(errInvalidParams, "account is required")
	}
	lines, err := n.ledger.TrustLines(ctx, p.Account, "", p.Peer)
	if err != nil {
		return lookupError(err)
	}

	res := ledger.AccountLinesResult{RPCStatus: success(), Account: p.Account, Lines: []ledger.RPCLine{}}
	for _, ln := range lines {
		res.Lines = append(res.Lines, ledger.RPCLine{
			Account:  ln.Account,
			Balance:  ln.Balance,
			Currency: ln.Currency,
			Limit:    ln.Limit,
		})
	}
	return res
}

func (n *Node) submit(ctx context.Context, params json.RawMessage) any {
	var p ledger.SubmitParams
	if err := json.Unmarshal(params, &p); err != nil || p.TxBlob == "" {
		return rpcError(errInvalidParams, "tx_blob is required")
	}
	tx, err := ledger.DecodeTx(p.TxBlob)
	if err != nil {
		return rpcError(errInvalidParams, err.Error())
	}

	// Submissions are serialized so sequence checks and ledger closes stay
	// in step with the applied transactions.
	n.mu.Lock()
	defer n.mu.Unlock()

	result, message := n.apply(ctx, tx)
	res := ledger.SubmitResult{
		RPCStatus:           success(),
		EngineResult:        result,
		EngineResultMessage: message,
		TxBlob:              p.TxBlob,
	}
	if applied(result) {
		res.TxJSON.Hash = n.record(p.TxBlob, result)
		n.keys[tx.Account].sequence++
		n.ledgerCurrent++
	}
	return res
}

// applied reports whether result consumed the sequence and entered a ledger.
func applied(result string) bool {
	return strings.HasPrefix(result, "tes") || strings.HasPrefix(result, "tec")
}

// apply checks the envelope then runs the transaction, mapping its outcome to
// an engine result. It must be called with n.mu held.
func (n *Node) apply(ctx context.Context, tx ledger.TxJSON) (string, string) {
	switch {
	case n.networkID > 1024 && tx.NetworkID == 0:
		return resultNeedNetwork, "transaction must carry NetworkID"
	case tx.NetworkID != 0 && tx.NetworkID != n.networkID:
		return resultWrongNetwork, "transaction is for another network"
	case tx.LastLedgerSequence != 0 && tx.LastLedgerSequence < n.ledgerCurrent:
		return resultMaxLedger, "LastLedgerSequence already passed"
	}

	k, ok := n.keys[tx.Account]
	if !ok {
		return ledger.ResultNoAccount, "source account does not exist"
	}
	if tx.SigningPubKey != k.publicKey {
		return ledger.ResultBadAuth, "signing key does not match account"
	}
	switch {
	case tx.Sequence < k.sequence:
		return resultPastSeq, "sequence already used"
	case tx.Sequence > k.sequence:
		return resultPreSeq, "sequence is ahead of the account"
	}

	account := ledger.Account{Address: tx.Account, Secret: k.secret}
	var err error
	switch tx.TransactionType {
	case "AccountSet":
		if tx.SetFlag != ledger.AsfDefaultRipple {
			return ledger.ResultDisabled, "only asfDefaultRipple is supported"
		}
		err = n.ledger.SetDefaultRipple(ctx, account)
	case "TrustSet":
		if tx.LimitAmount == nil {
			return ledger.ResultBadLimit, "LimitAmount is required"
		}
		err = n.ledger.SetTrustLine(ctx, account, tx.LimitAmount.Currency, tx.LimitAmount.Issuer, tx.LimitAmount.Value)
	case "Payment":
		if tx.Amount == nil || tx.Destination == "" {
			return ledger.ResultBadAmount, "issued Amount and Destination are required"
		}
		err = n.ledger.Pay(ctx, account, tx.Destination, tx.Amount.Value, tx.Amount.Currency, tx.Amount.Issuer)
	default:
		return ledger.ResultDisabled, "unsupported transaction type " + tx.TransactionType
	}

	var subErr *ledger.SubmissionError
	switch {
	case err == nil:
		return ledger.ResultSuccess, "The transaction was applied."
	case errors.As(err, &subErr):
		return subErr.Result, subErr.Message
	default:
		return errInternal, err.Error()
	}
}

// record stores the result under the blob hash so tx lookups can report it.
// It must be called with n.mu held.
func (n *Node) record(blob, result string) string {
	sum := blake2b.Sum256([]byte(strconv.FormatUint(uint64(n.ledgerCurrent), 10) + ":" + blob))
	hash := strings.ToUpper(hex.EncodeToString(sum[:]))
	n.txs[hash] = result
	return hash
}

func (n *Node) tx(params json.RawMessage) any {
	var p ledger.TxParams
	if err := json.Unmarshal(params, &p); err != nil || p.Transaction == "" {
		return rpcError(errInvalidParams, "transaction is required")
	}

	n.mu.Lock()
	result, ok := n.txs[strings.ToUpper(p.Transaction)]
	n.mu.Unlock()
	if !ok {
		return rpcError(errTxnNotFound, "transaction not found")
	}

	res := ledger.TxResult{RPCStatus: success(), Validated: true}
	res.Meta.TransactionResult = result
	return res
}

func success() ledger.RPCStatus {
	return ledger.RPCStatus{Status: "success"}
}

func rpcError(code, message string) ledger.RPCStatus {
	return ledger.RPCStatus{Status: "error", Error: code, ErrorMessage: message}
}

func lookupError(err error) ledger.RPCStatus {
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return rpcError(errActNotFound, "account not found")
	}
	return rpcError(errInternal, fmt.Sprint(err))
}
