package ledger

import "encoding/json"

// RPCRequest is the rippled JSON-RPC request envelope.
type RPCRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// RPCResponse wraps every JSON-RPC result.
type RPCResponse struct {
	Result json.RawMessage `json:"result"`
}

// RPCStatus holds the status fields present on every result.
type RPCStatus struct {
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// IssuedAmount is an amount of a non-native currency.
type IssuedAmount struct {
	Currency string `json:"currency"`
	Issuer   string `json:"issuer"`
	Value    string `json:"value"`
}

// TxJSON is the subset of transaction fields the provisioning flow submits.
type TxJSON struct {
	TransactionType    string        `json:"TransactionType"`
	Account            string        `json:"Account"`
	Destination        string        `json:"Destination,omitempty"`
	Amount             *IssuedAmount `json:"Amount,omitempty"`
	LimitAmount        *IssuedAmount `json:"LimitAmount,omitempty"`
	SetFlag            uint32        `json:"SetFlag,omitempty"`
	Flags              uint32        `json:"Flags,omitempty"`
	NetworkID          uint32        `json:"NetworkID,omitempty"`
	Fee                string        `json:"Fee,omitempty"`
	Sequence           uint32        `json:"Sequence,omitempty"`
	LastLedgerSequence uint32        `json:"LastLedgerSequence,omitempty"`
	SigningPubKey      string        `json:"SigningPubKey,omitempty"`
}

// SubmitParams submits a transaction signed by the client.
type SubmitParams struct {
	TxBlob   string `json:"tx_blob"`
	FailHard bool   `json:"fail_hard,omitempty"`
}

// AccountParams addresses account_info and account_lines.
type AccountParams struct {
	Account     string `json:"account"`
	Peer        string `json:"peer,omitempty"`
	LedgerIndex string `json:"ledger_index,omitempty"`
}

// TxParams addresses the tx lookup.
type TxParams struct {
	Transaction string `json:"transaction"`
}

// ServerInfoResult is the result of server_info.
type ServerInfoResult struct {
	RPCStatus
	Info struct {
		BuildVersion string `json:"build_version"`
		ServerState  string `json:"server_state"`
		NetworkID    uint32 `json:"network_id,omitempty"`
	} `json:"info"`
}

// AccountInfoResult is the result of account_info.
type AccountInfoResult struct {
	RPCStatus
	AccountData struct {
		Account  string `json:"Account"`
		Flags    uint32 `json:"Flags"`
		Sequence uint32 `json:"Sequence"`
	} `json:"account_data"`
}

// FeeResult is the result of fee. Amounts are in drops.
type FeeResult struct {
	RPCStatus
	Drops struct {
		BaseFee       string `json:"base_fee"`
		MinimumFee    string `json:"minimum_fee"`
		OpenLedgerFee string `json:"open_ledger_fee"`
	} `json:"drops"`
}

// LedgerCurrentResult is the result of ledger_current.
type LedgerCurrentResult struct {
	RPCStatus
	LedgerCurrentIndex uint32 `json:"ledger_current_index"`
}

// RPCLine is one entry of account_lines.
type RPCLine struct {
	Account  string `json:"account"`
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
	Limit    string `json:"limit"`
}

// AccountLinesResult is the result of account_lines.
type AccountLinesResult struct {
	RPCStatus
	Account string    `json:"account"`
	Lines   []RPCLine `json:"lines"`
}

// SubmitResult is the result of submit.
type SubmitResult struct {
	RPCStatus
	EngineResult        string `json:"engine_result"`
	EngineResultMessage string `json:"engine_result_message"`
	TxJSON              struct {
		Hash string `json:"hash"`
	} `json:"tx_json"`
	TxBlob string `json:"tx_blob,omitempty"`
}

// TxResult is the result of tx.
type TxResult struct {
	RPCStatus
	Validated bool `json:"validated"`
	Meta      struct {
		TransactionResult string `json:"TransactionResult"`
	} `json:"meta"`
}
