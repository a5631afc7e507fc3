package chain

import (
	"encoding/json"
	"fmt"
)

// RPCRequest is a JSON-RPC 2.0 request.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      string        `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error object of a JSON-RPC response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RPCContext carries the slot a read was served at.
type RPCContext struct {
	Slot uint64 `json:"slot"`
}

// AccountValue is one account in a read response.
type AccountValue struct {
	Data       []string `json:"data"` // [payload, encoding]
	Owner      string   `json:"owner"`
	Lamports   uint64   `json:"lamports"`
	Executable bool     `json:"executable"`
}

// AccountInfoResult is the result of getAccountInfo.
type AccountInfoResult struct {
	Context RPCContext    `json:"context"`
	Value   *AccountValue `json:"value"`
}

// MultipleAccountsResult is the result of getMultipleAccounts.
type MultipleAccountsResult struct {
	Context RPCContext      `json:"context"`
	Value   []*AccountValue `json:"value"`
}

// LatestBlockhashResult is the result of getLatestBlockhash.
type LatestBlockhashResult struct {
	Context RPCContext `json:"context"`
	Value   struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	} `json:"value"`
}

// SignatureStatus is one entry of getSignatureStatuses.
type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

// Failed reports whether the transaction executed with an error.
func (s *SignatureStatus) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// SignatureStatusesResult is the result of getSignatureStatuses.
type SignatureStatusesResult struct {
	Context RPCContext         `json:"context"`
	Value   []*SignatureStatus `json:"value"`
}
