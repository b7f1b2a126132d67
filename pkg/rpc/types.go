// Package rpc provides a JSON-RPC 2.0 server for the faucet node.
package rpc

import (
	"encoding/json"
)

// JSON-RPC 2.0 constants
const (
	JSONRPCVersion = "2.0"
)

// Standard JSON-RPC 2.0 error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603

	// Solana-compatible server error codes
	SendTransactionError = -32002
	NodeUnhealthy        = -32005
	UnsupportedEncoding  = -32011

	// Faucet-specific error codes
	AirdropRateLimited   = -32429
	FaucetNotInitialized = -32430
)

// RPCRequest represents a JSON-RPC 2.0 request.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// RPCResponse represents a JSON-RPC 2.0 response.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return e.Message
}

// NewRPCError creates a new RPC error.
func NewRPCError(code int, message string) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
	}
}

// NewRPCErrorWithData creates a new RPC error with additional data.
func NewRPCErrorWithData(code int, message string, data interface{}) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// Context is the response context. Slot counts the instructions committed
// through this server.
type Context struct {
	Slot       uint64 `json:"slot"`
	APIVersion string `json:"apiVersion,omitempty"`
}

// ContextualResult wraps a result with context.
type ContextualResult struct {
	Context Context     `json:"context"`
	Value   interface{} `json:"value"`
}

// AccountInfoResult represents the result of getAccountInfo.
type AccountInfoResult struct {
	Lamports   uint64      `json:"lamports"`
	Data       interface{} `json:"data"` // [data, encoding] or ParsedAccountData
	Owner      string      `json:"owner"`
	Executable bool        `json:"executable"`
	Space      uint64      `json:"space"`
}

// ParsedAccountData is the jsonParsed form of a faucet account.
type ParsedAccountData struct {
	Program string           `json:"program"`
	Parsed  FaucetStateValue `json:"parsed"`
	Space   uint64           `json:"space"`
}

// FaucetStateValue is the decoded faucet record.
type FaucetStateValue struct {
	State              string `json:"state"`
	Administrator      string `json:"administrator"`
	DistributionAmount uint64 `json:"distributionAmount"`
}

// FaucetStateResult represents the result of getFaucetState.
type FaucetStateResult struct {
	Pubkey            string `json:"pubkey"`
	Lamports          uint64 `json:"lamports"`
	RentExemptMinimum uint64 `json:"rentExemptMinimum"`
	FaucetStateValue
}

// HealthResult represents the result of getHealth.
type HealthResult string

// VersionResult represents the result of getVersion.
type VersionResult struct {
	FaucetCore string `json:"faucet-core"`
	ProgramID  string `json:"program-id"`
}

// AirdropResult represents the result of requestAirdrop.
type AirdropResult struct {
	Requester string   `json:"requester"`
	Amount    uint64   `json:"amount"`
	Balance   uint64   `json:"balance"`
	Logs      []string `json:"logs"`
}

// InstructionResult represents the result of sendInstruction.
type InstructionResult struct {
	Logs            []string `json:"logs"`
	UnitsConsumed   uint64   `json:"unitsConsumed"`
	AccountsWritten []string `json:"accountsWritten"`
}

// InstructionErrorData is attached to failed sendInstruction and
// requestAirdrop calls.
type InstructionErrorData struct {
	Err  string   `json:"err"`
	Code uint32   `json:"code"`
	Name string   `json:"name"`
	Logs []string `json:"logs"`
}

// AccountInfoOptions represents optional parameters for getAccountInfo.
type AccountInfoOptions struct {
	Encoding  string     `json:"encoding,omitempty"` // base58, base64, base64+zstd, jsonParsed
	DataSlice *DataSlice `json:"dataSlice,omitempty"`
}

// DataSlice represents a slice of account data.
type DataSlice struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}
