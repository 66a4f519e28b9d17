// Package rpc provides JSON-RPC 2.0 types for the clicker ledger API.
package rpc

import (
	"encoding/json"

	"github.com/fortiblox/X1-Clicker/pkg/svm/programs/clicker"
)

// JSON-RPC 2.0 constants.
const (
	JSONRPCVersion = "2.0"
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Context provides slot context for RPC responses.
type Context struct {
	Slot       uint64 `json:"slot"`
	APIVersion string `json:"apiVersion,omitempty"`
}

// ResponseWithContext wraps a value with context.
type ResponseWithContext struct {
	Context Context     `json:"context"`
	Value   interface{} `json:"value"`
}

// Encoding types for account data.
type Encoding string

const (
	EncodingBase58     Encoding = "base58"
	EncodingBase64     Encoding = "base64"
	EncodingBase64Zstd Encoding = "base64+zstd"
)

// DataSlice specifies a portion of account data to return.
type DataSlice struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

// AccountInfoConfig configures getAccountInfo requests.
type AccountInfoConfig struct {
	Encoding       Encoding   `json:"encoding,omitempty"`
	DataSlice      *DataSlice `json:"dataSlice,omitempty"`
	MinContextSlot *uint64    `json:"minContextSlot,omitempty"`
}

// BalanceConfig configures getBalance requests.
type BalanceConfig struct {
	MinContextSlot *uint64 `json:"minContextSlot,omitempty"`
}

// TransactionConfig configures getTransaction requests.
type TransactionConfig struct {
	Encoding Encoding `json:"encoding,omitempty"`
}

// SendTransactionConfig configures sendTransaction and simulateTransaction.
type SendTransactionConfig struct {
	Encoding Encoding `json:"encoding,omitempty"`
}

// SignaturesForAddressConfig configures getSignaturesForAddress requests.
type SignaturesForAddressConfig struct {
	Limit  int    `json:"limit,omitempty"`
	Before string `json:"before,omitempty"`
}

// SignatureStatusConfig configures getSignatureStatuses requests.
type SignatureStatusConfig struct {
	SearchTransactionHistory bool `json:"searchTransactionHistory,omitempty"`
}

// AccountInfo represents account information returned by RPC.
type AccountInfo struct {
	Data       interface{} `json:"data"` // [encoded, encoding]
	Executable bool        `json:"executable"`
	Lamports   uint64      `json:"lamports"`
	Owner      string      `json:"owner"`
	RentEpoch  uint64      `json:"rentEpoch"`
	Space      uint64      `json:"space"`
}

// UserStateInfo is a decoded clicker record.
type UserStateInfo struct {
	Address string `json:"address"`
	clicker.UserState
}

// UserStateAddress is a derived record address with its bump.
type UserStateAddress struct {
	Address string `json:"address"`
	Bump    uint8  `json:"bump"`
}

// TransactionError is the JSON form of a failed transaction's error.
type TransactionError struct {
	InstructionIndex int     `json:"instructionIndex"`
	Message          string  `json:"message"`
	Custom           *uint32 `json:"custom,omitempty"`
}

// TransactionMeta contains transaction execution metadata.
type TransactionMeta struct {
	Err                  *TransactionError `json:"err"`
	Fee                  uint64            `json:"fee"`
	LogMessages          []string          `json:"logMessages"`
	ComputeUnitsConsumed uint64            `json:"computeUnitsConsumed"`
	DeltaHash            string            `json:"deltaHash,omitempty"`
}

// TransactionResponse represents a transaction returned by RPC.
type TransactionResponse struct {
	Slot        uint64           `json:"slot"`
	BlockTime   *int64           `json:"blockTime"`
	Kind        string           `json:"kind"`
	Transaction interface{}      `json:"transaction,omitempty"` // [encoded, encoding]
	AccountKeys []string         `json:"accountKeys"`
	Meta        *TransactionMeta `json:"meta"`
}

// SignatureInfo represents signature information for getSignaturesForAddress.
type SignatureInfo struct {
	Signature string            `json:"signature"`
	Slot      uint64            `json:"slot"`
	Err       *TransactionError `json:"err"`
	BlockTime *int64            `json:"blockTime"`
}

// SignatureStatus represents the status of a transaction signature.
type SignatureStatus struct {
	Slot               uint64            `json:"slot"`
	Confirmations      *uint64           `json:"confirmations"`
	Err                *TransactionError `json:"err"`
	ConfirmationStatus string            `json:"confirmationStatus"`
}

// SendTransactionResult is returned by sendTransaction.
type SendTransactionResult struct {
	Signature string           `json:"signature"`
	Slot      uint64           `json:"slot"`
	Meta      *TransactionMeta `json:"meta"`
}

// SimulationResult represents transaction simulation results.
type SimulationResult struct {
	Err           *TransactionError `json:"err"`
	Logs          []string          `json:"logs"`
	UnitsConsumed uint64            `json:"unitsConsumed"`
	Accounts      []string          `json:"accounts"`
}

// LatestBlockhash is returned by getLatestBlockhash.
type LatestBlockhash struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// VersionInfo represents node version information.
type VersionInfo struct {
	SolanaCore string `json:"solana-core"`
	FeatureSet uint32 `json:"feature-set"`
}
