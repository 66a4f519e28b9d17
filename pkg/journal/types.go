package journal

import (
	"encoding/binary"

	"github.com/fortiblox/X1-Clicker/internal/types"
)

// Kind says what produced a record.
type Kind uint8

const (
	// KindTransaction is a signed transaction.
	KindTransaction Kind = iota
	// KindAirdrop is a faucet credit.
	KindAirdrop
)

// String returns the string representation.
func (k Kind) String() string {
	switch k {
	case KindTransaction:
		return "transaction"
	case KindAirdrop:
		return "airdrop"
	default:
		return "unknown"
	}
}

// TransactionError describes why a transaction failed.
type TransactionError struct {
	// InstructionIndex is the failing instruction, -1 if failure happened
	// before any instruction ran.
	InstructionIndex int

	// Message is the error text.
	Message string

	// CustomCode is set for program errors with a stable code.
	CustomCode *uint32
}

// Record is one executed (or rejected after loading) transaction.
type Record struct {
	Signature types.Signature
	Kind      Kind
	Slot      uint64
	BlockTime int64

	// Raw is the wire transaction, empty for airdrops.
	Raw []byte

	// AccountKeys lists every account the transaction referenced.
	AccountKeys []types.Pubkey

	Err                  *TransactionError
	Logs                 []string
	ComputeUnitsConsumed uint64

	// DeltaHash covers the accounts the transaction committed. Zero when
	// the transaction failed.
	DeltaHash types.Hash
}

// Succeeded reports whether the transaction committed.
func (r *Record) Succeeded() bool {
	return r.Err == nil
}

// SignatureInfo is an address history entry.
type SignatureInfo struct {
	Signature types.Signature
	Slot      uint64
	BlockTime int64
	Err       *TransactionError
}

// EncodeSlotKey encodes a slot number as a big-endian 8-byte key so keys
// sort by slot.
func EncodeSlotKey(slot uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, slot)
	return key
}

// DecodeSlotKey decodes a slot number from a big-endian 8-byte key.
func DecodeSlotKey(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key)
}

// encodeSlotSigKey is slot(8) || signature(64).
func encodeSlotSigKey(slot uint64, sig types.Signature) []byte {
	key := make([]byte, 8+types.SignatureSize)
	binary.BigEndian.PutUint64(key, slot)
	copy(key[8:], sig[:])
	return key
}

// encodeAddressKey is address(32) || slot(8) || signature(64).
func encodeAddressKey(addr types.Pubkey, slot uint64, sig types.Signature) []byte {
	key := make([]byte, 32+8+types.SignatureSize)
	copy(key, addr[:])
	binary.BigEndian.PutUint64(key[32:], slot)
	copy(key[40:], sig[:])
	return key
}
