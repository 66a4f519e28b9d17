// Package types defines core cryptographic and ledger types for X1-Clicker.
//
// These types follow Solana conventions: 32-byte Ed25519 public keys,
// 64-byte signatures and 32-byte hashes, all rendered as base58 text.
package types

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Size constants for core types.
const (
	PubkeySize    = 32
	SignatureSize = 64
	HashSize      = 32
)

var (
	// ErrInvalidPubkey is returned when a pubkey has invalid length.
	ErrInvalidPubkey = errors.New("invalid pubkey: must be 32 bytes")

	// ErrInvalidSignature is returned when a signature has invalid length.
	ErrInvalidSignature = errors.New("invalid signature: must be 64 bytes")

	// ErrInvalidHash is returned when a hash has invalid length.
	ErrInvalidHash = errors.New("invalid hash: must be 32 bytes")
)

// decodeBase58 fills dst from s, which must decode to exactly len(dst) bytes.
func decodeBase58(s string, dst []byte, errLen error) error {
	data, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("base58 decode: %w", err)
	}
	if len(data) != len(dst) {
		return errLen
	}
	copy(dst, data)
	return nil
}

// Pubkey is a 32-byte Ed25519 public key or a program derived address.
type Pubkey [PubkeySize]byte

// PubkeyFromBase58 parses a base58-encoded public key.
func PubkeyFromBase58(s string) (p Pubkey, err error) {
	err = decodeBase58(s, p[:], ErrInvalidPubkey)
	return p, err
}

// PubkeyFromBytes creates a Pubkey from a byte slice.
func PubkeyFromBytes(b []byte) (p Pubkey, err error) {
	if len(b) != PubkeySize {
		return p, ErrInvalidPubkey
	}
	copy(p[:], b)
	return p, nil
}

// MustPubkeyFromBase58 is PubkeyFromBase58 for package-level constants.
func MustPubkeyFromBase58(s string) Pubkey {
	p, err := PubkeyFromBase58(s)
	if err != nil {
		panic(fmt.Sprintf("invalid pubkey constant %q: %v", s, err))
	}
	return p
}

func (p Pubkey) String() string { return base58.Encode(p[:]) }
func (p Pubkey) IsZero() bool   { return p == Pubkey{} }
func (p Pubkey) Bytes() []byte  { return p[:] }

func (p Pubkey) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Pubkey) UnmarshalText(text []byte) error {
	return decodeBase58(string(text), p[:], ErrInvalidPubkey)
}

// Signature is a 64-byte Ed25519 signature. Journal records are keyed by
// the first signature of their transaction.
type Signature [SignatureSize]byte

// SignatureFromBase58 parses a base58-encoded signature.
func SignatureFromBase58(s string) (sig Signature, err error) {
	err = decodeBase58(s, sig[:], ErrInvalidSignature)
	return sig, err
}

func (s Signature) String() string { return base58.Encode(s[:]) }
func (s Signature) IsZero() bool   { return s == Signature{} }

// Verify reports whether s is pubkey's signature over message.
func (s Signature) Verify(pubkey Pubkey, message []byte) bool {
	return ed25519.Verify(pubkey[:], message, s[:])
}

func (s Signature) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Signature) UnmarshalText(text []byte) error {
	return decodeBase58(string(text), s[:], ErrInvalidSignature)
}

// Hash is a 32-byte digest: blockhashes, account hashes and state hashes.
type Hash [HashSize]byte

// HashFromBase58 parses a base58-encoded hash.
func HashFromBase58(s string) (h Hash, err error) {
	err = decodeBase58(s, h[:], ErrInvalidHash)
	return h, err
}

func (h Hash) String() string { return base58.Encode(h[:]) }
func (h Hash) IsZero() bool   { return h == Hash{} }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash) UnmarshalText(text []byte) error {
	return decodeBase58(string(text), h[:], ErrInvalidHash)
}
