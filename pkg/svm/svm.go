// Package svm holds the runtime types shared by the ledger host and the
// programs it executes: account handles, compute metering and the common
// runtime errors.
//
// Programs never touch storage directly. The host loads accounts into
// AccountInfo handles, programs mutate the handles, and the host decides
// whether the mutations are committed.
package svm

import (
	"bytes"
	"errors"

	"github.com/fortiblox/X1-Clicker/internal/types"
)

var (
	// ErrComputeExceeded is returned when compute units are exhausted.
	ErrComputeExceeded = errors.New("compute budget exceeded")

	// ErrAccountNotFound is returned when a required account is missing.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidInstruction is returned for malformed instructions.
	ErrInvalidInstruction = errors.New("invalid instruction")

	// ErrUnknownProgram is returned when an instruction targets a program the
	// host has not registered.
	ErrUnknownProgram = errors.New("unknown program")
)

// AccountInfo holds account state during execution.
type AccountInfo struct {
	// Key is the account public key.
	Key types.Pubkey

	// Owner is the program that owns this account.
	Owner types.Pubkey

	// Lamports is the account balance.
	Lamports uint64

	// Data is the account data.
	Data []byte

	// Executable indicates if this is a program account.
	Executable bool

	// RentEpoch is the rent epoch.
	RentEpoch uint64

	// IsSigner indicates if this account signed the transaction, or was
	// signed for by a program through derived-address seeds.
	IsSigner bool

	// IsWritable indicates if this account can be modified.
	IsWritable bool

	original AccountSnapshot
}

// AccountSnapshot is a point-in-time copy of the mutable parts of an account.
type AccountSnapshot struct {
	Owner    types.Pubkey
	Lamports uint64
	Data     []byte
}

// Snapshot copies the account's mutable state.
func (a *AccountInfo) Snapshot() AccountSnapshot {
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	return AccountSnapshot{
		Owner:    a.Owner,
		Lamports: a.Lamports,
		Data:     data,
	}
}

// MarkOriginal marks the current state as original for change detection.
func (a *AccountInfo) MarkOriginal() {
	a.original = a.Snapshot()
}

// Original returns the state recorded by the last MarkOriginal call.
func (a *AccountInfo) Original() AccountSnapshot {
	return a.original
}

// IsModified returns true if the account changed since MarkOriginal.
func (a *AccountInfo) IsModified() bool {
	return a.Lamports != a.original.Lamports ||
		a.Owner != a.original.Owner ||
		!bytes.Equal(a.Data, a.original.Data)
}

// Restore resets the account to the state recorded by MarkOriginal.
func (a *AccountInfo) Restore() {
	a.Owner = a.original.Owner
	a.Lamports = a.original.Lamports
	a.Data = make([]byte, len(a.original.Data))
	copy(a.Data, a.original.Data)
}
