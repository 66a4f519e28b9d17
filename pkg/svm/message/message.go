// Package message implements the legacy transaction message model and its
// wire format.
//
// A message lists every account it touches once, ordered so the header can
// describe signer and writable privileges by position:
//
//	[writable signers][readonly signers][writable non-signers][readonly non-signers]
//
// Instructions reference accounts and programs by index into that list.
package message

import (
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/fortiblox/X1-Clicker/internal/types"
)

// Message limits.
const (
	MaxAccountKeys  = 256
	MaxInstructions = 64
)

// Message errors.
var (
	ErrTooManyAccounts     = errors.New("too many account keys")
	ErrTooManyInstructions = errors.New("too many instructions")
	ErrNoInstructions      = errors.New("message has no instructions")
	ErrInvalidHeader       = errors.New("invalid message header")
	ErrInvalidIndex        = errors.New("instruction index out of range")
	ErrTruncated           = errors.New("message truncated")
	ErrTrailingBytes       = errors.New("trailing bytes after message")
)

// AccountMeta describes an account in an instruction.
type AccountMeta struct {
	Pubkey     types.Pubkey
	IsSigner   bool
	IsWritable bool
}

// Instruction is an uncompiled instruction: a program, the accounts it
// touches in the order the program expects, and opaque data.
type Instruction struct {
	ProgramID types.Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// MessageHeader describes the account privileges in a message.
type MessageHeader struct {
	// NumRequiredSignatures is the number of signatures required.
	NumRequiredSignatures uint8

	// NumReadonlySignedAccounts is the number of readonly signer accounts.
	NumReadonlySignedAccounts uint8

	// NumReadonlyUnsignedAccounts is the number of readonly non-signer accounts.
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction references its program and accounts by index.
type CompiledInstruction struct {
	// ProgramIDIndex is the index of the program account in AccountKeys.
	ProgramIDIndex uint8

	// AccountIndexes lists the account indexes this instruction uses.
	AccountIndexes []uint8

	// Data is the instruction data passed to the program.
	Data []byte
}

// Message is the signed part of a transaction.
type Message struct {
	Header          MessageHeader
	AccountKeys     []types.Pubkey
	RecentBlockhash types.Hash
	Instructions    []CompiledInstruction
}

type keyMeta struct {
	signer   bool
	writable bool
}

// NewMessage compiles instructions into a message with payer as the first
// (writable, signing) account.
func NewMessage(payer types.Pubkey, instructions []Instruction, recentBlockhash types.Hash) (*Message, error) {
	if len(instructions) == 0 {
		return nil, ErrNoInstructions
	}
	if len(instructions) > MaxInstructions {
		return nil, ErrTooManyInstructions
	}

	metas := map[types.Pubkey]*keyMeta{payer: {signer: true, writable: true}}
	order := []types.Pubkey{payer}
	touch := func(key types.Pubkey, signer, writable bool) {
		m, ok := metas[key]
		if !ok {
			m = &keyMeta{}
			metas[key] = m
			order = append(order, key)
		}
		m.signer = m.signer || signer
		m.writable = m.writable || writable
	}
	for _, ix := range instructions {
		for _, acc := range ix.Accounts {
			touch(acc.Pubkey, acc.IsSigner, acc.IsWritable)
		}
		touch(ix.ProgramID, false, false)
	}
	if len(order) > MaxAccountKeys {
		return nil, ErrTooManyAccounts
	}

	// Stable partition into the four privilege classes, payer first.
	class := func(k types.Pubkey) int {
		m := metas[k]
		switch {
		case m.signer && m.writable:
			return 0
		case m.signer:
			return 1
		case m.writable:
			return 2
		default:
			return 3
		}
	}
	keys := make([]types.Pubkey, 0, len(order))
	for c := 0; c < 4; c++ {
		keys = append(keys, lo.Filter(order, func(k types.Pubkey, _ int) bool { return class(k) == c })...)
	}

	msg := &Message{
		AccountKeys:     keys,
		RecentBlockhash: recentBlockhash,
	}
	for _, k := range keys {
		switch class(k) {
		case 0:
			msg.Header.NumRequiredSignatures++
		case 1:
			msg.Header.NumRequiredSignatures++
			msg.Header.NumReadonlySignedAccounts++
		case 3:
			msg.Header.NumReadonlyUnsignedAccounts++
		}
	}

	index := make(map[types.Pubkey]uint8, len(keys))
	for i, k := range keys {
		index[k] = uint8(i)
	}
	for _, ix := range instructions {
		msg.Instructions = append(msg.Instructions, CompiledInstruction{
			ProgramIDIndex: index[ix.ProgramID],
			AccountIndexes: lo.Map(ix.Accounts, func(a AccountMeta, _ int) uint8 { return index[a.Pubkey] }),
			Data:           append([]byte(nil), ix.Data...),
		})
	}
	return msg, nil
}

// IsSigner reports whether the account at index must sign.
func (m *Message) IsSigner(index int) bool {
	return index < int(m.Header.NumRequiredSignatures)
}

// IsWritable reports whether the account at index may be modified.
func (m *Message) IsWritable(index int) bool {
	numSigners := int(m.Header.NumRequiredSignatures)
	if index < numSigners {
		return index < numSigners-int(m.Header.NumReadonlySignedAccounts)
	}
	numWritableUnsigned := len(m.AccountKeys) - numSigners - int(m.Header.NumReadonlyUnsignedAccounts)
	return index-numSigners < numWritableUnsigned
}

// Signers returns the accounts whose signatures the message requires.
func (m *Message) Signers() []types.Pubkey {
	return m.AccountKeys[:m.Header.NumRequiredSignatures]
}

// Validate checks header bounds and instruction indexes.
func (m *Message) Validate() error {
	n := len(m.AccountKeys)
	if n == 0 || n > MaxAccountKeys {
		return ErrTooManyAccounts
	}
	h := m.Header
	if h.NumRequiredSignatures == 0 ||
		int(h.NumRequiredSignatures) > n ||
		h.NumReadonlySignedAccounts >= h.NumRequiredSignatures ||
		int(h.NumReadonlyUnsignedAccounts) > n-int(h.NumRequiredSignatures) {
		return ErrInvalidHeader
	}
	if len(m.Instructions) == 0 {
		return ErrNoInstructions
	}
	if len(m.Instructions) > MaxInstructions {
		return ErrTooManyInstructions
	}
	for i, ix := range m.Instructions {
		if int(ix.ProgramIDIndex) >= n || ix.ProgramIDIndex == 0 {
			return fmt.Errorf("instruction %d: program: %w", i, ErrInvalidIndex)
		}
		for _, idx := range ix.AccountIndexes {
			if int(idx) >= n {
				return fmt.Errorf("instruction %d: account: %w", i, ErrInvalidIndex)
			}
		}
	}
	return nil
}

// Decompile expands a compiled instruction back into an Instruction.
func (m *Message) Decompile(ix CompiledInstruction) (Instruction, error) {
	if int(ix.ProgramIDIndex) >= len(m.AccountKeys) {
		return Instruction{}, ErrInvalidIndex
	}
	out := Instruction{
		ProgramID: m.AccountKeys[ix.ProgramIDIndex],
		Data:      ix.Data,
	}
	for _, idx := range ix.AccountIndexes {
		if int(idx) >= len(m.AccountKeys) {
			return Instruction{}, ErrInvalidIndex
		}
		out.Accounts = append(out.Accounts, AccountMeta{
			Pubkey:     m.AccountKeys[idx],
			IsSigner:   m.IsSigner(int(idx)),
			IsWritable: m.IsWritable(int(idx)),
		})
	}
	return out, nil
}
