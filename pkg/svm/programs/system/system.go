// Package system implements the native System Program subset the ledger
// host needs.
//
// The System Program is responsible for:
// - Creating new accounts
// - Transferring lamports
// - Assigning account ownership
// - Allocating account space
package system

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fortiblox/X1-Clicker/internal/types"
	"github.com/fortiblox/X1-Clicker/pkg/svm"
	"github.com/fortiblox/X1-Clicker/pkg/svm/message"
)

// ProgramID is the System Program address.
var ProgramID = types.SystemProgramAddr

// Instruction discriminants.
const (
	InstructionCreateAccount uint32 = 0
	InstructionAssign        uint32 = 1
	InstructionTransfer      uint32 = 2
	InstructionAllocate      uint32 = 8
)

// Error types.
var (
	ErrInvalidInstructionData   = errors.New("invalid instruction data")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrAccountAlreadyInUse      = errors.New("account already in use")
	ErrNotEnoughAccountKeys     = errors.New("not enough account keys")
	ErrInvalidAccountOwner      = errors.New("invalid account owner")
	ErrAccountNotRentExempt     = errors.New("account not rent exempt")
	ErrMissingRequiredSignature = errors.New("missing required signature")
	ErrAccountNotWritable       = errors.New("account not writable")
	ErrAccountDataTooSmall      = errors.New("account data too small")
	ErrAccountDataTooLarge      = errors.New("account data too large")
	ErrLamportOverflow          = errors.New("lamport overflow")
)

// MaxAccountDataSize is the largest allocation the program accepts.
const MaxAccountDataSize = 10 * 1024 * 1024 // 10 MB

// InvokeContext provides context for program execution.
type InvokeContext interface {
	// GetAccount returns the account at the given instruction index.
	GetAccount(index int) (*svm.AccountInfo, error)

	// GetRentMinimum returns the rent-exempt minimum for given data size.
	GetRentMinimum(dataLen uint64) uint64

	// Log records a log message.
	Log(msg string)
}

// Processor executes System Program instructions.
type Processor struct{}

// NewProcessor creates a new System Program processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process executes a System Program instruction.
func (p *Processor) Process(ctx InvokeContext, data []byte) error {
	if len(data) < 4 {
		return ErrInvalidInstructionData
	}

	switch binary.LittleEndian.Uint32(data[:4]) {
	case InstructionCreateAccount:
		return p.processCreateAccount(ctx, data[4:])
	case InstructionAssign:
		return p.processAssign(ctx, data[4:])
	case InstructionTransfer:
		return p.processTransfer(ctx, data[4:])
	case InstructionAllocate:
		return p.processAllocate(ctx, data[4:])
	default:
		return ErrInvalidInstructionData
	}
}

// CreateAccountParams for CreateAccount instruction.
type CreateAccountParams struct {
	Lamports uint64
	Space    uint64
	Owner    types.Pubkey
}

func (p *Processor) processCreateAccount(ctx InvokeContext, data []byte) error {
	// lamports (8) + space (8) + owner (32)
	if len(data) != 48 {
		return ErrInvalidInstructionData
	}
	params := CreateAccountParams{
		Lamports: binary.LittleEndian.Uint64(data[0:8]),
		Space:    binary.LittleEndian.Uint64(data[8:16]),
	}
	copy(params.Owner[:], data[16:48])

	if params.Space > MaxAccountDataSize {
		return ErrAccountDataTooLarge
	}

	funder, newAccount, err := twoAccounts(ctx)
	if err != nil {
		return err
	}

	if !funder.IsSigner || !newAccount.IsSigner {
		return ErrMissingRequiredSignature
	}
	if !funder.IsWritable || !newAccount.IsWritable {
		return ErrAccountNotWritable
	}

	// The target must be empty: system-owned, no data, no lamports.
	if newAccount.Owner != ProgramID || len(newAccount.Data) > 0 || newAccount.Lamports > 0 {
		ctx.Log(fmt.Sprintf("Create Account: account %s already in use", newAccount.Key))
		return ErrAccountAlreadyInUse
	}

	if funder.Lamports < params.Lamports {
		ctx.Log(fmt.Sprintf("Transfer: insufficient lamports %d, need %d", funder.Lamports, params.Lamports))
		return ErrInsufficientFunds
	}

	if params.Lamports < ctx.GetRentMinimum(params.Space) {
		return ErrAccountNotRentExempt
	}

	funder.Lamports -= params.Lamports
	newAccount.Lamports = params.Lamports
	newAccount.Data = make([]byte, params.Space)
	newAccount.Owner = params.Owner
	return nil
}

func (p *Processor) processAssign(ctx InvokeContext, data []byte) error {
	if len(data) != 32 {
		return ErrInvalidInstructionData
	}
	var newOwner types.Pubkey
	copy(newOwner[:], data)

	account, err := ctx.GetAccount(0)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}
	if !account.IsSigner {
		return ErrMissingRequiredSignature
	}
	if account.Owner != ProgramID {
		return ErrInvalidAccountOwner
	}

	account.Owner = newOwner
	return nil
}

func (p *Processor) processTransfer(ctx InvokeContext, data []byte) error {
	if len(data) != 8 {
		return ErrInvalidInstructionData
	}
	lamports := binary.LittleEndian.Uint64(data)

	from, to, err := twoAccounts(ctx)
	if err != nil {
		return err
	}

	if !from.IsSigner {
		return ErrMissingRequiredSignature
	}
	if !from.IsWritable || !to.IsWritable {
		return ErrAccountNotWritable
	}
	// Only system-owned accounts can be debited by this program.
	if from.Owner != ProgramID {
		return ErrInvalidAccountOwner
	}
	if from.Lamports < lamports {
		ctx.Log(fmt.Sprintf("Transfer: insufficient lamports %d, need %d", from.Lamports, lamports))
		return ErrInsufficientFunds
	}
	if from.Key == to.Key {
		return nil
	}
	if to.Lamports > ^uint64(0)-lamports {
		return ErrLamportOverflow
	}

	from.Lamports -= lamports
	to.Lamports += lamports
	return nil
}

func (p *Processor) processAllocate(ctx InvokeContext, data []byte) error {
	if len(data) != 8 {
		return ErrInvalidInstructionData
	}
	space := binary.LittleEndian.Uint64(data)
	if space > MaxAccountDataSize {
		return ErrAccountDataTooLarge
	}

	account, err := ctx.GetAccount(0)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}
	if !account.IsSigner {
		return ErrMissingRequiredSignature
	}
	if account.Owner != ProgramID {
		return ErrInvalidAccountOwner
	}
	if len(account.Data) > 0 {
		return ErrAccountAlreadyInUse
	}

	account.Data = make([]byte, space)
	return nil
}

func twoAccounts(ctx InvokeContext) (*svm.AccountInfo, *svm.AccountInfo, error) {
	a, err := ctx.GetAccount(0)
	if err != nil {
		return nil, nil, ErrNotEnoughAccountKeys
	}
	b, err := ctx.GetAccount(1)
	if err != nil {
		return nil, nil, ErrNotEnoughAccountKeys
	}
	return a, b, nil
}

// NewCreateAccountInstruction builds a CreateAccount instruction funded by
// from. The new account must sign, directly or through derived-address seeds.
func NewCreateAccountInstruction(from, newAccount types.Pubkey, lamports, space uint64, owner types.Pubkey) message.Instruction {
	data := make([]byte, 4+48)
	binary.LittleEndian.PutUint32(data[0:4], InstructionCreateAccount)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	binary.LittleEndian.PutUint64(data[12:20], space)
	copy(data[20:52], owner[:])
	return message.Instruction{
		ProgramID: ProgramID,
		Accounts: []message.AccountMeta{
			{Pubkey: from, IsSigner: true, IsWritable: true},
			{Pubkey: newAccount, IsSigner: true, IsWritable: true},
		},
		Data: data,
	}
}

// NewTransferInstruction builds a lamport transfer.
func NewTransferInstruction(from, to types.Pubkey, lamports uint64) message.Instruction {
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data[0:4], InstructionTransfer)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	return message.Instruction{
		ProgramID: ProgramID,
		Accounts: []message.AccountMeta{
			{Pubkey: from, IsSigner: true, IsWritable: true},
			{Pubkey: to, IsWritable: true},
		},
		Data: data,
	}
}
