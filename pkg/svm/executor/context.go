package executor

import (
	"bytes"
	"errors"
	"fmt"
	"math/bits"

	"github.com/fortiblox/X1-Clicker/internal/types"
	"github.com/fortiblox/X1-Clicker/pkg/accounts"
	"github.com/fortiblox/X1-Clicker/pkg/svm"
	"github.com/fortiblox/X1-Clicker/pkg/svm/message"
	"github.com/fortiblox/X1-Clicker/pkg/svm/pda"
)

// MaxInvokeDepth bounds nesting of cross-program invocations, counting the
// top-level instruction.
const MaxInvokeDepth = 4

// Runtime rule violations.
var (
	ErrReadonlyModified        = errors.New("instruction modified a readonly account")
	ErrExternalAccountModified = errors.New("instruction modified an account it does not own")
	ErrExecutableModified      = errors.New("instruction modified an executable account")
	ErrUnbalancedInstruction   = errors.New("sum of account balances before and after instruction do not match")
	ErrPrivilegeEscalation     = errors.New("cross-program invocation with unauthorized signer or writable account")
	ErrCallDepth               = errors.New("cross-program invocation call depth too deep")
	ErrMissingAccount          = errors.New("invoked instruction references an account the caller does not hold")
)

// txContext is the state of one transaction being executed.
type txContext struct {
	e        *TransactionExecutor
	accounts []*svm.AccountInfo
	meter    *svm.ComputeMeter
	logs     []string
}

func (tc *txContext) log(format string, args ...any) {
	tc.logs = append(tc.logs, fmt.Sprintf(format, args...))
}

// invoke runs one instruction, top-level or nested, and checks the account
// rules against the program that ran it.
func (tc *txContext) invoke(programID types.Pubkey, handles []*svm.AccountInfo, data []byte, depth int) error {
	ctx := &invokeContext{tx: tc, programID: programID, accounts: handles, depth: depth}
	ctx.refresh()

	tc.log("Program %s invoke [%d]", programID, depth)
	before := tc.meter.Consumed()
	err := tc.e.dispatch(ctx, programID, data)
	if err == nil {
		err = ctx.verify()
	}
	tc.log("Program %s consumed %d of %d compute units", programID, tc.meter.Consumed()-before, tc.meter.Limit())
	if err != nil {
		tc.log("Program %s failed: %v", programID, err)
		return err
	}
	tc.log("Program %s success", programID)
	return nil
}

// updates returns every account that changed since loading, in message
// order.
func (tc *txContext) updates() []accounts.AccountUpdate {
	var out []accounts.AccountUpdate
	for _, acc := range tc.accounts {
		if !acc.IsModified() {
			continue
		}
		out = append(out, accounts.AccountUpdate{
			Pubkey: acc.Key,
			Account: &accounts.Account{
				Lamports:   acc.Lamports,
				Data:       acc.Data,
				Owner:      acc.Owner,
				Executable: acc.Executable,
				RentEpoch:  acc.RentEpoch,
			},
		})
	}
	return out
}

// invokeContext is what one program sees while it runs. It serves both the
// System Program and the clicker program.
type invokeContext struct {
	tx        *txContext
	programID types.Pubkey
	accounts  []*svm.AccountInfo
	depth     int

	// pre holds account state at entry, or after the last nested call.
	pre map[types.Pubkey]svm.AccountSnapshot
}

func (c *invokeContext) ProgramID() types.Pubkey { return c.programID }

func (c *invokeContext) NumAccounts() int { return len(c.accounts) }

func (c *invokeContext) GetAccount(index int) (*svm.AccountInfo, error) {
	if index < 0 || index >= len(c.accounts) {
		return nil, fmt.Errorf("%w: index %d", svm.ErrAccountNotFound, index)
	}
	return c.accounts[index], nil
}

func (c *invokeContext) GetRentMinimum(dataLen uint64) uint64 {
	return MinimumBalance(dataLen)
}

func (c *invokeContext) ConsumeCU(units uint64) error {
	return c.tx.meter.Consume(units)
}

func (c *invokeContext) Log(msg string) {
	c.tx.log("Program log: %s", msg)
}

func (c *invokeContext) find(key types.Pubkey) (*svm.AccountInfo, bool) {
	for _, acc := range c.accounts {
		if acc.Key == key {
			return acc, true
		}
	}
	return nil, false
}

func (c *invokeContext) refresh() {
	c.pre = make(map[types.Pubkey]svm.AccountSnapshot, len(c.accounts))
	for _, acc := range c.accounts {
		c.pre[acc.Key] = acc.Snapshot()
	}
}

// InvokeSigned runs ix as a nested call. Every seed set is turned into a
// derived address under the calling program, and those addresses count as
// signers. The callee works on copies of the caller's accounts, which are
// written back only if it succeeds.
func (c *invokeContext) InvokeSigned(ix message.Instruction, signerSeeds [][][]byte) error {
	if c.depth >= MaxInvokeDepth {
		return fmt.Errorf("%w: %d", ErrCallDepth, c.depth+1)
	}
	if err := c.ConsumeCU(svm.CUInvokeBase); err != nil {
		return err
	}

	signers := make(map[types.Pubkey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		if err := c.ConsumeCU(svm.CUCreateProgramAddress); err != nil {
			return err
		}
		addr, err := pda.CreateProgramAddress(seeds, c.programID)
		if err != nil {
			return fmt.Errorf("signer seeds: %w", err)
		}
		signers[addr] = true
	}

	if _, ok := c.find(ix.ProgramID); !ok {
		return fmt.Errorf("%w: program %s", ErrMissingAccount, ix.ProgramID)
	}

	copies := make(map[types.Pubkey]*svm.AccountInfo, len(ix.Accounts))
	callee := make([]*svm.AccountInfo, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		parent, ok := c.find(meta.Pubkey)
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingAccount, meta.Pubkey)
		}
		if meta.IsWritable && !parent.IsWritable {
			return fmt.Errorf("%w: %s is not writable", ErrPrivilegeEscalation, meta.Pubkey)
		}
		if meta.IsSigner && !parent.IsSigner && !signers[meta.Pubkey] {
			return fmt.Errorf("%w: %s did not sign", ErrPrivilegeEscalation, meta.Pubkey)
		}

		cp, ok := copies[meta.Pubkey]
		if !ok {
			shallow := *parent
			shallow.IsSigner, shallow.IsWritable = false, false
			cp = &shallow
			copies[meta.Pubkey] = cp
		}
		cp.IsSigner = cp.IsSigner || meta.IsSigner
		cp.IsWritable = cp.IsWritable || meta.IsWritable
		callee[i] = cp
	}

	if err := c.tx.invoke(ix.ProgramID, callee, ix.Data, c.depth+1); err != nil {
		return err
	}

	for key, cp := range copies {
		parent, _ := c.find(key)
		parent.Owner = cp.Owner
		parent.Lamports = cp.Lamports
		parent.Data = cp.Data
	}
	c.refresh()
	return nil
}

// verify enforces the account rules for the running program:
//   - only writable accounts change
//   - executable accounts never change
//   - only the owner changes data or owner, or debits lamports
//   - the instruction neither creates nor destroys lamports
func (c *invokeContext) verify() error {
	var preSum, postSum uint128
	seen := make(map[types.Pubkey]bool, len(c.accounts))
	for _, acc := range c.accounts {
		if seen[acc.Key] {
			continue
		}
		seen[acc.Key] = true

		pre := c.pre[acc.Key]
		preSum.add(pre.Lamports)
		postSum.add(acc.Lamports)

		dataChanged := !bytes.Equal(pre.Data, acc.Data)
		ownerChanged := pre.Owner != acc.Owner
		if !dataChanged && !ownerChanged && pre.Lamports == acc.Lamports {
			continue
		}
		if !acc.IsWritable {
			return fmt.Errorf("%w: %s", ErrReadonlyModified, acc.Key)
		}
		if acc.Executable {
			return fmt.Errorf("%w: %s", ErrExecutableModified, acc.Key)
		}
		if (dataChanged || ownerChanged || acc.Lamports < pre.Lamports) && pre.Owner != c.programID {
			return fmt.Errorf("%w: %s owned by %s", ErrExternalAccountModified, acc.Key, pre.Owner)
		}
	}
	if preSum != postSum {
		return ErrUnbalancedInstruction
	}
	return nil
}

type uint128 struct{ hi, lo uint64 }

func (u *uint128) add(v uint64) {
	var carry uint64
	u.lo, carry = bits.Add64(u.lo, v, 0)
	u.hi += carry
}
