package clicker

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fortiblox/X1-Clicker/internal/types"
	"github.com/fortiblox/X1-Clicker/pkg/svm"
	"github.com/fortiblox/X1-Clicker/pkg/svm/message"
	"github.com/fortiblox/X1-Clicker/pkg/svm/pda"
	"github.com/fortiblox/X1-Clicker/pkg/svm/programs/system"
)

var testProgram = types.ClickerProgramAddr

// ledger is a minimal in-memory host: it resolves instruction accounts from
// a key-indexed map and runs nested System Program calls on shallow copies.
type ledger struct {
	accounts map[types.Pubkey]*svm.AccountInfo
	meter    *svm.ComputeMeter
	logs     []string
}

func newLedger() *ledger {
	l := &ledger{accounts: map[types.Pubkey]*svm.AccountInfo{}, meter: svm.NewComputeMeter(svm.CUDefault)}
	l.put(&svm.AccountInfo{Key: system.ProgramID, Owner: types.Pubkey{}, Executable: true})
	return l
}

func (l *ledger) put(acc *svm.AccountInfo) *svm.AccountInfo {
	l.accounts[acc.Key] = acc
	return acc
}

func (l *ledger) account(key types.Pubkey) *svm.AccountInfo {
	if acc, ok := l.accounts[key]; ok {
		return acc
	}
	return l.put(&svm.AccountInfo{Key: key, Owner: system.ProgramID})
}

func (l *ledger) fund(key types.Pubkey, lamports uint64) {
	l.account(key).Lamports = lamports
}

// run executes ix against the ledger with the metas' privileges. A key named
// by several metas gets the union of their flags, as in a compiled message.
func (l *ledger) run(t *testing.T, p *Processor, ix message.Instruction) error {
	t.Helper()
	for _, m := range ix.Accounts {
		acc := l.account(m.Pubkey)
		acc.IsSigner, acc.IsWritable = false, false
	}
	ctx := &invokeCtx{l: l, program: ix.ProgramID}
	for _, m := range ix.Accounts {
		acc := l.account(m.Pubkey)
		acc.IsSigner = acc.IsSigner || m.IsSigner
		acc.IsWritable = acc.IsWritable || m.IsWritable
		ctx.accounts = append(ctx.accounts, acc)
	}
	return p.Process(ctx, ix.Data)
}

type invokeCtx struct {
	l        *ledger
	program  types.Pubkey
	accounts []*svm.AccountInfo
}

func (c *invokeCtx) ProgramID() types.Pubkey { return c.program }
func (c *invokeCtx) NumAccounts() int        { return len(c.accounts) }

func (c *invokeCtx) GetAccount(i int) (*svm.AccountInfo, error) {
	if i < 0 || i >= len(c.accounts) {
		return nil, svm.ErrAccountNotFound
	}
	return c.accounts[i], nil
}

func (c *invokeCtx) GetRentMinimum(dataLen uint64) uint64 { return (128 + dataLen) * 3480 * 2 }
func (c *invokeCtx) ConsumeCU(units uint64) error      { return c.l.meter.Consume(units) }
func (c *invokeCtx) Log(msg string)                    { c.l.logs = append(c.l.logs, msg) }

func (c *invokeCtx) InvokeSigned(ix message.Instruction, signerSeeds [][][]byte) error {
	signed := map[types.Pubkey]bool{}
	for _, seeds := range signerSeeds {
		addr, err := pda.CreateProgramAddress(seeds, c.program)
		if err != nil {
			return err
		}
		signed[addr] = true
	}
	sub := &systemCtx{invokeCtx: c}
	for _, m := range ix.Accounts {
		orig := c.l.account(m.Pubkey)
		cp := *orig
		cp.IsSigner = orig.IsSigner || signed[m.Pubkey]
		sub.accounts = append(sub.accounts, &cp)
	}
	if err := system.NewProcessor().Process(sub, ix.Data); err != nil {
		return err
	}
	for _, acc := range sub.accounts {
		orig := c.l.accounts[acc.Key]
		orig.Lamports, orig.Owner, orig.Data = acc.Lamports, acc.Owner, acc.Data
	}
	return nil
}

type systemCtx struct {
	*invokeCtx
	accounts []*svm.AccountInfo
}

func (s *systemCtx) GetAccount(i int) (*svm.AccountInfo, error) {
	if i < 0 || i >= len(s.accounts) {
		return nil, svm.ErrAccountNotFound
	}
	return s.accounts[i], nil
}

func newProcessor(t *testing.T, cfg Config) *Processor {
	t.Helper()
	p, err := NewProcessor(cfg)
	require.NoError(t, err)
	return p
}

func stateOf(t *testing.T, l *ledger, user types.Pubkey) UserState {
	t.Helper()
	addr, _, err := UserStateAddress(user, testProgram)
	require.NoError(t, err)
	s, err := UnmarshalUserState(l.account(addr).Data)
	require.NoError(t, err)
	return s
}

func initUser(t *testing.T, l *ledger, p *Processor, user types.Pubkey) {
	t.Helper()
	l.fund(user, 1_000_000_000)
	ix, err := NewInitUserInstruction(testProgram, user)
	require.NoError(t, err)
	require.NoError(t, l.run(t, p, ix))
}

func setState(t *testing.T, l *ledger, user types.Pubkey, s UserState) {
	t.Helper()
	addr, _, err := UserStateAddress(user, testProgram)
	require.NoError(t, err)
	raw, err := s.MarshalBinary()
	require.NoError(t, err)
	l.account(addr).Data = raw
}

func TestInitUser(t *testing.T) {
	l := newLedger()
	p := newProcessor(t, DefaultConfig())
	user := types.Pubkey{1}
	initUser(t, l, p, user)

	addr, _, err := UserStateAddress(user, testProgram)
	require.NoError(t, err)
	acc := l.account(addr)
	require.Equal(t, testProgram, acc.Owner)
	require.Len(t, acc.Data, UserStateSize)
	rent := (128 + uint64(UserStateSize)) * 3480 * 2
	require.Equal(t, rent, acc.Lamports)
	require.Equal(t, 1_000_000_000-rent, l.account(user).Lamports)
	require.Equal(t, NewUserState(), stateOf(t, l, user))
	require.Contains(t, l.logs, "Instruction: InitUser")
}

func TestInitUserTwiceFails(t *testing.T) {
	l := newLedger()
	p := newProcessor(t, DefaultConfig())
	user := types.Pubkey{1}
	initUser(t, l, p, user)

	click, err := NewClickInstruction(testProgram, user)
	require.NoError(t, err)
	require.NoError(t, l.run(t, p, click))

	addr, _, _ := UserStateAddress(user, testProgram)
	before := l.account(addr).Snapshot()
	payerBefore := l.account(user).Lamports

	ix, err := NewInitUserInstruction(testProgram, user)
	require.NoError(t, err)
	require.ErrorIs(t, l.run(t, p, ix), ErrAlreadyInitialized)
	require.Equal(t, before, l.account(addr).Snapshot())
	require.Equal(t, payerBefore, l.account(user).Lamports)
}

func TestInitUserPrefundedAddress(t *testing.T) {
	l := newLedger()
	p := newProcessor(t, DefaultConfig())
	user := types.Pubkey{1}
	addr, _, _ := UserStateAddress(user, testProgram)
	l.fund(addr, 1)
	l.fund(user, 1_000_000_000)

	ix, err := NewInitUserInstruction(testProgram, user)
	require.NoError(t, err)
	require.ErrorIs(t, l.run(t, p, ix), ErrAlreadyInitialized)
}

func TestInitUserRejectsWrongAddress(t *testing.T) {
	l := newLedger()
	p := newProcessor(t, DefaultConfig())
	user := types.Pubkey{1}
	l.fund(user, 1_000_000_000)

	ix, err := NewInitUserInstruction(testProgram, user)
	require.NoError(t, err)
	ix.Accounts[1].Pubkey = types.Pubkey{0xEE}
	require.ErrorIs(t, l.run(t, p, ix), ErrAddressMismatch)
	require.Equal(t, uint64(1_000_000_000), l.account(user).Lamports)
}

func TestInitUserInsufficientFunds(t *testing.T) {
	l := newLedger()
	p := newProcessor(t, DefaultConfig())
	user := types.Pubkey{1}
	l.fund(user, 10)

	ix, err := NewInitUserInstruction(testProgram, user)
	require.NoError(t, err)
	require.ErrorIs(t, l.run(t, p, ix), system.ErrInsufficientFunds)
}

func TestClick(t *testing.T) {
	l := newLedger()
	p := newProcessor(t, DefaultConfig())
	user := types.Pubkey{1}
	initUser(t, l, p, user)
	setState(t, l, user, UserState{ClickBalance: 4, ValuePerClick: 3, CostToUpgradeV1: 10, CostToUpgradeV2: 20})

	ix, err := NewClickInstruction(testProgram, user)
	require.NoError(t, err)
	require.NoError(t, l.run(t, p, ix))
	require.Equal(t, UserState{ClickBalance: 7, ValuePerClick: 3, CostToUpgradeV1: 10, CostToUpgradeV2: 20}, stateOf(t, l, user))
}

func TestUpgradeThroughProcessor(t *testing.T) {
	l := newLedger()
	p := newProcessor(t, DefaultConfig())
	user := types.Pubkey{1}
	initUser(t, l, p, user)

	addr, _, _ := UserStateAddress(user, testProgram)
	before := bytes.Clone(l.account(addr).Data)

	ix, err := NewUpgradeInstruction(testProgram, user, 0)
	require.NoError(t, err)
	require.ErrorIs(t, l.run(t, p, ix), ErrNotEnoughToUpgrade)
	require.Equal(t, before, l.account(addr).Data)

	setState(t, l, user, UserState{ClickBalance: 10, ValuePerClick: 1, CostToUpgradeV1: 10, CostToUpgradeV2: 20})
	require.NoError(t, l.run(t, p, ix))
	require.Equal(t, UserState{ClickBalance: 0, ValuePerClick: 2, CostToUpgradeV1: 20, CostToUpgradeV2: 20}, stateOf(t, l, user))

	bad, err := NewUpgradeInstruction(testProgram, user, 7)
	require.NoError(t, err)
	require.ErrorIs(t, l.run(t, p, bad), ErrInvalidVariation)
}

func TestTransferThroughProcessor(t *testing.T) {
	l := newLedger()
	p := newProcessor(t, DefaultConfig())
	alice, bob := types.Pubkey{1}, types.Pubkey{2}
	initUser(t, l, p, alice)
	initUser(t, l, p, bob)
	setState(t, l, alice, UserState{ClickBalance: 5, ValuePerClick: 1, CostToUpgradeV1: 10, CostToUpgradeV2: 20})

	aliceAddr, _, _ := UserStateAddress(alice, testProgram)
	bobAddr, _, _ := UserStateAddress(bob, testProgram)
	aliceBefore := bytes.Clone(l.account(aliceAddr).Data)
	bobBefore := bytes.Clone(l.account(bobAddr).Data)

	tooMuch, err := NewTransferInstruction(testProgram, alice, bob, 6)
	require.NoError(t, err)
	require.ErrorIs(t, l.run(t, p, tooMuch), ErrNotEnoughToTransfer)
	require.Equal(t, aliceBefore, l.account(aliceAddr).Data)
	require.Equal(t, bobBefore, l.account(bobAddr).Data)

	ok, err := NewTransferInstruction(testProgram, alice, bob, 4)
	require.NoError(t, err)
	require.NoError(t, l.run(t, p, ok))
	require.Equal(t, UserState{ClickBalance: 1, ValuePerClick: 2, CostToUpgradeV1: 10, CostToUpgradeV2: 20}, stateOf(t, l, alice))
	require.Equal(t, uint64(4), stateOf(t, l, bob).ClickBalance)

	self, err := NewTransferInstruction(testProgram, alice, alice, 1)
	require.NoError(t, err)
	require.ErrorIs(t, l.run(t, p, self), ErrSelfTransfer)
}

func TestSignerCheck(t *testing.T) {
	user := types.Pubkey{1}

	t.Run("hardened", func(t *testing.T) {
		l := newLedger()
		p := newProcessor(t, DefaultConfig())
		initUser(t, l, p, user)

		ix, err := NewClickInstruction(testProgram, user)
		require.NoError(t, err)
		ix.Accounts[0].IsSigner = false
		require.ErrorIs(t, l.run(t, p, ix), ErrMissingSignature)
		require.Equal(t, uint64(0), stateOf(t, l, user).ClickBalance)
	})

	t.Run("legacy", func(t *testing.T) {
		l := newLedger()
		p := newProcessor(t, Config{SkipSignerCheck: true, SkipAddressCheck: true})
		initUser(t, l, p, user)

		ix, err := NewClickInstruction(testProgram, user)
		require.NoError(t, err)
		ix.Accounts[0].IsSigner = false
		// Any key may stand in for the user once both checks are off.
		ix.Accounts[0].Pubkey = types.Pubkey{0x42}
		require.NoError(t, l.run(t, p, ix))
		require.Equal(t, uint64(1), stateOf(t, l, user).ClickBalance)
	})
}

func TestStateAccountChecks(t *testing.T) {
	l := newLedger()
	p := newProcessor(t, DefaultConfig())
	alice, mallory := types.Pubkey{1}, types.Pubkey{3}
	initUser(t, l, p, alice)
	initUser(t, l, p, mallory)

	// Mallory signs but points at Alice's state.
	ix, err := NewClickInstruction(testProgram, mallory)
	require.NoError(t, err)
	aliceAddr, _, _ := UserStateAddress(alice, testProgram)
	ix.Accounts[1].Pubkey = aliceAddr
	require.ErrorIs(t, l.run(t, p, ix), ErrAddressMismatch)

	// A state account the program does not own.
	ix, err = NewClickInstruction(testProgram, alice)
	require.NoError(t, err)
	l.account(aliceAddr).Owner = system.ProgramID
	require.ErrorIs(t, l.run(t, p, ix), ErrIllegalOwner)

	l.account(aliceAddr).Owner = testProgram
	l.account(aliceAddr).Data = []byte{1, 2, 3}
	require.ErrorIs(t, l.run(t, p, ix), ErrCorruptState)
}

func TestNotEnoughAccounts(t *testing.T) {
	l := newLedger()
	p := newProcessor(t, DefaultConfig())
	ix, err := NewTransferInstruction(testProgram, types.Pubkey{1}, types.Pubkey{2}, 1)
	require.NoError(t, err)
	ix.Accounts = ix.Accounts[:3]
	require.ErrorIs(t, l.run(t, p, ix), ErrNotEnoughAccountKeys)
}

func TestComputeBudget(t *testing.T) {
	l := newLedger()
	p := newProcessor(t, DefaultConfig())
	user := types.Pubkey{1}
	initUser(t, l, p, user)

	l.meter = svm.NewComputeMeter(CUBase + 1)
	ix, err := NewClickInstruction(testProgram, user)
	require.NoError(t, err)
	require.ErrorIs(t, l.run(t, p, ix), svm.ErrComputeExceeded)
	require.Equal(t, uint64(0), stateOf(t, l, user).ClickBalance)
}
