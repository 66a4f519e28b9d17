package executor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fortiblox/X1-Clicker/internal/keys"
	"github.com/fortiblox/X1-Clicker/internal/types"
	"github.com/fortiblox/X1-Clicker/pkg/accounts"
	"github.com/fortiblox/X1-Clicker/pkg/journal"
	"github.com/fortiblox/X1-Clicker/pkg/metrics"
	"github.com/fortiblox/X1-Clicker/pkg/svm/message"
	"github.com/fortiblox/X1-Clicker/pkg/svm/programs/clicker"
	"github.com/fortiblox/X1-Clicker/pkg/svm/programs/system"
)

type harness struct {
	t       *testing.T
	db      *accounts.MemoryDB
	journal *journal.BoltStore
	exec    *TransactionExecutor
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	db := accounts.NewMemoryDB()
	j, err := journal.Open(journal.DefaultConfig(filepath.Join(t.TempDir(), "journal.db")))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return time.Unix(1700000000, 0) }
	for _, m := range mutate {
		m(&cfg)
	}
	exec, err := NewTransactionExecutor(db, j, metrics.New(), cfg)
	require.NoError(t, err)
	return &harness{t: t, db: db, journal: j, exec: exec}
}

func (h *harness) keypair() *keys.Keypair {
	kp, err := keys.Generate(nil)
	require.NoError(h.t, err)
	return kp
}

func (h *harness) fund(kp *keys.Keypair) {
	_, err := h.exec.Airdrop(kp.PublicKey(), LamportsPerSOL)
	require.NoError(h.t, err)
}

func (h *harness) tx(payer *keys.Keypair, ixs ...message.Instruction) *message.Transaction {
	msg, err := message.NewMessage(payer.PublicKey(), ixs, h.exec.LatestBlockhash())
	require.NoError(h.t, err)
	tx, err := message.NewTransaction(msg, payer)
	require.NoError(h.t, err)
	return tx
}

func (h *harness) send(payer *keys.Keypair, ixs ...message.Instruction) *ExecutionResult {
	res, err := h.exec.Execute(h.tx(payer, ixs...))
	require.NoError(h.t, err)
	return res
}

func (h *harness) state(user types.Pubkey) clicker.UserState {
	addr, _, err := clicker.UserStateAddress(user, types.ClickerProgramAddr)
	require.NoError(h.t, err)
	acc, err := h.db.GetAccount(addr)
	require.NoError(h.t, err)
	require.Equal(h.t, types.ClickerProgramAddr, acc.Owner)
	s, err := clicker.UnmarshalUserState(acc.Data)
	require.NoError(h.t, err)
	return s
}

func (h *harness) initUser(kp *keys.Keypair) {
	ix, err := clicker.NewInitUserInstruction(types.ClickerProgramAddr, kp.PublicKey())
	require.NoError(h.t, err)
	res := h.send(kp, ix)
	require.True(h.t, res.Success, "%v", res.Logs)
}

func TestClickerFlow(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.keypair(), h.keypair()
	h.fund(alice)
	h.fund(bob)

	h.initUser(alice)
	h.initUser(bob)
	require.Equal(t, clicker.NewUserState(), h.state(alice.PublicKey()))

	addr, _, err := clicker.UserStateAddress(alice.PublicKey(), types.ClickerProgramAddr)
	require.NoError(t, err)
	stateAcc, err := h.db.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, MinimumBalance(clicker.UserStateSize), stateAcc.Lamports)
	payer, err := h.db.GetAccount(alice.PublicKey())
	require.NoError(t, err)
	require.Equal(t, LamportsPerSOL-MinimumBalance(clicker.UserStateSize), payer.Lamports)

	click, err := clicker.NewClickInstruction(types.ClickerProgramAddr, alice.PublicKey())
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		res := h.send(alice, click)
		require.True(t, res.Success, "%v", res.Logs)
	}
	require.Equal(t, uint64(12), h.state(alice.PublicKey()).ClickBalance)

	upgrade, err := clicker.NewUpgradeInstruction(types.ClickerProgramAddr, alice.PublicKey(), 0)
	require.NoError(t, err)
	res := h.send(alice, upgrade)
	require.True(t, res.Success, "%v", res.Logs)
	s := h.state(alice.PublicKey())
	require.Equal(t, uint64(2), s.ClickBalance)
	require.Equal(t, uint32(2), s.ValuePerClick)
	require.Equal(t, uint32(20), s.CostToUpgradeV1)

	transfer, err := clicker.NewTransferInstruction(types.ClickerProgramAddr, alice.PublicKey(), bob.PublicKey(), 2)
	require.NoError(t, err)
	res = h.send(alice, transfer)
	require.True(t, res.Success, "%v", res.Logs)
	require.Len(t, res.ModifiedAccounts, 2)
	require.False(t, res.DeltaHash.IsZero())
	require.Equal(t, uint64(0), h.state(alice.PublicKey()).ClickBalance)
	require.Equal(t, uint64(2), h.state(bob.PublicKey()).ClickBalance)

	rec, err := h.journal.Get(res.Signature)
	require.NoError(t, err)
	require.True(t, rec.Succeeded())
	require.Equal(t, res.Slot, rec.Slot)
	require.Contains(t, rec.Logs, "Program log: Instruction: TransferClicks 2")

	history, err := h.journal.SignaturesForAddress(bob.PublicKey(), nil)
	require.NoError(t, err)
	require.Equal(t, res.Signature, history[0].Signature)
}

func TestFailedTransactionLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	alice := h.keypair()
	h.fund(alice)
	h.initUser(alice)

	before, err := accounts.ComputeStateHash(h.db)
	require.NoError(t, err)

	// A click followed by an unaffordable upgrade: the click must not land.
	click, err := clicker.NewClickInstruction(types.ClickerProgramAddr, alice.PublicKey())
	require.NoError(t, err)
	upgrade, err := clicker.NewUpgradeInstruction(types.ClickerProgramAddr, alice.PublicKey(), 1)
	require.NoError(t, err)
	res := h.send(alice, click, upgrade)
	require.False(t, res.Success)
	require.Equal(t, 1, res.Err.InstructionIndex)
	require.NotNil(t, res.Err.CustomCode)
	require.Equal(t, uint32(0), *res.Err.CustomCode)
	require.Empty(t, res.ModifiedAccounts)

	after, err := accounts.ComputeStateHash(h.db)
	require.NoError(t, err)
	require.Equal(t, before, after)

	rec, err := h.journal.Get(res.Signature)
	require.NoError(t, err)
	require.False(t, rec.Succeeded())
}

func TestSecondInitFails(t *testing.T) {
	h := newHarness(t)
	alice := h.keypair()
	h.fund(alice)
	h.initUser(alice)

	ix, err := clicker.NewInitUserInstruction(types.ClickerProgramAddr, alice.PublicKey())
	require.NoError(t, err)
	res := h.send(alice, ix)
	require.False(t, res.Success)
	require.Equal(t, uint32(4), *res.Err.CustomCode)
}

func TestSelfTransferFails(t *testing.T) {
	h := newHarness(t)
	alice := h.keypair()
	h.fund(alice)
	h.initUser(alice)

	click, err := clicker.NewClickInstruction(types.ClickerProgramAddr, alice.PublicKey())
	require.NoError(t, err)
	require.True(t, h.send(alice, click).Success)
	before, err := accounts.ComputeStateHash(h.db)
	require.NoError(t, err)

	for _, amount := range []uint64{0, 1} {
		ix, err := clicker.NewTransferInstruction(types.ClickerProgramAddr, alice.PublicKey(), alice.PublicKey(), amount)
		require.NoError(t, err)
		res := h.send(alice, ix)
		require.False(t, res.Success)
		require.NotNil(t, res.Err.CustomCode)
		require.Equal(t, clicker.ErrSelfTransfer.Code, *res.Err.CustomCode)
		require.Empty(t, res.ModifiedAccounts)
	}

	after, err := accounts.ComputeStateHash(h.db)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, uint64(1), h.state(alice.PublicKey()).ClickBalance)
}

func TestRejections(t *testing.T) {
	h := newHarness(t)
	alice := h.keypair()
	h.fund(alice)
	h.initUser(alice)

	click, err := clicker.NewClickInstruction(types.ClickerProgramAddr, alice.PublicKey())
	require.NoError(t, err)
	tx := h.tx(alice, click)

	res, err := h.exec.Execute(tx)
	require.NoError(t, err)
	require.True(t, res.Success)

	_, err = h.exec.Execute(tx)
	require.ErrorIs(t, err, ErrAlreadyProcessed)
	require.Equal(t, uint64(1), h.state(alice.PublicKey()).ClickBalance)

	tampered := h.tx(alice, click)
	tampered.Signatures[0][0] ^= 0xFF
	_, err = h.exec.Execute(tampered)
	require.ErrorIs(t, err, ErrInvalidTransaction)

	_, err = h.exec.ExecuteRaw([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidTransaction)
}

func TestExecuteRaw(t *testing.T) {
	h := newHarness(t)
	alice := h.keypair()
	h.fund(alice)

	ix, err := clicker.NewInitUserInstruction(types.ClickerProgramAddr, alice.PublicKey())
	require.NoError(t, err)
	tx := h.tx(alice, ix)
	res, err := h.exec.ExecuteRaw(tx.Serialize())
	require.NoError(t, err)
	require.True(t, res.Success, "%v", res.Logs)

	rec, err := h.journal.Get(res.Signature)
	require.NoError(t, err)
	require.Equal(t, tx.Serialize(), rec.Raw)
}

func TestSimulateDoesNotCommit(t *testing.T) {
	h := newHarness(t)
	alice := h.keypair()
	h.fund(alice)
	h.initUser(alice)

	click, err := clicker.NewClickInstruction(types.ClickerProgramAddr, alice.PublicKey())
	require.NoError(t, err)
	tx := h.tx(alice, click)
	res, err := h.exec.Simulate(tx)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.ModifiedAccounts, 1)
	require.Equal(t, uint64(0), h.state(alice.PublicKey()).ClickBalance)

	has, err := h.journal.Has(tx.Signature())
	require.NoError(t, err)
	require.False(t, has)
}

func TestSystemTransfer(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.keypair(), h.keypair()
	h.fund(alice)

	res := h.send(alice, system.NewTransferInstruction(alice.PublicKey(), bob.PublicKey(), 1000))
	require.True(t, res.Success, "%v", res.Logs)
	acc, err := h.db.GetAccount(bob.PublicKey())
	require.NoError(t, err)
	require.Equal(t, uint64(1000), acc.Lamports)
}

// Lamports sent to a user's state address before InitUser occupy it, and
// the user can never initialize.
func TestPrefundedStateAddressBlocksInit(t *testing.T) {
	h := newHarness(t)
	alice, mallory := h.keypair(), h.keypair()
	h.fund(alice)
	h.fund(mallory)

	addr, _, err := clicker.UserStateAddress(alice.PublicKey(), types.ClickerProgramAddr)
	require.NoError(t, err)
	res := h.send(mallory, system.NewTransferInstruction(mallory.PublicKey(), addr, 1))
	require.True(t, res.Success, "%v", res.Logs)

	ix, err := clicker.NewInitUserInstruction(types.ClickerProgramAddr, alice.PublicKey())
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		res = h.send(alice, ix)
		require.False(t, res.Success)
		require.Equal(t, clicker.ErrAlreadyInitialized.Code, *res.Err.CustomCode)
	}
}

func TestUnknownProgram(t *testing.T) {
	h := newHarness(t)
	alice := h.keypair()
	h.fund(alice)

	res := h.send(alice, message.Instruction{ProgramID: types.Pubkey{9}, Data: []byte{0}})
	require.False(t, res.Success)
	require.Nil(t, res.Err.CustomCode)
}

func TestComputeLimit(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.ComputeLimit = 1000 })
	alice := h.keypair()
	h.fund(alice)

	ix, err := clicker.NewInitUserInstruction(types.ClickerProgramAddr, alice.PublicKey())
	require.NoError(t, err)
	res := h.send(alice, ix)
	require.False(t, res.Success)
	require.Equal(t, uint64(1000), res.ComputeUnitsUsed)
}

func TestAirdrop(t *testing.T) {
	h := newHarness(t)
	to := types.Pubkey{7}

	res, err := h.exec.Airdrop(to, 500)
	require.NoError(t, err)
	require.Equal(t, uint64(1), res.Slot)
	acc, err := h.db.GetAccount(to)
	require.NoError(t, err)
	require.Equal(t, uint64(500), acc.Lamports)

	rec, err := h.journal.Get(res.Signature)
	require.NoError(t, err)
	require.Equal(t, journal.KindAirdrop, rec.Kind)

	_, err = h.exec.Airdrop(to, 0)
	require.ErrorIs(t, err, ErrInvalidAirdrop)
	_, err = h.exec.Airdrop(to, 11*LamportsPerSOL)
	require.ErrorIs(t, err, ErrInvalidAirdrop)

	require.NotEqual(t, blockhash(0), h.exec.LatestBlockhash())
}

func TestMinimumBalance(t *testing.T) {
	require.Equal(t, uint64(1030080), MinimumBalance(20))
	require.Equal(t, uint64(890880), MinimumBalance(0))
}
