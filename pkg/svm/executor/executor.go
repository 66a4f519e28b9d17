// Package executor implements the ledger host: it verifies signed
// transactions, runs their instructions against the native programs,
// enforces the runtime account rules and commits the result atomically.
//
// Every executed transaction, successful or failed, is journaled. A
// signature that is already journaled is rejected, which makes replaying a
// transaction a no-op.
package executor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/zeebo/blake3"

	"github.com/fortiblox/X1-Clicker/internal/types"
	"github.com/fortiblox/X1-Clicker/pkg/accounts"
	"github.com/fortiblox/X1-Clicker/pkg/journal"
	"github.com/fortiblox/X1-Clicker/pkg/metrics"
	"github.com/fortiblox/X1-Clicker/pkg/svm"
	"github.com/fortiblox/X1-Clicker/pkg/svm/message"
	"github.com/fortiblox/X1-Clicker/pkg/svm/programs/clicker"
	"github.com/fortiblox/X1-Clicker/pkg/svm/programs/system"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = uint64(1_000_000_000)

// Executor errors.
var (
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrAlreadyProcessed   = errors.New("transaction already processed")
	ErrDuplicateAccount   = errors.New("account loaded twice")
	ErrInvalidAirdrop     = errors.New("invalid airdrop amount")
	ErrLamportOverflow    = errors.New("lamport overflow")
)

// MinimumBalance returns the rent-exempt minimum for an account holding
// dataLen bytes: two years of rent at 3480 lamports per byte-year, with 128
// bytes of account overhead.
func MinimumBalance(dataLen uint64) uint64 {
	return (128 + dataLen) * 3480 * 2
}

// Config holds executor configuration.
type Config struct {
	// ComputeLimit is the compute budget of one transaction.
	ComputeLimit uint64

	// ClickerProgramID is the address the clicker program is served under.
	ClickerProgramID types.Pubkey

	// Clicker configures the clicker engine.
	Clicker clicker.Config

	// MaxAirdropLamports caps a single faucet credit.
	MaxAirdropLamports uint64

	// Now supplies block times.
	Now func() time.Time
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{
		ComputeLimit:       svm.CUDefault,
		ClickerProgramID:   types.ClickerProgramAddr,
		Clicker:            clicker.DefaultConfig(),
		MaxAirdropLamports: 10 * LamportsPerSOL,
		Now:                time.Now,
	}
}

// ExecutionResult describes one executed transaction.
type ExecutionResult struct {
	Signature        types.Signature
	Slot             uint64
	Success          bool
	Err              *journal.TransactionError
	ComputeUnitsUsed uint64
	Logs             []string
	ModifiedAccounts []types.Pubkey
	DeltaHash        types.Hash
}

// TransactionExecutor executes transactions one at a time.
type TransactionExecutor struct {
	mu sync.Mutex

	cfg      Config
	accounts accounts.DB
	journal  journal.Store
	metrics  *metrics.Metrics

	system  *system.Processor
	clicker *clicker.Processor
}

// NewTransactionExecutor creates an executor over the given stores. m may
// be nil.
func NewTransactionExecutor(db accounts.DB, j journal.Store, m *metrics.Metrics, cfg Config) (*TransactionExecutor, error) {
	if cfg.ComputeLimit == 0 {
		cfg.ComputeLimit = svm.CUDefault
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cp, err := clicker.NewProcessor(cfg.Clicker)
	if err != nil {
		return nil, err
	}
	m.SetSlot(db.GetSlot())
	return &TransactionExecutor{
		cfg:      cfg,
		accounts: db,
		journal:  j,
		metrics:  m,
		system:   system.NewProcessor(),
		clicker:  cp,
	}, nil
}

// ClickerProgramID returns the address the clicker program is served under.
func (e *TransactionExecutor) ClickerProgramID() types.Pubkey {
	return e.cfg.ClickerProgramID
}

// LatestBlockhash returns the blockhash clients should sign against. It
// changes with every committed slot, so identical instructions sent in
// different slots carry different signatures.
func (e *TransactionExecutor) LatestBlockhash() types.Hash {
	return blockhash(e.accounts.GetSlot())
}

func blockhash(slot uint64) types.Hash {
	var buf [len("blockhash") + 8]byte
	copy(buf[:], "blockhash")
	binary.LittleEndian.PutUint64(buf[len("blockhash"):], slot)
	return blake3.Sum256(buf[:])
}

// ExecuteRaw decodes a wire transaction and executes it.
func (e *TransactionExecutor) ExecuteRaw(raw []byte) (*ExecutionResult, error) {
	tx, err := message.DeserializeTransaction(raw)
	if err != nil {
		e.metrics.TransactionRejected()
		return nil, fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	return e.execute(tx, raw)
}

// Execute executes a signed transaction. Transactions that fail
// verification or were already processed are rejected with an error and
// leave no trace; everything else is journaled and returned as a result.
func (e *TransactionExecutor) Execute(tx *message.Transaction) (*ExecutionResult, error) {
	return e.execute(tx, tx.Serialize())
}

func (e *TransactionExecutor) execute(tx *message.Transaction, raw []byte) (*ExecutionResult, error) {
	start := time.Now()
	if err := e.sanitize(tx); err != nil {
		e.metrics.TransactionRejected()
		return nil, err
	}
	if err := tx.Verify(); err != nil {
		e.metrics.TransactionRejected()
		return nil, fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	sig := tx.Signature()

	e.mu.Lock()
	defer e.mu.Unlock()

	seen, err := e.journal.Has(sig)
	if err != nil {
		return nil, fmt.Errorf("journal lookup: %w", err)
	}
	if seen {
		e.metrics.TransactionRejected()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, sig)
	}

	tc, failure, err := e.process(&tx.Message, len(tx.Signatures))
	if err != nil {
		return nil, err
	}

	var updates []accounts.AccountUpdate
	if failure == nil {
		updates = tc.updates()
	}
	slot := e.accounts.GetSlot() + 1
	if err := e.accounts.StoreAccounts(slot, updates); err != nil {
		log.Printf("[EXEC] Commit of %s failed: %v", sig, err)
		return nil, fmt.Errorf("commit: %w", err)
	}
	e.metrics.SetSlot(slot)

	result := &ExecutionResult{
		Signature:        sig,
		Slot:             slot,
		Success:          failure == nil,
		Err:              failure,
		ComputeUnitsUsed: tc.meter.Consumed(),
		Logs:             tc.logs,
		ModifiedAccounts: lo.Map(updates, func(u accounts.AccountUpdate, _ int) types.Pubkey { return u.Pubkey }),
	}
	if failure == nil {
		result.DeltaHash = accounts.ComputeDeltaHash(updates)
	}

	rec := &journal.Record{
		Signature:            sig,
		Kind:                 journal.KindTransaction,
		Slot:                 slot,
		BlockTime:            e.cfg.Now().Unix(),
		Raw:                  raw,
		AccountKeys:          tx.Message.AccountKeys,
		Err:                  failure,
		Logs:                 result.Logs,
		ComputeUnitsConsumed: result.ComputeUnitsUsed,
		DeltaHash:            result.DeltaHash,
	}
	if err := e.journal.Put(rec); err != nil {
		log.Printf("[EXEC] Journal of %s at slot %d failed: %v", sig, slot, err)
		return nil, fmt.Errorf("journal: %w", err)
	}

	e.metrics.TransactionProcessed(result.Success, result.ComputeUnitsUsed, time.Since(start))
	return result, nil
}

// Simulate runs a transaction without signature checks and without
// committing or journaling anything.
func (e *TransactionExecutor) Simulate(tx *message.Transaction) (*ExecutionResult, error) {
	if err := e.sanitize(tx); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tc, failure, err := e.process(&tx.Message, len(tx.Message.Signers()))
	if err != nil {
		return nil, err
	}
	result := &ExecutionResult{
		Signature:        tx.Signature(),
		Slot:             e.accounts.GetSlot(),
		Success:          failure == nil,
		Err:              failure,
		ComputeUnitsUsed: tc.meter.Consumed(),
		Logs:             tc.logs,
	}
	if failure == nil {
		updates := tc.updates()
		result.ModifiedAccounts = lo.Map(updates, func(u accounts.AccountUpdate, _ int) types.Pubkey { return u.Pubkey })
		result.DeltaHash = accounts.ComputeDeltaHash(updates)
	}
	return result, nil
}

func (e *TransactionExecutor) sanitize(tx *message.Transaction) error {
	if err := tx.Message.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	if len(lo.Uniq(tx.Message.AccountKeys)) != len(tx.Message.AccountKeys) {
		return fmt.Errorf("%w: %w", ErrInvalidTransaction, ErrDuplicateAccount)
	}
	return nil
}

// process loads the message accounts and runs every instruction. A non-nil
// TransactionError means execution failed and nothing may be committed; a
// non-nil error means the host itself failed.
func (e *TransactionExecutor) process(msg *message.Message, numSignatures int) (*txContext, *journal.TransactionError, error) {
	accts, err := e.loadAccounts(msg)
	if err != nil {
		return nil, nil, err
	}
	tc := &txContext{
		e:        e,
		accounts: accts,
		meter:    svm.NewComputeMeter(e.cfg.ComputeLimit),
	}

	if err := tc.meter.Consume(uint64(numSignatures) * svm.CUSignatureVerify); err != nil {
		return tc, transactionError(-1, err), nil
	}
	for i, cix := range msg.Instructions {
		programID := msg.AccountKeys[cix.ProgramIDIndex]
		handles := lo.Map(cix.AccountIndexes, func(idx uint8, _ int) *svm.AccountInfo { return accts[idx] })
		err := tc.invoke(programID, handles, cix.Data, 1)
		e.metrics.InstructionExecuted(e.programName(programID), err == nil)
		if err != nil {
			return tc, transactionError(i, err), nil
		}
	}
	return tc, nil, nil
}

// loadAccounts loads every message account with the privileges its
// position in the message grants. Missing accounts load as empty
// system-owned accounts.
func (e *TransactionExecutor) loadAccounts(msg *message.Message) ([]*svm.AccountInfo, error) {
	infos := make([]*svm.AccountInfo, len(msg.AccountKeys))
	for i, key := range msg.AccountKeys {
		acc, err := e.accounts.GetAccount(key)
		if errors.Is(err, accounts.ErrAccountNotFound) {
			acc = &accounts.Account{Owner: system.ProgramID}
		} else if err != nil {
			return nil, fmt.Errorf("load account %s: %w", key, err)
		}
		info := &svm.AccountInfo{
			Key:        key,
			Owner:      acc.Owner,
			Lamports:   acc.Lamports,
			Data:       acc.Data,
			Executable: acc.Executable,
			RentEpoch:  acc.RentEpoch,
			IsSigner:   msg.IsSigner(i),
			IsWritable: msg.IsWritable(i),
		}
		info.MarkOriginal()
		infos[i] = info
	}
	return infos, nil
}

func (e *TransactionExecutor) dispatch(ctx *invokeContext, programID types.Pubkey, data []byte) error {
	switch programID {
	case system.ProgramID:
		if err := ctx.ConsumeCU(svm.CUSystemProgramDefault); err != nil {
			return err
		}
		return e.system.Process(ctx, data)
	case e.cfg.ClickerProgramID:
		return e.clicker.Process(ctx, data)
	default:
		return fmt.Errorf("%w: %s", svm.ErrUnknownProgram, programID)
	}
}

func (e *TransactionExecutor) programName(programID types.Pubkey) string {
	switch programID {
	case system.ProgramID:
		return "system"
	case e.cfg.ClickerProgramID:
		return "clicker"
	default:
		return "unknown"
	}
}

func transactionError(index int, err error) *journal.TransactionError {
	te := &journal.TransactionError{InstructionIndex: index, Message: err.Error()}
	if code, ok := clicker.ErrorCode(err); ok {
		te.CustomCode = &code
	}
	return te
}

// Airdrop credits lamports to an account and journals the credit.
func (e *TransactionExecutor) Airdrop(to types.Pubkey, lamports uint64) (*ExecutionResult, error) {
	if lamports == 0 || lamports > e.cfg.MaxAirdropLamports {
		return nil, fmt.Errorf("%w: %d lamports (max %d)", ErrInvalidAirdrop, lamports, e.cfg.MaxAirdropLamports)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	acc, err := e.accounts.GetAccount(to)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		acc = &accounts.Account{Owner: system.ProgramID}
	} else if err != nil {
		return nil, fmt.Errorf("load account %s: %w", to, err)
	}
	if acc.Lamports+lamports < acc.Lamports {
		return nil, fmt.Errorf("%w: %s", ErrLamportOverflow, to)
	}
	acc.Lamports += lamports

	slot := e.accounts.GetSlot() + 1
	updates := []accounts.AccountUpdate{{Pubkey: to, Account: acc}}
	if err := e.accounts.StoreAccounts(slot, updates); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	e.metrics.SetSlot(slot)
	e.metrics.Airdrop(lamports)

	result := &ExecutionResult{
		Signature:        airdropSignature(to, lamports, slot),
		Slot:             slot,
		Success:          true,
		Logs:             []string{fmt.Sprintf("Airdrop: %d lamports to %s", lamports, to)},
		ModifiedAccounts: []types.Pubkey{to},
		DeltaHash:        accounts.ComputeDeltaHash(updates),
	}
	rec := &journal.Record{
		Signature:   result.Signature,
		Kind:        journal.KindAirdrop,
		Slot:        slot,
		BlockTime:   e.cfg.Now().Unix(),
		AccountKeys: []types.Pubkey{to},
		Logs:        result.Logs,
		DeltaHash:   result.DeltaHash,
	}
	if err := e.journal.Put(rec); err != nil {
		log.Printf("[EXEC] Journal of airdrop at slot %d failed: %v", slot, err)
		return nil, fmt.Errorf("journal: %w", err)
	}
	return result, nil
}

// airdropSignature names a faucet credit. Slots are unique per commit, so
// the signature is too.
func airdropSignature(to types.Pubkey, lamports, slot uint64) types.Signature {
	h := blake3.New()
	h.Write([]byte("airdrop"))
	h.Write(to[:])
	var num [8]byte
	binary.LittleEndian.PutUint64(num[:], lamports)
	h.Write(num[:])
	binary.LittleEndian.PutUint64(num[:], slot)
	h.Write(num[:])

	var sig types.Signature
	h.Digest().Read(sig[:])
	return sig
}
