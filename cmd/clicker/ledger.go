package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/lo"

	"github.com/fortiblox/X1-Clicker/internal/types"
	"github.com/fortiblox/X1-Clicker/pkg/accounts"
	"github.com/fortiblox/X1-Clicker/pkg/journal"
	"github.com/fortiblox/X1-Clicker/pkg/metrics"
	"github.com/fortiblox/X1-Clicker/pkg/rpc"
	"github.com/fortiblox/X1-Clicker/pkg/svm/executor"
	"github.com/fortiblox/X1-Clicker/pkg/svm/message"
)

// backend is what client subcommands need from a ledger, local or remote.
type backend interface {
	LatestBlockhash(ctx context.Context) (types.Hash, error)
	Send(ctx context.Context, tx *message.Transaction) (*rpc.SendTransactionResult, error)
	Airdrop(ctx context.Context, to types.Pubkey, lamports uint64) (string, error)
	Balance(ctx context.Context, pubkey types.Pubkey) (uint64, error)
	UserState(ctx context.Context, user types.Pubkey) (*rpc.UserStateInfo, error)
	History(ctx context.Context, addr types.Pubkey, limit int) ([]rpc.SignatureInfo, error)
	Close() error
}

// localLedger is an on-disk ledger opened in-process.
type localLedger struct {
	db      *accounts.BadgerDB
	journal *journal.BoltStore
	exec    *executor.TransactionExecutor
	metrics *metrics.Metrics
}

// ledgerPaths returns the account store and journal locations under dir.
func ledgerPaths(dir string) (accountsDir, journalPath string) {
	return filepath.Join(dir, "accounts"), filepath.Join(dir, "journal.db")
}

func openLocalLedger(dataDir string, cfg executor.Config) (*localLedger, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	accountsDir, journalPath := ledgerPaths(dataDir)

	db, err := accounts.NewBadgerDB(accounts.DefaultBadgerDBConfig(accountsDir))
	if err != nil {
		return nil, fmt.Errorf("open accounts: %w", err)
	}
	j, err := journal.Open(journal.DefaultConfig(journalPath))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}

	m := metrics.New()
	exec, err := executor.NewTransactionExecutor(db, j, m, cfg)
	if err != nil {
		j.Close()
		db.Close()
		return nil, err
	}
	return &localLedger{db: db, journal: j, exec: exec, metrics: m}, nil
}

func (l *localLedger) LatestBlockhash(context.Context) (types.Hash, error) {
	return l.exec.LatestBlockhash(), nil
}

func (l *localLedger) Send(_ context.Context, tx *message.Transaction) (*rpc.SendTransactionResult, error) {
	res, err := l.exec.Execute(tx)
	if err != nil {
		return nil, err
	}
	out := &rpc.SendTransactionResult{
		Signature: res.Signature.String(),
		Slot:      res.Slot,
		Meta: &rpc.TransactionMeta{
			Err:                  rpc.ToTransactionError(res.Err),
			LogMessages:          res.Logs,
			ComputeUnitsConsumed: res.ComputeUnitsUsed,
		},
	}
	return out, nil
}

func (l *localLedger) Airdrop(_ context.Context, to types.Pubkey, lamports uint64) (string, error) {
	res, err := l.exec.Airdrop(to, lamports)
	if err != nil {
		return "", err
	}
	return res.Signature.String(), nil
}

func (l *localLedger) Balance(_ context.Context, pubkey types.Pubkey) (uint64, error) {
	acc, err := l.db.GetAccount(pubkey)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acc.Lamports, nil
}

func (l *localLedger) UserState(_ context.Context, user types.Pubkey) (*rpc.UserStateInfo, error) {
	return rpc.ReadUserState(l.db, user, l.exec.ClickerProgramID())
}

func (l *localLedger) History(_ context.Context, addr types.Pubkey, limit int) ([]rpc.SignatureInfo, error) {
	infos, err := l.journal.SignaturesForAddress(addr, &journal.QueryOptions{Limit: limit})
	if err != nil {
		return nil, err
	}
	return lo.Map(infos, func(info journal.SignatureInfo, _ int) rpc.SignatureInfo {
		return rpc.ToSignatureInfo(info)
	}), nil
}

func (l *localLedger) Close() error {
	jerr := l.journal.Close()
	if err := l.db.Close(); err != nil {
		return err
	}
	return jerr
}

// remoteLedger talks to a running `clicker serve` node.
type remoteLedger struct {
	client *rpc.Client
}

func newRemoteLedger(url string, timeout time.Duration) *remoteLedger {
	return &remoteLedger{client: rpc.NewClient(url, timeout)}
}

func (r *remoteLedger) LatestBlockhash(ctx context.Context) (types.Hash, error) {
	return r.client.GetLatestBlockhash(ctx)
}

func (r *remoteLedger) Send(ctx context.Context, tx *message.Transaction) (*rpc.SendTransactionResult, error) {
	return r.client.SendTransaction(ctx, tx)
}

func (r *remoteLedger) Airdrop(ctx context.Context, to types.Pubkey, lamports uint64) (string, error) {
	return r.client.RequestAirdrop(ctx, to, lamports)
}

func (r *remoteLedger) Balance(ctx context.Context, pubkey types.Pubkey) (uint64, error) {
	return r.client.GetBalance(ctx, pubkey)
}

func (r *remoteLedger) UserState(ctx context.Context, user types.Pubkey) (*rpc.UserStateInfo, error) {
	return r.client.GetUserState(ctx, user)
}

func (r *remoteLedger) History(ctx context.Context, addr types.Pubkey, limit int) ([]rpc.SignatureInfo, error) {
	return r.client.GetSignaturesForAddress(ctx, addr, limit)
}

func (r *remoteLedger) Close() error { return nil }
