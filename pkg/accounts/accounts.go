// Package accounts implements the ledger's account store.
//
// Every account the clicker ledger knows about (user wallets, user state
// records, native program entries) lives here keyed by public key. The
// executor loads accounts before a transaction and writes back every modified
// account in a single StoreAccounts call, so a transaction's effects are
// either fully visible or not at all.
//
// Two implementations are provided: BadgerDB for on-disk ledgers and MemoryDB
// for tests and throwaway runs.
package accounts

import (
	"encoding/binary"
	"errors"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/fortiblox/X1-Clicker/internal/types"
)

var (
	// ErrAccountNotFound is returned when an account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrCorrupted is returned when data corruption is detected.
	ErrCorrupted = errors.New("data corrupted")

	// ErrClosed is returned when operating on a closed database.
	ErrClosed = errors.New("database closed")

	// ErrInvalidData is returned when account data is malformed.
	ErrInvalidData = errors.New("invalid account data")

	// ErrSnapshotNotFound is returned when a snapshot doesn't exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// MaxAccountDataSize bounds account data on disk and in snapshots.
const MaxAccountDataSize = 10 * 1024 * 1024

// Account is a stored account.
type Account struct {
	// Lamports is the account balance.
	Lamports uint64

	// Data is the account data. Only the owner program may change it.
	Data []byte

	// Owner is the program that owns this account.
	Owner types.Pubkey

	// Executable marks native program entries.
	Executable bool

	// RentEpoch is kept for wire compatibility; the ledger never collects rent.
	RentEpoch uint64
}

// Clone creates a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	dataCopy := make([]byte, len(a.Data))
	copy(dataCopy, a.Data)
	return &Account{
		Lamports:   a.Lamports,
		Data:       dataCopy,
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
	}
}

// IsZero returns true if the account has no lamports and no data.
// Zero accounts are deleted from storage.
func (a *Account) IsZero() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

// Size returns the total serialized size of the account.
func (a *Account) Size() int {
	// 8 (lamports) + 8 (data_len) + data + 32 (owner) + 1 (executable) + 8 (rent_epoch)
	return 8 + 8 + len(a.Data) + 32 + 1 + 8
}

// Serialize encodes the account to bytes for storage.
// Format: lamports (8) + data_len (8) + data + owner (32) + executable (1) + rent_epoch (8)
func (a *Account) Serialize() []byte {
	buf := make([]byte, a.Size())
	binary.LittleEndian.PutUint64(buf[0:], a.Lamports)
	binary.LittleEndian.PutUint64(buf[8:], uint64(len(a.Data)))
	offset := 16 + copy(buf[16:], a.Data)
	offset += copy(buf[offset:], a.Owner[:])
	if a.Executable {
		buf[offset] = 1
	}
	binary.LittleEndian.PutUint64(buf[offset+1:], a.RentEpoch)
	return buf
}

// DeserializeAccount decodes an account from bytes.
func DeserializeAccount(data []byte) (*Account, error) {
	const fixed = 8 + 8 + 32 + 1 + 8
	if len(data) < fixed {
		return nil, ErrInvalidData
	}
	dataLen := binary.LittleEndian.Uint64(data[8:])
	if dataLen > MaxAccountDataSize || uint64(len(data)) != fixed+dataLen {
		return nil, ErrInvalidData
	}

	acc := &Account{
		Lamports: binary.LittleEndian.Uint64(data[0:]),
		Data:     make([]byte, dataLen),
	}
	offset := 16 + copy(acc.Data, data[16:])
	offset += copy(acc.Owner[:], data[offset:offset+32])
	acc.Executable = data[offset] != 0
	acc.RentEpoch = binary.LittleEndian.Uint64(data[offset+1:])
	return acc, nil
}

// AccountUpdate is one entry of an atomic StoreAccounts batch.
type AccountUpdate struct {
	Pubkey  types.Pubkey
	Account *Account
}

// DB is the accounts database interface.
// Implementations must be safe for concurrent use.
type DB interface {
	// GetAccount retrieves an account by public key.
	// Returns ErrAccountNotFound if the account doesn't exist.
	GetAccount(pubkey types.Pubkey) (*Account, error)

	// SetAccount stores a single account. Zero accounts are deleted.
	SetAccount(pubkey types.Pubkey, account *Account) error

	// StoreAccounts writes every update and advances the slot in one
	// atomic step. Zero accounts are deleted.
	StoreAccounts(slot uint64, updates []AccountUpdate) error

	// HasAccount checks if an account exists.
	HasAccount(pubkey types.Pubkey) (bool, error)

	// IterateAccounts calls fn for each account in ascending pubkey order.
	// An error from fn stops iteration and is returned.
	IterateAccounts(fn func(pubkey types.Pubkey, account *Account) error) error

	// GetSlot returns the slot of the last StoreAccounts call.
	GetSlot() uint64

	// AccountsCount returns the total number of accounts.
	AccountsCount() (uint64, error)

	// Close closes the database.
	Close() error
}

// MemoryDB is an in-memory implementation of DB.
type MemoryDB struct {
	mu       sync.RWMutex
	accounts map[types.Pubkey]*Account
	slot     uint64
	closed   bool
}

// NewMemoryDB creates a new in-memory accounts database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		accounts: make(map[types.Pubkey]*Account),
	}
}

// GetAccount retrieves an account.
func (m *MemoryDB) GetAccount(pubkey types.Pubkey) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	acc, ok := m.accounts[pubkey]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc.Clone(), nil
}

// SetAccount stores an account.
func (m *MemoryDB) SetAccount(pubkey types.Pubkey, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.setLocked(pubkey, account)
	return nil
}

func (m *MemoryDB) setLocked(pubkey types.Pubkey, account *Account) {
	if account.IsZero() {
		delete(m.accounts, pubkey)
		return
	}
	m.accounts[pubkey] = account.Clone()
}

// StoreAccounts applies all updates under one lock.
func (m *MemoryDB) StoreAccounts(slot uint64, updates []AccountUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, u := range updates {
		m.setLocked(u.Pubkey, u.Account)
	}
	m.slot = slot
	return nil
}

// HasAccount checks if an account exists.
func (m *MemoryDB) HasAccount(pubkey types.Pubkey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.accounts[pubkey]
	return ok, nil
}

// IterateAccounts visits a copy of every account in pubkey order.
func (m *MemoryDB) IterateAccounts(fn func(pubkey types.Pubkey, account *Account) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	keys := lo.Keys(m.accounts)
	sort.Slice(keys, func(i, j int) bool { return ComparePubkeys(keys[i], keys[j]) < 0 })
	accs := lo.Map(keys, func(k types.Pubkey, _ int) *Account { return m.accounts[k].Clone() })
	m.mu.RUnlock()

	for i, k := range keys {
		if err := fn(k, accs[i]); err != nil {
			return err
		}
	}
	return nil
}

// GetSlot returns the current slot.
func (m *MemoryDB) GetSlot() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slot
}

// AccountsCount returns the number of accounts.
func (m *MemoryDB) AccountsCount() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return uint64(len(m.accounts)), nil
}

// Close closes the database.
func (m *MemoryDB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.accounts = nil
	return nil
}

var _ DB = (*MemoryDB)(nil)
