package accounts

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/fortiblox/X1-Clicker/internal/types"
)

// ComputeAccountHash hashes one account:
// blake3(lamports || rent_epoch || data || executable || owner || pubkey).
// Zero accounts hash to the zero hash.
func ComputeAccountHash(pubkey types.Pubkey, account *Account) types.Hash {
	if account == nil || account.IsZero() {
		return types.Hash{}
	}

	h := blake3.New()
	var num [8]byte
	binary.LittleEndian.PutUint64(num[:], account.Lamports)
	h.Write(num[:])
	binary.LittleEndian.PutUint64(num[:], account.RentEpoch)
	h.Write(num[:])
	h.Write(account.Data)
	if account.Executable {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	h.Write(account.Owner[:])
	h.Write(pubkey[:])

	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// StateHasher folds (pubkey, account hash) pairs, which must arrive in
// ascending pubkey order, into one state hash.
type StateHasher struct {
	h     *blake3.Hasher
	count uint64
}

// NewStateHasher returns an empty state hasher.
func NewStateHasher() *StateHasher {
	return &StateHasher{h: blake3.New()}
}

// Add folds one account in.
func (s *StateHasher) Add(pubkey types.Pubkey, account *Account) {
	acc := ComputeAccountHash(pubkey, account)
	s.h.Write(pubkey[:])
	s.h.Write(acc[:])
	s.count++
}

// Sum returns the state hash over everything added so far.
func (s *StateHasher) Sum() types.Hash {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], s.count)
	h := s.h.Clone()
	h.Write(n[:])

	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// ComputeStateHash hashes the whole account store.
func ComputeStateHash(db DB) (types.Hash, error) {
	s := NewStateHasher()
	err := db.IterateAccounts(func(pubkey types.Pubkey, account *Account) error {
		s.Add(pubkey, account)
		return nil
	})
	if err != nil {
		return types.Hash{}, err
	}
	return s.Sum(), nil
}

// ComputeDeltaHash hashes a set of written accounts, in pubkey order. Deleted
// accounts are passed as zero accounts.
func ComputeDeltaHash(updates []AccountUpdate) types.Hash {
	sorted := make([]AccountUpdate, len(updates))
	copy(sorted, updates)
	sort.Slice(sorted, func(i, j int) bool {
		return ComparePubkeys(sorted[i].Pubkey, sorted[j].Pubkey) < 0
	})

	s := NewStateHasher()
	for _, u := range sorted {
		s.Add(u.Pubkey, u.Account)
	}
	return s.Sum()
}

// ComparePubkeys orders pubkeys bytewise.
func ComparePubkeys(a, b types.Pubkey) int {
	return bytes.Compare(a[:], b[:])
}
