// Package journal persists executed transactions in BoltDB.
//
// Every transaction the executor runs, successful or not, is recorded with
// its logs, error and compute usage. The journal doubles as the replay guard:
// a signature that is already journaled is never executed again.
package journal

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fortiblox/X1-Clicker/internal/types"
)

var (
	// ErrNotFound is returned when a signature is not journaled.
	ErrNotFound = errors.New("transaction not found")

	// ErrDuplicate is returned when a signature is journaled twice.
	ErrDuplicate = errors.New("transaction already journaled")

	// ErrClosed is returned when operating on a closed journal.
	ErrClosed = errors.New("journal closed")
)

// Bucket names.
var (
	// bucketRecords stores records keyed by signature.
	bucketRecords = []byte("records")

	// bucketBySlot indexes signatures by slot.
	bucketBySlot = []byte("by_slot")

	// bucketAddressSignatures indexes signatures by address+slot.
	bucketAddressSignatures = []byte("addr_sigs")

	// bucketMetadata stores journal metadata.
	bucketMetadata = []byte("metadata")
)

// Metadata keys.
var (
	keyLatestSlot  = []byte("latest_slot")
	keyRecordCount = []byte("record_count")
)

// Config holds journal configuration options.
type Config struct {
	// Path is the database file path.
	Path string

	// NoSync disables fsync after each write.
	NoSync bool

	// ReadOnly opens the database in read-only mode.
	ReadOnly bool

	// Timeout bounds waiting for the file lock.
	Timeout time.Duration
}

// DefaultConfig returns the default journal configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:    path,
		Timeout: 5 * time.Second,
	}
}

// QueryOptions configures address history queries.
type QueryOptions struct {
	// Limit is the maximum number of entries to return.
	Limit int

	// Before returns entries strictly older than this signature.
	Before *types.Signature
}

// Store is the journal interface.
type Store interface {
	Put(rec *Record) error
	Get(sig types.Signature) (*Record, error)
	Has(sig types.Signature) (bool, error)
	SignaturesForAddress(addr types.Pubkey, opts *QueryOptions) ([]SignatureInfo, error)
	LatestSlot() uint64
	Count() uint64
	Close() error
}

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db     *bolt.DB
	config Config

	mu         sync.RWMutex
	latestSlot uint64
	count      uint64
	closed     bool
}

// Open creates or opens a journal at the configured path.
func Open(config Config) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := bolt.Open(config.Path, 0600, &bolt.Options{
		Timeout:  config.Timeout,
		NoSync:   config.NoSync,
		ReadOnly: config.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &BoltStore{db: db, config: config}
	if !config.ReadOnly {
		if err := s.initBuckets(); err != nil {
			db.Close()
			return nil, fmt.Errorf("init buckets: %w", err)
		}
	}
	if err := s.loadCachedValues(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load cached values: %w", err)
	}
	return s, nil
}

func (s *BoltStore) initBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketBySlot, bucketAddressSignatures, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) loadCachedValues() error {
	return s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMetadata)
		if meta == nil {
			return nil
		}
		if v := meta.Get(keyLatestSlot); v != nil {
			s.latestSlot = DecodeSlotKey(v)
		}
		if v := meta.Get(keyRecordCount); v != nil {
			s.count = DecodeSlotKey(v)
		}
		return nil
	})
}

func (s *BoltStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Put journals a record and indexes it by slot and by every account key.
func (s *BoltStore) Put(rec *Record) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	var infoBuf bytes.Buffer
	info := SignatureInfo{Signature: rec.Signature, Slot: rec.Slot, BlockTime: rec.BlockTime, Err: rec.Err}
	if err := gob.NewEncoder(&infoBuf).Encode(&info); err != nil {
		return fmt.Errorf("encode signature info: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	latest := s.latestSlot
	if rec.Slot > latest {
		latest = rec.Slot
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		if records.Get(rec.Signature[:]) != nil {
			return fmt.Errorf("%w: %s", ErrDuplicate, rec.Signature)
		}
		if err := records.Put(rec.Signature[:], buf.Bytes()); err != nil {
			return err
		}
		if err := tx.Bucket(bucketBySlot).Put(encodeSlotSigKey(rec.Slot, rec.Signature), nil); err != nil {
			return err
		}

		addrSigs := tx.Bucket(bucketAddressSignatures)
		for _, addr := range rec.AccountKeys {
			if err := addrSigs.Put(encodeAddressKey(addr, rec.Slot, rec.Signature), infoBuf.Bytes()); err != nil {
				return err
			}
		}

		meta := tx.Bucket(bucketMetadata)
		if err := meta.Put(keyLatestSlot, EncodeSlotKey(latest)); err != nil {
			return err
		}
		return meta.Put(keyRecordCount, EncodeSlotKey(s.count+1))
	})
	if err != nil {
		return err
	}

	s.latestSlot = latest
	s.count++
	return nil
}

// Get retrieves a record by signature.
func (s *BoltStore) Get(sig types.Signature) (*Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var rec Record
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRecords).Get(sig[:])
		if data == nil {
			return ErrNotFound
		}
		return gob.NewDecoder(bytes.NewReader(data)).Decode(&rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Has reports whether a signature is journaled.
func (s *BoltStore) Has(sig types.Signature) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketRecords).Get(sig[:]) != nil
		return nil
	})
	return found, err
}

// SignaturesForAddress returns history entries for addr, newest first.
func (s *BoltStore) SignaturesForAddress(addr types.Pubkey, opts *QueryOptions) ([]SignatureInfo, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	limit := 1000
	if opts != nil && opts.Limit > 0 && opts.Limit < limit {
		limit = opts.Limit
	}

	var results []SignatureInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAddressSignatures).Cursor()
		prefix := addr[:]

		// Start just past the newest entry for addr, or at Before.
		start := make([]byte, 32+8+types.SignatureSize)
		copy(start, prefix)
		for i := 32; i < len(start); i++ {
			start[i] = 0xFF
		}
		if opts != nil && opts.Before != nil {
			rec, err := s.getLocked(tx, *opts.Before)
			if err != nil {
				return err
			}
			start = encodeAddressKey(addr, rec.Slot, rec.Signature)
		}

		k, v := c.Seek(start)
		if k == nil || !bytes.HasPrefix(k, prefix) || bytes.Equal(k, start) {
			k, v = c.Prev()
		}
		for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Prev() {
			var info SignatureInfo
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&info); err != nil {
				return fmt.Errorf("decode signature info: %w", err)
			}
			results = append(results, info)
			if len(results) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *BoltStore) getLocked(tx *bolt.Tx, sig types.Signature) (*Record, error) {
	data := tx.Bucket(bucketRecords).Get(sig[:])
	if data == nil {
		return nil, ErrNotFound
	}
	var rec Record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SignaturesForSlot returns the signatures journaled at slot.
func (s *BoltStore) SignaturesForSlot(slot uint64) ([]types.Signature, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var sigs []types.Signature
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketBySlot).Cursor()
		prefix := EncodeSlotKey(slot)
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			var sig types.Signature
			copy(sig[:], k[8:])
			sigs = append(sigs, sig)
		}
		return nil
	})
	return sigs, err
}

// LatestSlot returns the highest journaled slot.
func (s *BoltStore) LatestSlot() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestSlot
}

// Count returns the number of journaled records.
func (s *BoltStore) Count() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Close shuts down the journal.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.db.Close()
}

var _ Store = (*BoltStore)(nil)
