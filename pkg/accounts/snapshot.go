package accounts

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/fortiblox/X1-Clicker/internal/types"
)

// Snapshot file format version.
const snapshotVersion uint32 = 1

// Snapshot file magic bytes for format validation.
var snapshotMagic = []byte{'X', '1', 'C', 'K'}

// ErrSnapshotTargetNotEmpty is returned when loading into a non-empty store.
var ErrSnapshotTargetNotEmpty = errors.New("snapshot target database is not empty")

const snapshotHeaderSize = 4 + 4 + 8 + 8 + 32

// SnapshotHeader contains metadata about a snapshot.
type SnapshotHeader struct {
	Version       uint32
	Slot          uint64
	AccountsCount uint64

	// StateHash is ComputeStateHash of the exported store.
	StateHash types.Hash
}

// SnapshotWriter writes accounts to a snapshot file.
// Snapshot format:
//   - Magic (4 bytes): "X1CK"
//   - Version (4 bytes, little-endian)
//   - Slot (8 bytes, little-endian)
//   - AccountsCount (8 bytes, little-endian)
//   - StateHash (32 bytes)
//   - Accounts (zstd compressed), for each account in pubkey order:
//   - Pubkey (32 bytes)
//   - AccountSize (4 bytes, little-endian)
//   - Account (serialized)
type SnapshotWriter struct {
	file   *os.File
	path   string
	zw     *zstd.Encoder
	writer *bufio.Writer
	hasher *StateHasher
	header SnapshotHeader
	last   *types.Pubkey
}

// NewSnapshotWriter creates a snapshot file at path. The file only appears
// under its final name once Close succeeds.
func NewSnapshotWriter(path string, slot uint64) (*SnapshotWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	file, err := os.Create(path + ".tmp")
	if err != nil {
		return nil, fmt.Errorf("create snapshot file: %w", err)
	}

	sw := &SnapshotWriter{
		file:   file,
		path:   path,
		hasher: NewStateHasher(),
		header: SnapshotHeader{Version: snapshotVersion, Slot: slot},
	}

	// Placeholder header, rewritten at close.
	if err := sw.writeHeader(); err != nil {
		sw.abort()
		return nil, err
	}

	sw.zw, err = zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		sw.abort()
		return nil, fmt.Errorf("init zstd writer: %w", err)
	}
	sw.writer = bufio.NewWriter(sw.zw)
	return sw, nil
}

func (sw *SnapshotWriter) abort() {
	sw.file.Close()
	os.Remove(sw.file.Name())
}

func (sw *SnapshotWriter) writeHeader() error {
	buf := make([]byte, snapshotHeaderSize)
	copy(buf, snapshotMagic)
	binary.LittleEndian.PutUint32(buf[4:], sw.header.Version)
	binary.LittleEndian.PutUint64(buf[8:], sw.header.Slot)
	binary.LittleEndian.PutUint64(buf[16:], sw.header.AccountsCount)
	copy(buf[24:], sw.header.StateHash[:])
	_, err := sw.file.Write(buf)
	return err
}

// WriteAccount appends one account. Accounts must be written in ascending
// pubkey order.
func (sw *SnapshotWriter) WriteAccount(pubkey types.Pubkey, account *Account) error {
	if sw.last != nil && ComparePubkeys(*sw.last, pubkey) >= 0 {
		return fmt.Errorf("snapshot accounts out of order at %s", pubkey)
	}
	sw.last = &pubkey

	data := account.Serialize()
	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], uint32(len(data)))
	for _, part := range [][]byte{pubkey[:], sizeBuf[:], data} {
		if _, err := sw.writer.Write(part); err != nil {
			return err
		}
	}

	sw.hasher.Add(pubkey, account)
	sw.header.AccountsCount++
	return nil
}

// Close finalizes the snapshot and returns its header.
func (sw *SnapshotWriter) Close() (*SnapshotHeader, error) {
	if err := sw.writer.Flush(); err != nil {
		sw.abort()
		return nil, err
	}
	if err := sw.zw.Close(); err != nil {
		sw.abort()
		return nil, err
	}

	sw.header.StateHash = sw.hasher.Sum()
	if _, err := sw.file.Seek(0, io.SeekStart); err != nil {
		sw.abort()
		return nil, err
	}
	if err := sw.writeHeader(); err != nil {
		sw.abort()
		return nil, err
	}
	if err := sw.file.Close(); err != nil {
		os.Remove(sw.file.Name())
		return nil, err
	}
	if err := os.Rename(sw.file.Name(), sw.path); err != nil {
		return nil, fmt.Errorf("finalize snapshot: %w", err)
	}
	h := sw.header
	return &h, nil
}

// SnapshotReader reads accounts from a snapshot file.
type SnapshotReader struct {
	file   *os.File
	zr     *zstd.Decoder
	reader *bufio.Reader
	Header SnapshotHeader
	read   uint64
}

// OpenSnapshot opens a snapshot file for reading.
func OpenSnapshot(path string) (*SnapshotReader, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("open snapshot: %w", err)
	}

	sr := &SnapshotReader{file: file}
	if err := sr.readHeader(); err != nil {
		file.Close()
		return nil, err
	}

	sr.zr, err = zstd.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("init zstd reader: %w", err)
	}
	sr.reader = bufio.NewReader(sr.zr)
	return sr, nil
}

func (sr *SnapshotReader) readHeader() error {
	buf := make([]byte, snapshotHeaderSize)
	if _, err := io.ReadFull(sr.file, buf); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if string(buf[:4]) != string(snapshotMagic) {
		return fmt.Errorf("invalid snapshot magic: %q", buf[:4])
	}
	sr.Header.Version = binary.LittleEndian.Uint32(buf[4:])
	if sr.Header.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %d", sr.Header.Version)
	}
	sr.Header.Slot = binary.LittleEndian.Uint64(buf[8:])
	sr.Header.AccountsCount = binary.LittleEndian.Uint64(buf[16:])
	copy(sr.Header.StateHash[:], buf[24:])
	return nil
}

// ReadAccount reads the next account from the snapshot.
// Returns io.EOF when all accounts have been read.
func (sr *SnapshotReader) ReadAccount() (types.Pubkey, *Account, error) {
	if sr.read >= sr.Header.AccountsCount {
		return types.Pubkey{}, nil, io.EOF
	}

	var pubkey types.Pubkey
	if _, err := io.ReadFull(sr.reader, pubkey[:]); err != nil {
		return types.Pubkey{}, nil, fmt.Errorf("read pubkey: %w", err)
	}
	var sizeBuf [4]byte
	if _, err := io.ReadFull(sr.reader, sizeBuf[:]); err != nil {
		return types.Pubkey{}, nil, fmt.Errorf("read size: %w", err)
	}
	size := binary.LittleEndian.Uint32(sizeBuf[:])

	// Bound the allocation before trusting the size.
	const maxAccountSerializedSize = MaxAccountDataSize + 100
	if size > maxAccountSerializedSize {
		return types.Pubkey{}, nil, fmt.Errorf("account size %d exceeds maximum %d", size, maxAccountSerializedSize)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(sr.reader, data); err != nil {
		return types.Pubkey{}, nil, fmt.Errorf("read account data: %w", err)
	}
	account, err := DeserializeAccount(data)
	if err != nil {
		return types.Pubkey{}, nil, fmt.Errorf("deserialize account: %w", err)
	}

	sr.read++
	return pubkey, account, nil
}

// Close closes the snapshot reader.
func (sr *SnapshotReader) Close() error {
	if sr.zr != nil {
		sr.zr.Close()
	}
	return sr.file.Close()
}

// CreateSnapshot exports every account in db to path.
func CreateSnapshot(db DB, path string) (*SnapshotHeader, error) {
	w, err := NewSnapshotWriter(path, db.GetSlot())
	if err != nil {
		return nil, err
	}
	if err := db.IterateAccounts(w.WriteAccount); err != nil {
		w.abort()
		return nil, fmt.Errorf("write accounts: %w", err)
	}
	return w.Close()
}

// LoadSnapshot imports a snapshot into an empty db. The state hash is
// verified before anything is written.
func LoadSnapshot(db DB, path string) (*SnapshotHeader, error) {
	count, err := db.AccountsCount()
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrSnapshotTargetNotEmpty
	}

	r, err := OpenSnapshot(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	hasher := NewStateHasher()
	var updates []AccountUpdate
	var last *types.Pubkey
	for {
		pubkey, account, err := r.ReadAccount()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read account: %w", err)
		}
		if last != nil && ComparePubkeys(*last, pubkey) >= 0 {
			return nil, fmt.Errorf("%w: accounts out of order", ErrCorrupted)
		}
		last = &pubkey
		hasher.Add(pubkey, account)
		updates = append(updates, AccountUpdate{Pubkey: pubkey, Account: account})
	}

	if got := hasher.Sum(); got != r.Header.StateHash {
		return nil, fmt.Errorf("%w: state hash mismatch: expected %s, got %s",
			ErrCorrupted, r.Header.StateHash, got)
	}
	if err := db.StoreAccounts(r.Header.Slot, updates); err != nil {
		return nil, err
	}
	h := r.Header
	return &h, nil
}

// ReadSnapshotHeader returns the header of a snapshot file.
func ReadSnapshotHeader(path string) (*SnapshotHeader, error) {
	r, err := OpenSnapshot(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	h := r.Header
	return &h, nil
}
