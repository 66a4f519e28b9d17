package message

import (
	"github.com/fortiblox/X1-Clicker/internal/types"
)

// appendShortVec appends a compact-u16 length: 7 bits per byte, low bits
// first, high bit set on every byte but the last.
func appendShortVec(buf []byte, n int) []byte {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// readShortVec decodes a compact-u16 length, returning the value and the
// number of bytes consumed.
func readShortVec(data []byte) (int, int, error) {
	var v int
	for i := 0; i < 3; i++ {
		if i >= len(data) {
			return 0, 0, ErrTruncated
		}
		b := data[i]
		v |= int(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			if v > 0xffff {
				return 0, 0, ErrInvalidHeader
			}
			return v, i + 1, nil
		}
	}
	return 0, 0, ErrInvalidHeader
}

// Serialize encodes the message in the legacy wire format. The result is the
// exact byte string that transaction signatures cover.
func (m *Message) Serialize() []byte {
	buf := make([]byte, 0, 3+1+len(m.AccountKeys)*types.PubkeySize+types.HashSize+64)
	buf = append(buf,
		m.Header.NumRequiredSignatures,
		m.Header.NumReadonlySignedAccounts,
		m.Header.NumReadonlyUnsignedAccounts,
	)

	buf = appendShortVec(buf, len(m.AccountKeys))
	for _, k := range m.AccountKeys {
		buf = append(buf, k[:]...)
	}

	buf = append(buf, m.RecentBlockhash[:]...)

	buf = appendShortVec(buf, len(m.Instructions))
	for _, ix := range m.Instructions {
		buf = append(buf, ix.ProgramIDIndex)
		buf = appendShortVec(buf, len(ix.AccountIndexes))
		buf = append(buf, ix.AccountIndexes...)
		buf = appendShortVec(buf, len(ix.Data))
		buf = append(buf, ix.Data...)
	}
	return buf
}

// reader is a bounds-checked cursor over wire bytes.
type reader struct {
	data []byte
	off  int
}

func (r *reader) next(n int) ([]byte, error) {
	if n < 0 || len(r.data)-r.off < n {
		return nil, ErrTruncated
	}
	out := r.data[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *reader) readByte() (byte, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) shortVec() (int, error) {
	n, used, err := readShortVec(r.data[r.off:])
	if err != nil {
		return 0, err
	}
	r.off += used
	return n, nil
}

func (r *reader) readMessage() (*Message, error) {
	hdr, err := r.next(3)
	if err != nil {
		return nil, err
	}
	m := &Message{Header: MessageHeader{
		NumRequiredSignatures:       hdr[0],
		NumReadonlySignedAccounts:   hdr[1],
		NumReadonlyUnsignedAccounts: hdr[2],
	}}

	nKeys, err := r.shortVec()
	if err != nil {
		return nil, err
	}
	if nKeys > MaxAccountKeys {
		return nil, ErrTooManyAccounts
	}
	m.AccountKeys = make([]types.Pubkey, nKeys)
	for i := range m.AccountKeys {
		b, err := r.next(types.PubkeySize)
		if err != nil {
			return nil, err
		}
		copy(m.AccountKeys[i][:], b)
	}

	bh, err := r.next(types.HashSize)
	if err != nil {
		return nil, err
	}
	copy(m.RecentBlockhash[:], bh)

	nIx, err := r.shortVec()
	if err != nil {
		return nil, err
	}
	if nIx > MaxInstructions {
		return nil, ErrTooManyInstructions
	}
	m.Instructions = make([]CompiledInstruction, nIx)
	for i := range m.Instructions {
		prog, err := r.readByte()
		if err != nil {
			return nil, err
		}
		nAcc, err := r.shortVec()
		if err != nil {
			return nil, err
		}
		idx, err := r.next(nAcc)
		if err != nil {
			return nil, err
		}
		nData, err := r.shortVec()
		if err != nil {
			return nil, err
		}
		data, err := r.next(nData)
		if err != nil {
			return nil, err
		}
		m.Instructions[i] = CompiledInstruction{
			ProgramIDIndex: prog,
			AccountIndexes: append([]uint8(nil), idx...),
			Data:           append([]byte(nil), data...),
		}
	}
	return m, nil
}

// DeserializeMessage decodes a legacy wire message. Trailing bytes are an error.
func DeserializeMessage(data []byte) (*Message, error) {
	r := &reader{data: data}
	m, err := r.readMessage()
	if err != nil {
		return nil, err
	}
	if r.off != len(data) {
		return nil, ErrTrailingBytes
	}
	return m, nil
}
