package clicker

import (
	"encoding/binary"
	"fmt"
)

// Instruction tags. The encoding is a one-byte enum tag followed by the
// variant's fixed-width little-endian fields.
const (
	TagInitUser             uint8 = 0
	TagClick                uint8 = 1
	TagUpgradeValuePerClick uint8 = 2
	TagTransferClicks       uint8 = 3
)

// Instruction is one of InitUser, Click, UpgradeValuePerClick or
// TransferClicks.
type Instruction interface {
	Tag() uint8
	MarshalBinary() ([]byte, error)
	encode() []byte
}

// InitUser creates the caller's user state account.
type InitUser struct{}

// Click adds value_per_click to the balance.
type Click struct{}

// UpgradeValuePerClick buys upgrade path 0 or 1.
type UpgradeValuePerClick struct {
	Variation uint8
}

// TransferClicks moves clicks from the sender to a recipient.
type TransferClicks struct {
	Amount uint64
}

func (InitUser) Tag() uint8             { return TagInitUser }
func (Click) Tag() uint8                { return TagClick }
func (UpgradeValuePerClick) Tag() uint8 { return TagUpgradeValuePerClick }
func (TransferClicks) Tag() uint8       { return TagTransferClicks }

func (InitUser) encode() []byte { return []byte{TagInitUser} }
func (Click) encode() []byte    { return []byte{TagClick} }

func (u UpgradeValuePerClick) encode() []byte {
	return []byte{TagUpgradeValuePerClick, u.Variation}
}

func (t TransferClicks) encode() []byte {
	buf := make([]byte, 9)
	buf[0] = TagTransferClicks
	binary.LittleEndian.PutUint64(buf[1:], t.Amount)
	return buf
}

func (i InitUser) MarshalBinary() ([]byte, error)             { return i.encode(), nil }
func (c Click) MarshalBinary() ([]byte, error)                { return c.encode(), nil }
func (u UpgradeValuePerClick) MarshalBinary() ([]byte, error) { return u.encode(), nil }
func (t TransferClicks) MarshalBinary() ([]byte, error)       { return t.encode(), nil }

// payloadSize is the fixed payload length after the tag.
var payloadSize = map[uint8]int{
	TagInitUser:             0,
	TagClick:                0,
	TagUpgradeValuePerClick: 1,
	TagTransferClicks:       8,
}

// DecodeInstruction parses instruction data. Unknown tags, short payloads and
// trailing bytes all fail with ErrDecode.
func DecodeInstruction(data []byte) (Instruction, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrDecode)
	}
	tag := data[0]
	size, ok := payloadSize[tag]
	if !ok {
		return nil, fmt.Errorf("%w: unknown tag %d", ErrDecode, tag)
	}
	payload := data[1:]
	if len(payload) != size {
		return nil, fmt.Errorf("%w: tag %d wants %d payload bytes, got %d", ErrDecode, tag, size, len(payload))
	}

	switch tag {
	case TagInitUser:
		return InitUser{}, nil
	case TagClick:
		return Click{}, nil
	case TagUpgradeValuePerClick:
		return UpgradeValuePerClick{Variation: payload[0]}, nil
	default:
		return TransferClicks{Amount: binary.LittleEndian.Uint64(payload)}, nil
	}
}
