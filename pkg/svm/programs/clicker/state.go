package clicker

import (
	"encoding/binary"
	"fmt"
	"math"
)

// UserStateSize is the serialized size of UserState.
const UserStateSize = 8 + 4 + 4 + 4

// UserState is the per-user progression record stored at the user's derived
// address.
type UserState struct {
	ClickBalance    uint64 `json:"clickBalance"`
	ValuePerClick   uint32 `json:"valuePerClick"`
	CostToUpgradeV1 uint32 `json:"costToUpgradeV1"`
	CostToUpgradeV2 uint32 `json:"costToUpgradeV2"`
}

// NewUserState returns the record InitUser writes.
func NewUserState() UserState {
	return UserState{
		ClickBalance:    0,
		ValuePerClick:   1,
		CostToUpgradeV1: 10,
		CostToUpgradeV2: 20,
	}
}

// MarshalBinary encodes the record as little-endian fields in declaration
// order.
func (s UserState) MarshalBinary() ([]byte, error) {
	buf := make([]byte, UserStateSize)
	s.put(buf)
	return buf, nil
}

func (s UserState) put(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], s.ClickBalance)
	binary.LittleEndian.PutUint32(buf[8:12], s.ValuePerClick)
	binary.LittleEndian.PutUint32(buf[12:16], s.CostToUpgradeV1)
	binary.LittleEndian.PutUint32(buf[16:20], s.CostToUpgradeV2)
}

// UnmarshalUserState decodes a record. The buffer must be exactly
// UserStateSize bytes.
func UnmarshalUserState(data []byte) (UserState, error) {
	if len(data) != UserStateSize {
		return UserState{}, fmt.Errorf("%w: %d bytes", ErrCorruptState, len(data))
	}
	return UserState{
		ClickBalance:    binary.LittleEndian.Uint64(data[0:8]),
		ValuePerClick:   binary.LittleEndian.Uint32(data[8:12]),
		CostToUpgradeV1: binary.LittleEndian.Uint32(data[12:16]),
		CostToUpgradeV2: binary.LittleEndian.Uint32(data[16:20]),
	}, nil
}

// Click returns the state after one click.
func (s UserState) Click() (UserState, error) {
	bal, ok := addU64(s.ClickBalance, uint64(s.ValuePerClick))
	if !ok {
		return s, fmt.Errorf("%w: click balance", ErrOverflow)
	}
	s.ClickBalance = bal
	return s, nil
}

// Upgrade returns the state after buying upgrade path variation. Path 0 adds
// 1 to value_per_click, path 1 adds 2; the path's cost doubles.
func (s UserState) Upgrade(variation uint8) (UserState, error) {
	var cost *uint32
	var gain uint32
	switch variation {
	case 0:
		cost, gain = &s.CostToUpgradeV1, 1
	case 1:
		cost, gain = &s.CostToUpgradeV2, 2
	default:
		return s, fmt.Errorf("%w: %d", ErrInvalidVariation, variation)
	}

	if s.ClickBalance < uint64(*cost) {
		return s, fmt.Errorf("%w: balance %d, cost %d", ErrNotEnoughToUpgrade, s.ClickBalance, *cost)
	}
	vpc, ok := addU32(s.ValuePerClick, gain)
	if !ok {
		return s, fmt.Errorf("%w: value per click", ErrOverflow)
	}
	if *cost > math.MaxUint32/2 {
		return s, fmt.Errorf("%w: upgrade cost", ErrOverflow)
	}

	s.ClickBalance -= uint64(*cost)
	s.ValuePerClick = vpc
	*cost *= 2
	return s, nil
}

// Transfer returns the sender and recipient states after moving amount
// clicks. The sender earns one value_per_click for sending.
func (s UserState) Transfer(recipient UserState, amount uint64) (UserState, UserState, error) {
	if amount > s.ClickBalance {
		return s, recipient, fmt.Errorf("%w: balance %d, amount %d", ErrNotEnoughToTransfer, s.ClickBalance, amount)
	}
	vpc, ok := addU32(s.ValuePerClick, 1)
	if !ok {
		return s, recipient, fmt.Errorf("%w: value per click", ErrOverflow)
	}
	bal, ok := addU64(recipient.ClickBalance, amount)
	if !ok {
		return s, recipient, fmt.Errorf("%w: recipient balance", ErrOverflow)
	}

	s.ClickBalance -= amount
	s.ValuePerClick = vpc
	recipient.ClickBalance = bal
	return s, recipient, nil
}

func addU64(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum >= a
}

func addU32(a, b uint32) (uint32, bool) {
	sum := a + b
	return sum, sum >= a
}
