package clicker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserStateEncoding(t *testing.T) {
	raw, err := NewUserState().MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, []byte{
		0, 0, 0, 0, 0, 0, 0, 0,
		1, 0, 0, 0,
		10, 0, 0, 0,
		20, 0, 0, 0,
	}, raw)

	s, err := UnmarshalUserState(raw)
	require.NoError(t, err)
	require.Equal(t, NewUserState(), s)

	_, err = UnmarshalUserState(raw[:19])
	require.ErrorIs(t, err, ErrCorruptState)
	_, err = UnmarshalUserState(append(raw, 0))
	require.ErrorIs(t, err, ErrCorruptState)
}

func TestClickAddsValuePerClick(t *testing.T) {
	s := UserState{ClickBalance: 5, ValuePerClick: 3, CostToUpgradeV1: 10, CostToUpgradeV2: 20}
	next, err := s.Click()
	require.NoError(t, err)
	require.Equal(t, UserState{ClickBalance: 8, ValuePerClick: 3, CostToUpgradeV1: 10, CostToUpgradeV2: 20}, next)

	s.ClickBalance = math.MaxUint64 - 2
	_, err = s.Click()
	require.ErrorIs(t, err, ErrOverflow)
}

func TestUpgrade(t *testing.T) {
	start := UserState{ClickBalance: 10, ValuePerClick: 1, CostToUpgradeV1: 10, CostToUpgradeV2: 20}

	next, err := start.Upgrade(0)
	require.NoError(t, err)
	require.Equal(t, UserState{ClickBalance: 0, ValuePerClick: 2, CostToUpgradeV1: 20, CostToUpgradeV2: 20}, next)

	rich := start
	rich.ClickBalance = 25
	next, err = rich.Upgrade(1)
	require.NoError(t, err)
	require.Equal(t, UserState{ClickBalance: 5, ValuePerClick: 3, CostToUpgradeV1: 10, CostToUpgradeV2: 40}, next)

	poor := start
	poor.ClickBalance = 9
	got, err := poor.Upgrade(0)
	require.ErrorIs(t, err, ErrNotEnoughToUpgrade)
	require.Equal(t, poor, got)

	_, err = start.Upgrade(1)
	require.ErrorIs(t, err, ErrNotEnoughToUpgrade)

	_, err = start.Upgrade(2)
	require.ErrorIs(t, err, ErrInvalidVariation)
}

func TestUpgradeOverflow(t *testing.T) {
	s := UserState{ClickBalance: math.MaxUint64, ValuePerClick: 1, CostToUpgradeV1: math.MaxUint32/2 + 1, CostToUpgradeV2: 20}
	_, err := s.Upgrade(0)
	require.ErrorIs(t, err, ErrOverflow)

	s = UserState{ClickBalance: 100, ValuePerClick: math.MaxUint32 - 1, CostToUpgradeV1: 10, CostToUpgradeV2: 20}
	_, err = s.Upgrade(1)
	require.ErrorIs(t, err, ErrOverflow)

	next, err := s.Upgrade(0)
	require.NoError(t, err)
	require.Equal(t, uint32(math.MaxUint32), next.ValuePerClick)
}

func TestTransfer(t *testing.T) {
	sender := UserState{ClickBalance: 50, ValuePerClick: 2, CostToUpgradeV1: 10, CostToUpgradeV2: 20}
	recipient := UserState{ClickBalance: 7, ValuePerClick: 1, CostToUpgradeV1: 10, CostToUpgradeV2: 20}

	for _, amount := range []uint64{0, 1, 49, 50} {
		from, to, err := sender.Transfer(recipient, amount)
		require.NoError(t, err)
		require.Equal(t, sender.ClickBalance+recipient.ClickBalance, from.ClickBalance+to.ClickBalance)
		require.Equal(t, sender.ValuePerClick+1, from.ValuePerClick)
		require.Equal(t, recipient.ValuePerClick, to.ValuePerClick)
	}

	poor := UserState{ClickBalance: 5, ValuePerClick: 1, CostToUpgradeV1: 10, CostToUpgradeV2: 20}
	from, to, err := poor.Transfer(recipient, 6)
	require.ErrorIs(t, err, ErrNotEnoughToTransfer)
	require.Equal(t, poor, from)
	require.Equal(t, recipient, to)

	full := recipient
	full.ClickBalance = math.MaxUint64
	from, to, err = sender.Transfer(full, 1)
	require.ErrorIs(t, err, ErrOverflow)
	require.Equal(t, sender, from)
	require.Equal(t, full, to)

	maxed := sender
	maxed.ValuePerClick = math.MaxUint32
	from, to, err = maxed.Transfer(recipient, 1)
	require.ErrorIs(t, err, ErrOverflow)
	require.Equal(t, maxed, from)
	require.Equal(t, recipient, to)
}
