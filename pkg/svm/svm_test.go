package svm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fortiblox/X1-Clicker/internal/types"
)

func TestAccountInfoMarkOriginal(t *testing.T) {
	acc := &AccountInfo{
		Key:      types.Pubkey{1},
		Lamports: 1000,
		Data:     []byte{1, 2, 3},
	}
	acc.MarkOriginal()
	require.False(t, acc.IsModified())

	acc.Lamports = 2000
	require.True(t, acc.IsModified())
	acc.Lamports = 1000

	acc.Data[0] = 10
	require.True(t, acc.IsModified())
	acc.Data[0] = 1

	acc.Owner = types.Pubkey{9}
	require.True(t, acc.IsModified())

	acc.Restore()
	require.False(t, acc.IsModified())
	require.Equal(t, []byte{1, 2, 3}, acc.Data)
	require.Equal(t, types.Pubkey{}, acc.Owner)
}

func TestSnapshotIsACopy(t *testing.T) {
	acc := &AccountInfo{Data: []byte{5}}
	snap := acc.Snapshot()
	acc.Data[0] = 6
	require.Equal(t, byte(5), snap.Data[0])
}

func TestComputeMeter(t *testing.T) {
	cm := NewComputeMeter(1000)
	require.NoError(t, cm.Consume(400))
	require.Equal(t, uint64(600), cm.Remaining())
	require.Equal(t, uint64(400), cm.Consumed())

	require.ErrorIs(t, cm.Consume(601), ErrComputeExceeded)
	require.True(t, cm.IsExhausted())
	require.Equal(t, uint64(1000), cm.Consumed())
}

func TestComputeMeterClampsLimit(t *testing.T) {
	cm := NewComputeMeter(CUMax * 2)
	require.Equal(t, CUMax, cm.Limit())
}

func TestComputeMeterDisabled(t *testing.T) {
	cm := NewComputeMeterDisabled()
	require.NoError(t, cm.Consume(CUMax*3))
	require.False(t, cm.IsExhausted())
	require.Equal(t, CUMax*3, cm.Consumed())
}
