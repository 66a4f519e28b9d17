package clicker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeInstruction(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Instruction
	}{
		{"init user", []byte{0}, InitUser{}},
		{"click", []byte{1}, Click{}},
		{"upgrade v1", []byte{2, 1}, UpgradeValuePerClick{Variation: 1}},
		{"upgrade out of range variation", []byte{2, 9}, UpgradeValuePerClick{Variation: 9}},
		{"transfer", []byte{3, 0x39, 0x05, 0, 0, 0, 0, 0, 0}, TransferClicks{Amount: 1337}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeInstruction(tt.data)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)

			enc, err := got.MarshalBinary()
			require.NoError(t, err)
			require.Equal(t, tt.data, enc)
		})
	}
}

func TestDecodeInstructionRejects(t *testing.T) {
	tests := map[string][]byte{
		"empty":              nil,
		"unknown tag":        {4},
		"high tag":           {0xff, 0},
		"truncated transfer": {3, 1, 2, 3},
		"missing variation":  {2},
		"trailing click":     {1, 0},
		"trailing transfer":  {3, 1, 0, 0, 0, 0, 0, 0, 0, 7},
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeInstruction(data)
			require.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestErrorCodes(t *testing.T) {
	code, ok := ErrorCode(ErrNotEnoughToUpgrade)
	require.True(t, ok)
	require.Equal(t, uint32(0), code)

	_, err := DecodeInstruction([]byte{9})
	code, ok = ErrorCode(err)
	require.True(t, ok)
	require.Equal(t, ErrDecode.Code, code)

	require.Equal(t, "custom program error: 0x1", CustomErrorString(ErrNotEnoughToTransfer.Code))

	_, ok = ErrorCode(nil)
	require.False(t, ok)

	for code := uint32(0); code <= ErrSelfTransfer.Code; code++ {
		pe, ok := ErrorForCode(code)
		require.True(t, ok)
		require.Equal(t, code, pe.Code)
	}
	_, ok = ErrorForCode(ErrSelfTransfer.Code + 1)
	require.False(t, ok)
}
