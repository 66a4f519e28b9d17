package types

import (
	"crypto/ed25519"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPubkeyBase58(t *testing.T) {
	p, err := PubkeyFromBase58("11111111111111111111111111111111")
	require.NoError(t, err)
	require.True(t, p.IsZero())
	require.Equal(t, "11111111111111111111111111111111", p.String())

	_, err = PubkeyFromBase58("abc")
	require.ErrorIs(t, err, ErrInvalidPubkey)

	_, err = PubkeyFromBase58("0OIl")
	require.Error(t, err)
}

func TestPubkeyTextRoundTrip(t *testing.T) {
	in := map[string]Pubkey{"program": ClickerProgramAddr}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	require.Contains(t, string(raw), ClickerProgramAddr.String())

	var out map[string]Pubkey
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, ClickerProgramAddr, out["program"])
}

func TestSignatureVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	var pk Pubkey
	copy(pk[:], pub)
	msg := []byte("click")

	var sig Signature
	copy(sig[:], ed25519.Sign(priv, msg))
	require.True(t, sig.Verify(pk, msg))
	require.False(t, sig.Verify(pk, []byte("clack")))

	parsed, err := SignatureFromBase58(sig.String())
	require.NoError(t, err)
	require.Equal(t, sig, parsed)
}

func TestIsNativeProgram(t *testing.T) {
	require.True(t, IsNativeProgram(SystemProgramAddr))
	require.False(t, IsNativeProgram(ClickerProgramAddr))
}
