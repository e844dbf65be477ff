package cryptox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name   string `json:"name"`
	Secret []byte `json:"secret"`
}

func TestDeriveKey_DeterministicPerSalt(t *testing.T) {
	pw := []byte("correct horse")
	salt1 := []byte("0123456789abcdef")
	salt2 := []byte("fedcba9876543210")

	k1 := DeriveKey(pw, salt1)
	k2 := DeriveKey(pw, salt1)
	k3 := DeriveKey(pw, salt2)

	require.Len(t, k1, 32)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := DeriveKey([]byte("pw"), []byte("salt-salt-salt-s"))
	in := payload{Name: "GitHub", Secret: []byte{1, 2, 3}}

	ct, nonce, err := Seal(in, key)
	require.NoError(t, err)
	require.NotEmpty(t, ct)
	require.Len(t, nonce, 12)

	var out payload
	require.NoError(t, Open(ct, nonce, key, &out))
	assert.Equal(t, in, out)
}

func TestOpen_WrongKeyFails(t *testing.T) {
	key := DeriveKey([]byte("pw"), []byte("salt-salt-salt-s"))
	other := DeriveKey([]byte("pw2"), []byte("salt-salt-salt-s"))

	ct, nonce, err := Seal(payload{Name: "x"}, key)
	require.NoError(t, err)

	var out payload
	assert.Error(t, Open(ct, nonce, other, &out))
}

func TestSealBytes_RoundTrip(t *testing.T) {
	key := DeriveKey([]byte("pw"), []byte("salt-salt-salt-s"))

	ct, nonce, err := SealBytes([]byte("kdbx image"), key)
	require.NoError(t, err)
	assert.NotEqual(t, []byte("kdbx image"), ct)
	assert.Len(t, nonce, 12)
}

func TestMakeVerifier_StableLength(t *testing.T) {
	v := MakeVerifier([]byte("key material"))
	assert.Len(t, v, 32)
	assert.Equal(t, v, MakeVerifier([]byte("key material")))
}
