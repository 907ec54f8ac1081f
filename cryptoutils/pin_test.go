package cryptoutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPIN(t *testing.T) {
	digest, err := HashPIN("1234")
	require.NoError(t, err)

	ok, err := VerifyPIN(digest, "1234")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPIN(digest, "4321")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPINMalformedDigest(t *testing.T) {
	_, err := VerifyPIN("not-a-digest", "1234")
	assert.Error(t, err)

	_, err = VerifyPIN("argon2id$zz$zz", "1234")
	assert.Error(t, err)
}

func TestHashPINSalted(t *testing.T) {
	a, err := HashPIN("1234")
	require.NoError(t, err)
	b, err := HashPIN("1234")
	require.NoError(t, err)

	// Fresh salt per digest.
	assert.NotEqual(t, a, b)
}

func TestZeroize(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	Zeroize(buf)
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)
}
