package auth

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateResetToken(t *testing.T) {
	token, hash, err := GenerateResetToken()
	require.NoError(t, err)

	raw, err := hex.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, ResetTokenBytes)

	assert.Len(t, hash, 64)
	assert.Equal(t, HashResetToken(token), hash)
	assert.NotEqual(t, token, hash, "plaintext is never the stored value")
}

func TestGenerateResetTokenIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		token, _, err := GenerateResetToken()
		require.NoError(t, err)
		assert.False(t, seen[token])
		seen[token] = true
	}
}

func TestHashResetToken(t *testing.T) {
	// sha256("abc")
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		HashResetToken("abc"))
	assert.NotEqual(t, HashResetToken("abc"), HashResetToken("abd"))
}
