package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes = 32 // 256 bits, 64 hex chars
	ResetTokenTTL   = time.Hour
)

// GenerateResetToken returns a random plaintext token and the hash that is
// stored in its place. Only the plaintext is ever sent to the user.
func GenerateResetToken() (token, hash string, err error) {
	b := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	token = hex.EncodeToString(b)
	return token, HashResetToken(token), nil
}

// HashResetToken returns the hex SHA-256 of a plaintext reset token. Stored
// hashes are looked up by equality.
func HashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
