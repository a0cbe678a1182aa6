package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// ConfirmationTokenLength is the number of characters in a confirmation token
const ConfirmationTokenLength = 25

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// TokenGenerator produces confirmation tokens. The service takes one so
// tests can pin token values.
type TokenGenerator func() (string, error)

// GenerateConfirmationToken returns a 25 character token drawn uniformly
// from [A-Za-z0-9] using the operating system CSPRNG (~148 bits of entropy).
func GenerateConfirmationToken() (string, error) {
	upper := big.NewInt(int64(len(tokenAlphabet)))
	b := make([]byte, ConfirmationTokenLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, upper)
		if err != nil {
			return "", fmt.Errorf("failed to generate confirmation token: %w", err)
		}
		b[i] = tokenAlphabet[n.Int64()]
	}
	return string(b), nil
}

// IsWellFormedToken reports whether s has the shape of a confirmation token
func IsWellFormedToken(s string) bool {
	if len(s) != ConfirmationTokenLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
