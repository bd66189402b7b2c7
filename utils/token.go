package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateSecureToken returns a random hex string of 2*length characters.
func GenerateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
