package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	// MinLength is the smallest number of random bytes behind an opaque value.
	MinLength = 32
	// MaxLength keeps the hex encoding within the 512 characters lookups accept.
	MaxLength = 256
)

// Generate returns length bytes from crypto/rand, hex encoded. Lengths are clamped to
// [MinLength, MaxLength].
func Generate(length int) (string, error) {
	length = ClampLength(length)
	tokenBytes := make([]byte, length)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(tokenBytes), nil
}

// ClampLength bounds a configured byte length to [MinLength, MaxLength].
func ClampLength(length int) int {
	switch {
	case length < MinLength:
		return MinLength
	case length > MaxLength:
		return MaxLength
	}
	return length
}
