package engine

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// EmailAllowed reports whether the (already trimmed) email address ends
// with one of the allowed institutional domains. The match is a hard
// suffix check on "@<domain>" with no other normalization.
func EmailAllowed(email string, domains []string) bool {
	for _, d := range domains {
		suffix := "@" + d
		if len(email) > len(suffix) && strings.HasSuffix(email, suffix) {
			return true
		}
	}
	return false
}

// GenerateCode returns a fixed-length numeric verification code drawn
// from a uniform random digit generator.
func GenerateCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate verification code: %w", err)
		}
		digits[i] = '0' + byte(n.Int64())
	}
	return string(digits), nil
}
