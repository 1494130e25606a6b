package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	CodeMin           = 100000
	CodeMax           = 999999
	DeviceTokenLength = 32 // 256 bits
)

var codeSpan = big.NewInt(CodeMax - CodeMin + 1)

// GenerateNumericCode returns a 6-digit code drawn uniformly from [100000, 999999]
func GenerateNumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+CodeMin), nil
}

// GenerateDeviceToken returns an opaque 256-bit URL-safe token
func GenerateDeviceToken() (string, error) {
	b := make([]byte, DeviceTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate device token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashSecret returns the hex SHA-256 of a code or token for storage
func HashSecret(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// MatchesHash compares a submitted value against a stored hash in constant time
func MatchesHash(value, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	computed := HashSecret(value)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// RandomIntn returns a uniform random int in [0, max)
func RandomIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
