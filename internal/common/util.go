package common

import (
	"crypto/rand"
	"encoding/hex"
)

// MakeRandHexString returns size random bytes encoded as hex, so the result
// is 2*size characters long.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateRandByteArray returns size bytes from crypto/rand.
// It panics if the system random source fails.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// WipeByteArray zeroes b in place. A nil slice is ignored.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
