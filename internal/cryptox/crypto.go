// Package cryptox hashes and verifies account passwords with argon2id.
//
// Hashes are stored in the PHC string format:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt b64>$<key b64>
//
// so parameters can be raised later without invalidating existing rows.
package cryptox

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/artelie/backend/internal/common"
	"golang.org/x/crypto/argon2"
)

// ErrInvalidHash is returned when an encoded hash cannot be parsed.
var ErrInvalidHash = errors.New("invalid password hash format")

// Params tunes the argon2id key derivation.
type Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams matches the cost the service runs with in production.
var DefaultParams = Params{
	Memory:      64 * 1024,
	Iterations:  1,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

// Hasher hashes passwords with a fixed parameter set.
type Hasher struct {
	params Params
	dummy  string
}

// NewHasher returns a Hasher using p. A precomputed hash of a random value is
// kept so that lookups for unknown accounts can burn the same CPU time as a
// real comparison.
func NewHasher(p Params) (*Hasher, error) {
	h := &Hasher{params: p}
	dummy, err := h.Hash(string(common.GenerateRandByteArray(16)))
	if err != nil {
		return nil, err
	}
	h.dummy = dummy
	return h, nil
}

// Hash derives an encoded argon2id hash for password using a fresh salt.
func (h *Hasher) Hash(password string) (string, error) {
	if h.params.SaltLength == 0 || h.params.KeyLength == 0 {
		return "", fmt.Errorf("argon2 params: salt and key length must be positive")
	}
	salt := common.GenerateRandByteArray(int(h.params.SaltLength))

	pw := []byte(password)
	defer common.WipeByteArray(pw)

	key := argon2.IDKey(pw, salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// Verify reports whether password matches encoded. The comparison runs in
// constant time.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	p, salt, key, err := decode(encoded)
	if err != nil {
		return false, err
	}

	pw := []byte(password)
	defer common.WipeByteArray(pw)

	computed := argon2.IDKey(pw, salt, p.Iterations, p.Memory, p.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, computed) == 1, nil
}

// VerifyDummy runs a verification against a throwaway hash and discards the
// result.
func (h *Hasher) VerifyDummy(password string) {
	_, _ = h.Verify(password, h.dummy)
}

func decode(encoded string) (Params, []byte, []byte, error) {
	var p Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	if version != argon2.Version {
		return p, nil, nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidHash, version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: key: %v", ErrInvalidHash, err)
	}
	if len(key) == 0 {
		return p, nil, nil, ErrInvalidHash
	}

	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}
