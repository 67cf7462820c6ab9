package common

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString(t *testing.T) {
	for _, size := range []int{0, 1, 32} {
		s, err := MakeRandHexString(size)
		require.NoError(t, err)
		assert.Len(t, s, 2*size)

		raw, err := hex.DecodeString(s)
		require.NoError(t, err)
		assert.Len(t, raw, size)
	}
}

func TestMakeRandHexString_Distinct(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		s, err := MakeRandHexString(32)
		require.NoError(t, err)
		_, dup := seen[s]
		require.False(t, dup, "verification tokens must not repeat")
		seen[s] = struct{}{}
	}
}

func TestGenerateRandByteArray(t *testing.T) {
	a := GenerateRandByteArray(16)
	b := GenerateRandByteArray(16)

	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
	assert.Empty(t, GenerateRandByteArray(0))
}

func TestWipeByteArray(t *testing.T) {
	buf := []byte("hunter2")
	WipeByteArray(buf)
	assert.Equal(t, make([]byte, 7), buf)

	assert.NotPanics(t, func() { WipeByteArray(nil) })
}
