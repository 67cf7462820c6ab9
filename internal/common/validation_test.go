package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError_AddAndErrOrNil(t *testing.T) {
	v := NewValidationError()
	require.NoError(t, v.ErrOrNil())

	v.Add("email", "already taken")
	v.Add("password", "too short")
	v.Add("password", "too common")

	err := v.ErrOrNil()
	require.Error(t, err)
	assert.Equal(t, "validation error: email: already taken, password: too short; too common", err.Error())

	var ve *ValidationError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &ve))
	assert.Len(t, ve.Fields["password"], 2)
}

func TestValidationError_ZeroValueAdd(t *testing.T) {
	var v ValidationError
	v.Add("username", "required")
	assert.False(t, v.Empty())
}

func TestWeakPasswordError_Message(t *testing.T) {
	err := &WeakPasswordError{Reasons: []string{"a", "b"}}
	assert.Equal(t, "weak password: a; b", err.Error())
}
