package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	t.Run("assigns the code to a plain error", func(t *testing.T) {
		err := Wrap(errors.New("boom"), CodeUnavailable, "store unreachable")
		assert.True(t, HasCode(err, CodeUnavailable))
		assert.Equal(t, "store unreachable", err.Error())
	})

	t.Run("preserves an existing domain code", func(t *testing.T) {
		// Callers that need a different code must use New; Wrap keeps the
		// inner classification no matter what code it is handed.
		inner := New(CodeInvariantViolation, "credential is already revoked")
		err := Wrap(inner, CodeConflict, "revoke failed")

		assert.True(t, HasCode(err, CodeInvariantViolation))
		assert.False(t, HasCode(err, CodeConflict))
		assert.True(t, errors.Is(err, inner))
	})

	t.Run("preserves the code through intermediate wrapping", func(t *testing.T) {
		inner := New(CodeNotFound, "no such credential")
		err := Wrap(fmt.Errorf("lookup: %w", inner), CodeInternal, "lookup failed")
		assert.True(t, HasCode(err, CodeNotFound))
	})
}

func TestHasCode(t *testing.T) {
	err := New(CodeConflict, "username taken")
	assert.True(t, HasCode(err, CodeConflict))
	assert.False(t, HasCode(err, CodeValidation))
	assert.False(t, HasCode(errors.New("plain"), CodeConflict))
	assert.False(t, HasCode(nil, CodeConflict))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, HasCode(wrapped, CodeConflict))
}

func TestNew(t *testing.T) {
	err := New(CodeValidation, "")
	require.Error(t, err)
	assert.Equal(t, string(CodeValidation), err.Error())
}
