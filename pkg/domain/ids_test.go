package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "tempauth/pkg/domain-errors"
)

func TestParseCredentialID(t *testing.T) {
	t.Run("parses valid UUID", func(t *testing.T) {
		raw := uuid.New()
		id, err := ParseCredentialID(raw.String())
		require.NoError(t, err)
		assert.Equal(t, raw.String(), id.String())
		assert.False(t, id.IsNil())
	})

	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseCredentialID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects malformed UUID", func(t *testing.T) {
		_, err := ParseCredentialID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("nil UUID parses but reports IsNil", func(t *testing.T) {
		// Nil UUIDs are allowed at the parse boundary; services use IsNil
		// so store lookups can return a proper not-found instead.
		id, err := ParseCredentialID(uuid.Nil.String())
		require.NoError(t, err)
		assert.True(t, id.IsNil())
	})
}

func TestNewCredentialID(t *testing.T) {
	a := NewCredentialID()
	b := NewCredentialID()
	assert.NotEqual(t, a, b)
	assert.False(t, a.IsNil())
}
