// Package replay tracks TOTP codes that have already been accepted, so a
// captured code cannot be replayed inside its validity window.
package replay

import (
	"context"
	"time"

	id "tempauth/pkg/domain"
)

// Guard records accepted codes for the duration of their validity window.
type Guard interface {
	// MarkUsed records the code for the credential. It returns false when the
	// code was already recorded inside the window, in which case the caller
	// must reject the verification.
	MarkUsed(ctx context.Context, credID id.CredentialID, code string, window time.Duration) (bool, error)
}
