package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "tempauth/pkg/domain"
	"tempauth/pkg/platform/sentinel"
)

const usedCodeKeyPrefix = "replay:code:"

// Redis is a Redis-backed replay guard for deployments where multiple
// instances verify against the same credentials. SET NX with a TTL makes the
// mark-and-check a single atomic operation; Redis expiry replaces manual
// sweeping.
type Redis struct {
	client redis.Cmdable
}

// NewRedis constructs a Redis-backed replay guard.
func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

// MarkUsed records the code, returning false when it is already held.
// The key existence is the marker; the value carries no meaning.
func (g *Redis) MarkUsed(ctx context.Context, credID id.CredentialID, code string, window time.Duration) (bool, error) {
	key := usedCodeKeyPrefix + credID.String() + ":" + code
	stored, err := g.client.SetNX(ctx, key, "1", window).Result()
	if err != nil {
		return false, fmt.Errorf("mark code used: %w (%w)", err, sentinel.ErrUnavailable)
	}
	return stored, nil
}
