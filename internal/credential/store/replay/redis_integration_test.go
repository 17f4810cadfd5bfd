//go:build integration

package replay_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tempauth/internal/credential/store/replay"
	id "tempauth/pkg/domain"
	"tempauth/pkg/testutil/containers"
)

type RedisGuardSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	guard *replay.Redis
}

func TestRedisGuardSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisGuardSuite))
}

func (s *RedisGuardSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.guard = replay.NewRedis(s.redis.Client)
}

func (s *RedisGuardSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisGuardSuite) TestFirstUseThenReplay() {
	ctx := context.Background()
	credID := id.NewCredentialID()

	fresh, err := s.guard.MarkUsed(ctx, credID, "123456", time.Minute)
	s.Require().NoError(err)
	s.True(fresh, "first use of a code should be accepted")

	fresh, err = s.guard.MarkUsed(ctx, credID, "123456", time.Minute)
	s.Require().NoError(err)
	s.False(fresh, "second use of the same code should be rejected")
}

func (s *RedisGuardSuite) TestCodesAreIndependentPerCredential() {
	ctx := context.Background()
	a, b := id.NewCredentialID(), id.NewCredentialID()

	fresh, err := s.guard.MarkUsed(ctx, a, "654321", time.Minute)
	s.Require().NoError(err)
	s.True(fresh)

	// Same code under a different credential is a different key.
	fresh, err = s.guard.MarkUsed(ctx, b, "654321", time.Minute)
	s.Require().NoError(err)
	s.True(fresh)

	// A different code under the first credential is still fresh.
	fresh, err = s.guard.MarkUsed(ctx, a, "111111", time.Minute)
	s.Require().NoError(err)
	s.True(fresh)
}

func (s *RedisGuardSuite) TestMarkExpiresWithWindow() {
	ctx := context.Background()
	credID := id.NewCredentialID()

	fresh, err := s.guard.MarkUsed(ctx, credID, "222333", time.Second)
	s.Require().NoError(err)
	s.True(fresh)

	// Redis owns the TTL, so wait it out rather than faking the clock.
	time.Sleep(1500 * time.Millisecond)

	fresh, err = s.guard.MarkUsed(ctx, credID, "222333", time.Second)
	s.Require().NoError(err)
	s.True(fresh, "mark should lapse once the window passes")
}
