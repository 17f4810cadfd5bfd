package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/suite"

	"tempauth/internal/audit"
	"tempauth/internal/credential/models"
	"tempauth/internal/credential/secret"
	"tempauth/internal/credential/store"
	"tempauth/internal/credential/store/replay"
	id "tempauth/pkg/domain"
	dErrors "tempauth/pkg/domain-errors"
	"tempauth/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	store   *store.InMemory
	ledger  *audit.InMemory
	service *Service
	now     time.Time
	ctx     context.Context
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.ledger = audit.NewInMemory()
	s.now = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.service = New(
		s.store,
		s.ledger,
		secret.NewGenerator("TempAuth", 30*time.Second, 1),
		WithReplayGuard(replay.NewInMemory()),
	)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

// at shifts the request clock relative to the suite's base time.
func (s *ServiceSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.Add(offset))
}

func (s *ServiceSuite) create(username string, duration time.Duration) *IssuedCredential {
	issued, err := s.service.Create(s.ctx, CreateCommand{
		Username: username,
		Email:    username + "@example.com",
		Duration: duration,
	})
	s.Require().NoError(err)
	return issued
}

func (s *ServiceSuite) codeFor(issued *IssuedCredential, at time.Time) string {
	code, err := totp.GenerateCodeCustom(issued.Secret, at, totp.ValidateOpts{
		Period: 30, Skew: 1, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	s.Require().NoError(err)
	return code
}

func (s *ServiceSuite) eventsFor(credID id.CredentialID, action audit.Action) []audit.Event {
	all, err := s.ledger.List(s.ctx, audit.Query{})
	s.Require().NoError(err)
	matched := []audit.Event{}
	for _, e := range all {
		if e.SubjectID == credID && e.Action == action {
			matched = append(matched, e)
		}
	}
	return matched
}

func (s *ServiceSuite) TestCreate() {
	s.Run("mints an active credential and discloses the secret once", func() {
		issued := s.create("alice", time.Hour)

		s.NotEmpty(issued.Secret)
		s.Contains(issued.ProvisioningURI, "otpauth://")
		s.Equal(models.StatusActive, issued.Credential.Status)
		s.Equal(s.now.Add(time.Hour), issued.Credential.ExpiresAt)

		s.Len(s.eventsFor(issued.Credential.ID, audit.ActionCreate), 1)
	})

	s.Run("rejects out-of-bounds durations", func() {
		_, err := s.service.Create(s.ctx, CreateCommand{Username: "shortlived", Duration: time.Minute})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = s.service.Create(s.ctx, CreateCommand{Username: "immortal", Duration: 10000 * time.Hour})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects a username held by an active credential", func() {
		s.create("bob", time.Hour)

		_, err := s.service.Create(s.ctx, CreateCommand{Username: "bob", Duration: time.Hour})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("frees the username after revocation", func() {
		issued := s.create("carol", time.Hour)
		_, err := s.service.Revoke(s.ctx, issued.Credential.ID, "rotated")
		s.Require().NoError(err)

		replacement := s.create("carol", time.Hour)
		s.NotEqual(issued.Credential.ID, replacement.Credential.ID)
		s.NotEqual(issued.Secret, replacement.Secret)
	})

	s.Run("a failed audit append aborts the creation", func() {
		s.ledger.Close()

		_, err := s.service.Create(s.ctx, CreateCommand{Username: "dave", Duration: time.Hour})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

		_, err = s.store.FindActiveByUsername(s.ctx, "dave")
		s.Require().Error(err, "no credential may exist without its CREATE event")
	})
}

func (s *ServiceSuite) TestRevoke() {
	s.Run("transitions an active credential and records the event", func() {
		issued := s.create("erin", time.Hour)

		revoked, err := s.service.Revoke(s.ctx, issued.Credential.ID, "compromised")
		s.Require().NoError(err)
		s.Equal(models.StatusRevoked, revoked.Status)
		s.Equal("compromised", revoked.RevokedReason)
		s.Require().NotNil(revoked.RevokedAt)
		s.Equal(s.now, *revoked.RevokedAt)

		s.Len(s.eventsFor(issued.Credential.ID, audit.ActionRevoke), 1)
	})

	s.Run("revoking twice is a conflict", func() {
		issued := s.create("frank", time.Hour)
		_, err := s.service.Revoke(s.ctx, issued.Credential.ID, "")
		s.Require().NoError(err)

		_, err = s.service.Revoke(s.ctx, issued.Credential.ID, "again")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("revoking an expired credential is a conflict", func() {
		issued := s.create("gina", time.Hour)

		later := s.at(2 * time.Hour)
		_, err := s.service.Revoke(later, issued.Credential.ID, "too late")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		// The revoke attempt settled the overdue credential to expired.
		cred, err := s.service.Get(later, issued.Credential.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusExpired, cred.Status)
	})

	s.Run("unknown credential is not found", func() {
		_, err := s.service.Revoke(s.ctx, id.NewCredentialID(), "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// TestConcurrentRevocation verifies that racing revocations produce exactly
// one transition and one audit event.
func (s *ServiceSuite) TestConcurrentRevocation() {
	issued := s.create("contested", time.Hour)

	const racers = 12
	results := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.Revoke(s.ctx, issued.Credential.ID, "race")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
		} else {
			s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		}
	}
	s.Equal(1, winners)
	s.Len(s.eventsFor(issued.Credential.ID, audit.ActionRevoke), 1)
}

func (s *ServiceSuite) TestExpiry() {
	s.Run("get settles an overdue credential to expired", func() {
		issued := s.create("henry", time.Hour)

		cred, err := s.service.Get(s.at(61*time.Minute), issued.Credential.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusExpired, cred.Status)
		s.Len(s.eventsFor(issued.Credential.ID, audit.ActionExpire), 1)
	})

	s.Run("listing never returns an overdue credential", func() {
		overdue := s.create("iris", time.Hour)
		fresh := s.create("judy", 3*time.Hour)

		active, err := s.service.ListActive(s.at(2 * time.Hour))
		s.Require().NoError(err)

		ids := []id.CredentialID{}
		for _, c := range active {
			ids = append(ids, c.ID)
		}
		s.Contains(ids, fresh.Credential.ID)
		s.NotContains(ids, overdue.Credential.ID)
	})

	s.Run("expiry is idempotent across sweeps", func() {
		issued := s.create("kate", time.Hour)

		later := s.at(90 * time.Minute)
		count, err := s.service.ExpireDue(later)
		s.Require().NoError(err)
		s.Equal(1, count)

		count, err = s.service.ExpireDue(later)
		s.Require().NoError(err)
		s.Zero(count)

		s.Len(s.eventsFor(issued.Credential.ID, audit.ActionExpire), 1)
	})

	s.Run("a credential exactly at its deadline is expired", func() {
		issued := s.create("liam", time.Hour)

		cred, err := s.service.Get(s.at(time.Hour), issued.Credential.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusExpired, cred.Status)
	})
}

func (s *ServiceSuite) TestVerifyCode() {
	s.Run("accepts a current code and records success", func() {
		issued := s.create("mona", time.Hour)
		code := s.codeFor(issued, s.now)

		result, err := s.service.VerifyCode(s.ctx, VerifyCommand{
			CredentialID: issued.Credential.ID,
			Code:         code,
		})
		s.Require().NoError(err)
		s.True(result.Valid)
		s.Len(s.eventsFor(issued.Credential.ID, audit.ActionVerifySuccess), 1)
	})

	s.Run("resolves the credential by username", func() {
		issued := s.create("nina", time.Hour)
		code := s.codeFor(issued, s.now)

		result, err := s.service.VerifyCode(s.ctx, VerifyCommand{Username: "nina", Code: code})
		s.Require().NoError(err)
		s.True(result.Valid)
		s.Equal(issued.Credential.ID, result.CredentialID)
	})

	s.Run("rejects a wrong code and records failure", func() {
		issued := s.create("oscar", time.Hour)
		wrong := s.codeFor(issued, s.now)
		if wrong == "000000" {
			wrong = "000001"
		} else {
			wrong = "000000"
		}

		result, err := s.service.VerifyCode(s.ctx, VerifyCommand{
			CredentialID: issued.Credential.ID,
			Code:         wrong,
		})
		s.Require().NoError(err)
		s.False(result.Valid)
		s.Len(s.eventsFor(issued.Credential.ID, audit.ActionVerifyFailure), 1)
	})

	s.Run("rejects a replayed code", func() {
		issued := s.create("pete", time.Hour)
		code := s.codeFor(issued, s.now)
		cmd := VerifyCommand{CredentialID: issued.Credential.ID, Code: code}

		first, err := s.service.VerifyCode(s.ctx, cmd)
		s.Require().NoError(err)
		s.Require().True(first.Valid)

		second, err := s.service.VerifyCode(s.ctx, cmd)
		s.Require().NoError(err)
		s.False(second.Valid)
		s.Equal(reasonCodeReplayed, second.Reason)
	})

	s.Run("fails against an expired credential after settling it", func() {
		issued := s.create("quinn", time.Hour)

		later := s.at(2 * time.Hour)
		result, err := s.service.VerifyCode(later, VerifyCommand{
			CredentialID: issued.Credential.ID,
			Code:         s.codeFor(issued, s.now.Add(2*time.Hour)),
		})
		s.Require().NoError(err)
		s.False(result.Valid)
		s.Contains(result.Reason, "expired")
		s.Len(s.eventsFor(issued.Credential.ID, audit.ActionExpire), 1)
	})

	s.Run("fails against a revoked credential", func() {
		issued := s.create("ruth", time.Hour)
		_, err := s.service.Revoke(s.ctx, issued.Credential.ID, "")
		s.Require().NoError(err)

		result, err := s.service.VerifyCode(s.ctx, VerifyCommand{
			CredentialID: issued.Credential.ID,
			Code:         s.codeFor(issued, s.now),
		})
		s.Require().NoError(err)
		s.False(result.Valid)
		s.Contains(result.Reason, "revoked")
	})

	s.Run("malformed code is the caller's error", func() {
		issued := s.create("sara", time.Hour)

		_, err := s.service.VerifyCode(s.ctx, VerifyCommand{
			CredentialID: issued.Credential.ID,
			Code:         "abc",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("requires an identifier", func() {
		_, err := s.service.VerifyCode(s.ctx, VerifyCommand{Code: "123456"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("accepts a caller timestamp inside the window", func() {
		issued := s.create("uma", time.Hour)
		at := s.now.Add(15 * time.Second)

		result, err := s.service.VerifyCode(s.ctx, VerifyCommand{
			CredentialID: issued.Credential.ID,
			Code:         s.codeFor(issued, at),
			At:           at,
		})
		s.Require().NoError(err)
		s.True(result.Valid)
	})

	s.Run("rejects a caller timestamp outside the window", func() {
		issued := s.create("vera", time.Hour)

		for _, at := range []time.Time{s.now.Add(10 * time.Minute), s.now.Add(-10 * time.Minute)} {
			_, err := s.service.VerifyCode(s.ctx, VerifyCommand{
				CredentialID: issued.Credential.ID,
				Code:         s.codeFor(issued, at),
				At:           at,
			})
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		}
		s.Empty(s.eventsFor(issued.Credential.ID, audit.ActionVerifyFailure),
			"a rejected timestamp is validation, not a verification attempt")
	})
}

func (s *ServiceSuite) TestAuditEvents() {
	issued := s.create("tina", time.Hour)
	_, err := s.service.Revoke(s.ctx, issued.Credential.ID, "done")
	s.Require().NoError(err)

	events, err := s.service.AuditEvents(s.ctx, audit.Query{})
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(audit.ActionCreate, events[0].Action)
	s.Equal(audit.ActionRevoke, events[1].Action)
	for _, e := range events {
		s.NotContains(e.Details, issued.Secret, "audit details must never carry the secret")
	}
}
