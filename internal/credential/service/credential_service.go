package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tempauth/internal/audit"
	"tempauth/internal/credential/models"
	id "tempauth/pkg/domain"
	dErrors "tempauth/pkg/domain-errors"
	request "tempauth/pkg/platform/middleware/request"
	"tempauth/pkg/platform/sentinel"
	"tempauth/pkg/requestcontext"
)

// CreateCommand carries the caller's input for credential creation.
type CreateCommand struct {
	Username string
	Email    string
	Duration time.Duration
}

// IssuedCredential is the creation result: the only moment the secret leaves
// the store in cleartext.
type IssuedCredential struct {
	Credential      *models.Credential
	Secret          string
	ProvisioningURI string
}

// VerifyCommand identifies a credential (by ID or by active username) and the
// code to check against it. At optionally pins the verification time; zero
// means the server clock. A caller-supplied At must fall within the replay
// window of the server clock, otherwise it would let a caller resurrect codes
// from windows whose replay marks have already lapsed.
type VerifyCommand struct {
	CredentialID id.CredentialID
	Username     string
	Code         string
	At           time.Time
}

// VerifyResult reports the outcome of a verification attempt. Valid is false
// for a wrong code, a replayed code, and a credential in a terminal status;
// Reason says which.
type VerifyResult struct {
	CredentialID id.CredentialID
	Valid        bool
	Reason       string
}

// Verification outcome reasons, also recorded in the audit trail.
const (
	reasonCodeMismatch = "code mismatch"
	reasonCodeReplayed = "code already used"
)

// Create mints a credential with a fresh TOTP secret. The store insert and
// the CREATE audit event commit as one unit; the response is the single
// disclosure of the secret.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*IssuedCredential, error) {
	start := time.Now()

	username := strings.TrimSpace(cmd.Username)
	if err := s.checkDuration(cmd.Duration); err != nil {
		return nil, err
	}

	issued, err := s.secrets.Generate(username)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	cred, err := models.NewCredential(id.NewCredentialID(), username, cmd.Email, issued.Secret, now, cmd.Duration)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid credential request")
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.FindActiveByUsername(ctx, cred.Username); err == nil {
			return dErrors.New(dErrors.CodeConflict, "username is held by an active credential")
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check username availability")
		}

		details := fmt.Sprintf("credential created for %s, expires %s",
			cred.Username, cred.ExpiresAt.UTC().Format(time.RFC3339))
		if _, err := s.ledger.Append(ctx, audit.ActionCreate, cred.ID, details); err != nil {
			return wrapLedgerErr(err)
		}

		if err := s.store.CreateIfUsernameAvailable(ctx, cred); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "username is held by an active credential")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create credential")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "credential_created",
		"credential_id", cred.ID,
		"username", cred.Username,
		"expires_at", cred.ExpiresAt)
	if s.metrics != nil {
		s.metrics.IncrementCreated()
		s.metrics.ObserveCreate(start)
	}

	return &IssuedCredential{
		Credential:      cred,
		Secret:          issued.Secret,
		ProvisioningURI: issued.ProvisioningURI,
	}, nil
}

// Get returns one credential, transitioning it to expired first when its
// deadline has passed.
func (s *Service) Get(ctx context.Context, credID id.CredentialID) (*models.Credential, error) {
	if credID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "credential ID required")
	}
	cred, err := s.store.FindByID(ctx, credID)
	if err != nil {
		return nil, wrapCredentialErr(err, "failed to load credential")
	}
	return s.settleExpiry(ctx, cred)
}

// ListActive returns active credentials ordered by creation time. Overdue
// credentials are expired before listing, so the result never contains a
// credential whose deadline has passed.
func (s *Service) ListActive(ctx context.Context) ([]*models.Credential, error) {
	if _, err := s.ExpireDue(ctx); err != nil {
		return nil, err
	}
	creds, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list credentials")
	}
	return creds, nil
}

// Revoke transitions an active credential to revoked. Racing revocations
// produce one winner; the losers observe a conflict. Revoking a credential
// that is already expired or revoked is a conflict as well.
func (s *Service) Revoke(ctx context.Context, credID id.CredentialID, reason string) (*models.Credential, error) {
	if credID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "credential ID required")
	}

	now := requestcontext.Now(ctx)
	if err := s.expireIfDue(ctx, credID, now); err != nil {
		return nil, err
	}

	cred, err := s.store.Execute(ctx, credID,
		func(c *models.Credential) error { return c.CanRevoke() },
		func(ctx context.Context, c *models.Credential) error {
			c.ApplyRevocation(now, reason)
			details := "credential revoked"
			if reason != "" {
				details = "credential revoked: " + reason
			}
			_, err := s.ledger.Append(ctx, audit.ActionRevoke, c.ID, details)
			return wrapLedgerErr(err)
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			// New, not Wrap: Wrap would keep the invariant_violation code and
			// the caller would see a 400 instead of a conflict.
			return nil, dErrors.New(dErrors.CodeConflict, "credential is not active")
		}
		return nil, wrapCredentialErr(err, "failed to revoke credential")
	}

	s.logAudit(ctx, "credential_revoked",
		"credential_id", cred.ID,
		"reason", reason)
	if s.metrics != nil {
		s.metrics.IncrementRevoked()
	}
	return cred, nil
}

// VerifyCode checks a TOTP code against a credential, identified by ID or by
// active username. Every attempt lands in the audit trail; the attempt fails
// (without error) when the credential is not active, the code does not match,
// or the code was already used inside its validity window.
func (s *Service) VerifyCode(ctx context.Context, cmd VerifyCommand) (*VerifyResult, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveVerify(start)
		}
	}()

	at, err := s.verificationTime(ctx, cmd.At)
	if err != nil {
		return nil, err
	}

	cred, err := s.resolveCredential(ctx, cmd)
	if err != nil {
		return nil, err
	}
	cred, err = s.settleExpiry(ctx, cred)
	if err != nil {
		return nil, err
	}

	if !cred.IsActive() {
		return s.verificationFailed(ctx, cred.ID, "credential is "+string(cred.Status))
	}

	valid, err := s.secrets.VerifyCode(cred.Secret, cmd.Code, at)
	if err != nil {
		// Malformed input is the caller's error, but the attempt still
		// belongs in the trail.
		if _, auditErr := s.verificationFailed(ctx, cred.ID, "malformed code"); auditErr != nil {
			return nil, auditErr
		}
		return nil, err
	}
	if !valid {
		return s.verificationFailed(ctx, cred.ID, reasonCodeMismatch)
	}

	if s.replay != nil {
		fresh, err := s.replay.MarkUsed(ctx, cred.ID, cmd.Code, s.secrets.ReplayWindow())
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "replay guard unavailable")
		}
		if !fresh {
			if s.metrics != nil {
				s.metrics.IncrementVerification("replay")
			}
			if _, err := s.ledger.Append(ctx, audit.ActionVerifyFailure, cred.ID, reasonCodeReplayed); err != nil {
				return nil, wrapLedgerErr(err)
			}
			return &VerifyResult{CredentialID: cred.ID, Valid: false, Reason: reasonCodeReplayed}, nil
		}
	}

	if _, err := s.ledger.Append(ctx, audit.ActionVerifySuccess, cred.ID, "code accepted"); err != nil {
		return nil, wrapLedgerErr(err)
	}
	s.logAudit(ctx, "verification_succeeded", "credential_id", cred.ID)
	if s.metrics != nil {
		s.metrics.IncrementVerification("success")
	}
	return &VerifyResult{CredentialID: cred.ID, Valid: true}, nil
}

// ExpireDue transitions every active credential past its deadline to expired
// and returns how many transitions this call performed. Both the sweeper and
// the read paths funnel through here; losing a race to another expirer is a
// no-op, not an error.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	due, err := s.store.ListDueForExpiry(ctx, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list credentials due for expiry")
	}

	expired := 0
	for _, credID := range due {
		if err := s.expireOne(ctx, credID, now); err != nil {
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		s.logAudit(ctx, "credentials_expired", "count", expired)
		if s.metrics != nil {
			s.metrics.AddExpired(expired)
		}
	}
	return expired, nil
}

// AuditEvents returns ledger events matching the query.
func (s *Service) AuditEvents(ctx context.Context, q audit.Query) ([]audit.Event, error) {
	events, err := s.ledger.List(ctx, q)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events")
	}
	return events, nil
}

// settleExpiry expires an overdue credential and returns its settled state.
func (s *Service) settleExpiry(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	now := requestcontext.Now(ctx)
	if !cred.DueForExpiry(now) {
		return cred, nil
	}
	if err := s.expireIfDue(ctx, cred.ID, now); err != nil {
		return nil, err
	}
	settled, err := s.store.FindByID(ctx, cred.ID)
	if err != nil {
		return nil, wrapCredentialErr(err, "failed to reload credential")
	}
	return settled, nil
}

// expireIfDue expires the credential when overdue. Losing the race to another
// expirer, or the credential not being due at all, is a no-op.
func (s *Service) expireIfDue(ctx context.Context, credID id.CredentialID, now time.Time) error {
	err := s.expireOne(ctx, credID, now)
	if err == nil || dErrors.HasCode(err, dErrors.CodeConflict) {
		return nil
	}
	return err
}

func (s *Service) expireOne(ctx context.Context, credID id.CredentialID, now time.Time) error {
	_, err := s.store.Execute(ctx, credID,
		func(c *models.Credential) error { return c.CanExpire(now) },
		func(ctx context.Context, c *models.Credential) error {
			c.ApplyExpiry()
			_, err := s.ledger.Append(ctx, audit.ActionExpire, c.ID, "credential expired")
			return wrapLedgerErr(err)
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeConflict, "credential disappeared before expiry")
		}
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			// New, not Wrap: expireIfDue keys the lost-race no-op on the
			// conflict code, which Wrap would not assign.
			return dErrors.New(dErrors.CodeConflict, "credential is not due for expiry")
		}
		return wrapCredentialErr(err, "failed to expire credential")
	}
	return nil
}

// verificationTime resolves the clock a code is checked against: the caller's
// timestamp when supplied and within the replay window of the server clock,
// the server clock otherwise. Rejected before any lookup or state change.
func (s *Service) verificationTime(ctx context.Context, at time.Time) (time.Time, error) {
	now := requestcontext.Now(ctx)
	if at.IsZero() {
		return now, nil
	}
	if drift := at.Sub(now); drift > s.secrets.ReplayWindow() || drift < -s.secrets.ReplayWindow() {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, "timestamp is outside the accepted verification window")
	}
	return at, nil
}

// resolveCredential locates the verification subject by ID or active username.
func (s *Service) resolveCredential(ctx context.Context, cmd VerifyCommand) (*models.Credential, error) {
	if !cmd.CredentialID.IsNil() {
		cred, err := s.store.FindByID(ctx, cmd.CredentialID)
		if err != nil {
			return nil, wrapCredentialErr(err, "failed to load credential")
		}
		return cred, nil
	}

	username := strings.TrimSpace(cmd.Username)
	if username == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "credential_id or username is required")
	}
	cred, err := s.store.FindActiveByUsername(ctx, username)
	if err != nil {
		return nil, wrapCredentialErr(err, "failed to load credential by username")
	}
	return cred, nil
}

func (s *Service) verificationFailed(ctx context.Context, credID id.CredentialID, reason string) (*VerifyResult, error) {
	if _, err := s.ledger.Append(ctx, audit.ActionVerifyFailure, credID, reason); err != nil {
		return nil, wrapLedgerErr(err)
	}
	s.logAudit(ctx, "verification_failed",
		"credential_id", credID,
		"reason", reason)
	if s.metrics != nil {
		s.metrics.IncrementVerification("failure")
	}
	return &VerifyResult{CredentialID: credID, Valid: false, Reason: reason}, nil
}

func (s *Service) checkDuration(d time.Duration) error {
	if d < s.bounds.Min {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("duration must be at least %s", s.bounds.Min))
	}
	if d > s.bounds.Max {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("duration must be at most %s", s.bounds.Max))
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if s.logger == nil {
		return
	}
	if requestID := request.GetRequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

func wrapCredentialErr(err error, action string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "credential not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, action)
}

func wrapLedgerErr(err error) error {
	if err == nil {
		return nil
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "audit ledger rejected the event")
}
