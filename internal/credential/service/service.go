// Package service implements the access manager: the single entry point for
// credential lifecycle operations. Every state change appends exactly one
// audit event before the caller sees success; a ledger failure aborts the
// operation.
package service

import (
	"context"
	"log/slog"
	"time"

	"tempauth/internal/audit"
	credentialmetrics "tempauth/internal/credential/metrics"
	"tempauth/internal/credential/secret"
	"tempauth/internal/credential/store"
	id "tempauth/pkg/domain"
)

// Ledger is the append-only audit sink the service acknowledges into.
type Ledger interface {
	Append(ctx context.Context, action audit.Action, subjectID id.CredentialID, details string) (audit.Event, error)
	List(ctx context.Context, q audit.Query) ([]audit.Event, error)
}

// SecretSource mints and verifies TOTP seeds.
type SecretSource interface {
	Generate(account string) (secret.Issued, error)
	VerifyCode(seed, code string, at time.Time) (bool, error)
	ReplayWindow() time.Duration
}

// ReplayGuard blocks reuse of an already-accepted code inside its window.
type ReplayGuard interface {
	MarkUsed(ctx context.Context, credID id.CredentialID, code string, window time.Duration) (bool, error)
}

// DurationBounds constrain the requested credential lifetime.
type DurationBounds struct {
	Min time.Duration
	Max time.Duration
}

// DefaultBounds allow lifetimes between one hour and thirty days.
var DefaultBounds = DurationBounds{Min: time.Hour, Max: 720 * time.Hour}

// Service orchestrates credential lifecycle: creation, verification,
// revocation, and expiry.
type Service struct {
	store   store.Store
	ledger  Ledger
	secrets SecretSource
	replay  ReplayGuard
	tx      StoreTx
	bounds  DurationBounds
	logger  *slog.Logger
	metrics *credentialmetrics.Metrics
}

// Option configures a Service.
type Option func(s *Service)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics attaches credential module metrics.
func WithMetrics(m *credentialmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithReplayGuard replaces the default in-process replay guard, typically
// with the Redis-backed one for multi-instance deployments.
func WithReplayGuard(g ReplayGuard) Option {
	return func(s *Service) { s.replay = g }
}

// WithStoreTx replaces the default in-memory transaction boundary, typically
// with a database-backed one.
func WithStoreTx(tx StoreTx) Option {
	return func(s *Service) { s.tx = tx }
}

// WithDurationBounds overrides the allowed credential lifetime range.
func WithDurationBounds(b DurationBounds) Option {
	return func(s *Service) { s.bounds = b }
}

// New constructs the access manager.
func New(st store.Store, ledger Ledger, secrets SecretSource, opts ...Option) *Service {
	s := &Service{
		store:   st,
		ledger:  ledger,
		secrets: secrets,
		tx:      newInMemoryStoreTx(),
		bounds:  DefaultBounds,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
