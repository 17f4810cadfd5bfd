// Package expiry runs the background sweep that transitions overdue
// credentials to expired. The sweep is the safety net behind lazy expiry on
// the read paths: between accesses, a credential can sit past its deadline
// for at most one sweep interval.
package expiry

import (
	"context"
	"log/slog"
	"time"
)

// Expirer performs one expiry pass and reports how many credentials it
// transitioned. Losing a race to a lazy expirer must be a no-op inside it.
type Expirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// Sweeper periodically invokes the expirer until its context is cancelled.
type Sweeper struct {
	expirer  Expirer
	interval time.Duration
	logger   *slog.Logger
}

// New constructs a sweeper ticking at the given interval.
func New(expirer Expirer, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{expirer: expirer, interval: interval, logger: logger}
}

// Run blocks, sweeping every interval, and returns once ctx is cancelled.
// A failed pass is logged and retried at the next tick; the sweeper itself
// never dies from a transient store or ledger error.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "expiry sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "expiry sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	expired, err := s.expirer.ExpireDue(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "expiry sweep failed",
			"expired_before_failure", expired,
			"error", err)
		return
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "expiry sweep completed", "expired", expired)
	}
}
