package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the credential module.
// Tracks lifecycle transitions and the verification hot path.
type Metrics struct {
	Created        prometheus.Counter
	Revoked        prometheus.Counter
	Expired        prometheus.Counter
	Verifications  *prometheus.CounterVec
	VerifyDuration prometheus.Histogram
	CreateDuration prometheus.Histogram
}

// New creates a Metrics instance with all credential module metrics registered.
func New() *Metrics {
	return &Metrics{
		Created: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tempauth_credentials_created_total",
			Help: "Total number of credentials created",
		}),
		Revoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tempauth_credentials_revoked_total",
			Help: "Total number of credentials revoked",
		}),
		Expired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tempauth_credentials_expired_total",
			Help: "Total number of credentials expired (lazy and sweeper paths combined)",
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tempauth_verifications_total",
			Help: "Total number of verification attempts by outcome",
		}, []string{"outcome"}),
		VerifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tempauth_verify_duration_seconds",
			Help:    "Duration of code verification operations (authentication hot path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		CreateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tempauth_create_credential_duration_seconds",
			Help:    "Duration of credential creation operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementCreated records a successful credential creation.
func (m *Metrics) IncrementCreated() {
	m.Created.Inc()
}

// IncrementRevoked records a successful revocation.
func (m *Metrics) IncrementRevoked() {
	m.Revoked.Inc()
}

// AddExpired records n credentials transitioned to expired.
func (m *Metrics) AddExpired(n int) {
	m.Expired.Add(float64(n))
}

// IncrementVerification records one verification attempt by outcome
// ("success", "failure", "replay").
func (m *Metrics) IncrementVerification(outcome string) {
	m.Verifications.WithLabelValues(outcome).Inc()
}

// ObserveVerify records the duration of a verification operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveVerify(start time.Time) {
	m.VerifyDuration.Observe(time.Since(start).Seconds())
}

// ObserveCreate records the duration of a creation operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCreate(start time.Time) {
	m.CreateDuration.Observe(time.Since(start).Seconds())
}
