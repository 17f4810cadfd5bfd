// Package httptransport assembles the HTTP surface: middleware stack,
// credential routes, health, and metrics.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	credentialhandler "tempauth/internal/credential/handler"
	"tempauth/pkg/platform/httputil"
	"tempauth/pkg/platform/middleware/apikey"
	request "tempauth/pkg/platform/middleware/request"
	"tempauth/pkg/platform/middleware/requesttime"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Options carries the router's dependencies.
type Options struct {
	Credentials *credentialhandler.Handler
	APIKey      string
	Logger      *slog.Logger

	// Health dependencies; nil entries are skipped.
	Checks map[string]HealthChecker
}

// NewRouter wires the middleware stack and all endpoints. Every credential
// route sits behind the API key; health and metrics stay open for probes and
// scrapers.
func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(opts.Logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", handleHealth(opts.Checks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(apikey.Require(opts.APIKey, opts.Logger))
		opts.Credentials.Register(r)
	})

	return r
}

func handleHealth(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		deps := map[string]string{}
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Health(r.Context()); err != nil {
				deps[name] = "unreachable"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{
			"status":       state,
			"dependencies": deps,
		})
	}
}
