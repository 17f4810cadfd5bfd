// Package apikey gates the API behind a shared key presented in the X-API-Key
// header. Authentication policy (who gets a key, rotation) lives outside this
// service; the middleware only checks that the opaque key matches.
package apikey

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	request "tempauth/pkg/platform/middleware/request"
)

// Header is the header carrying the caller's API key.
const Header = "X-API-Key"

// Require rejects requests whose X-API-Key header does not match expectedKey.
func Require(expectedKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(Header)
			// Use constant-time comparison to prevent timing attacks
			if subtle.ConstantTimeCompare([]byte(key), []byte(expectedKey)) != 1 {
				ctx := r.Context()
				requestID := request.GetRequestID(ctx)
				logger.WarnContext(ctx, "api key mismatch",
					"request_id", requestID,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"api key required"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
