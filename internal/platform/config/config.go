package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr   string
	APIKey string

	// DatabaseURL selects the Postgres-backed stores when set; empty keeps
	// the in-memory stores, matching the demo deployment.
	DatabaseURL string

	// RedisURL selects the Redis-backed code replay guard when set.
	RedisURL string

	TOTP  TOTPConfig
	Redis RedisConfig

	// MinDuration and MaxDuration bound the caller-requested credential
	// lifetime. Requests outside the bounds are rejected before any state
	// change.
	MinDuration time.Duration
	MaxDuration time.Duration

	// SweepInterval controls the periodic expiry sweep.
	SweepInterval time.Duration
}

// TOTPConfig holds code derivation parameters.
type TOTPConfig struct {
	Issuer string
	Period time.Duration
	// Skew is the number of adjacent time steps accepted on either side of
	// the current one.
	Skew uint
}

// RedisConfig holds Redis connection tuning.
type RedisConfig struct {
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("TEMPAUTH_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	apiKey := os.Getenv("TEMPAUTH_API_KEY")
	if apiKey == "" {
		// Use a default for development - should be overridden in production
		apiKey = "dev-api-key-change-in-production"
	}

	issuer := os.Getenv("TEMPAUTH_ISSUER")
	if issuer == "" {
		issuer = "TempAuth"
	}

	return Server{
		Addr:        addr,
		APIKey:      apiKey,
		DatabaseURL: os.Getenv("TEMPAUTH_DATABASE_URL"),
		RedisURL:    os.Getenv("TEMPAUTH_REDIS_URL"),
		TOTP: TOTPConfig{
			Issuer: issuer,
			Period: durationFromEnv("TEMPAUTH_TOTP_PERIOD", 30*time.Second),
			Skew:   uintFromEnv("TEMPAUTH_TOTP_SKEW", 1),
		},
		Redis: RedisConfig{
			PoolSize:     intFromEnv("TEMPAUTH_REDIS_POOL_SIZE", 10),
			MinIdleConns: intFromEnv("TEMPAUTH_REDIS_MIN_IDLE", 2),
			DialTimeout:  durationFromEnv("TEMPAUTH_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationFromEnv("TEMPAUTH_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationFromEnv("TEMPAUTH_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		MinDuration:   durationFromEnv("TEMPAUTH_MIN_DURATION", time.Hour),
		MaxDuration:   durationFromEnv("TEMPAUTH_MAX_DURATION", 30*24*time.Hour),
		SweepInterval: durationFromEnv("TEMPAUTH_SWEEP_INTERVAL", time.Minute),
	}
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func intFromEnv(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func uintFromEnv(key string, fallback uint) uint {
	if raw := os.Getenv(key); raw != "" {
		if n, err := strconv.ParseUint(raw, 10, 32); err == nil {
			return uint(n)
		}
	}
	return fallback
}
