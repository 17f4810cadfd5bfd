package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"tempauth/internal/audit"
	credentialhandler "tempauth/internal/credential/handler"
	credentialmetrics "tempauth/internal/credential/metrics"
	"tempauth/internal/credential/secret"
	"tempauth/internal/credential/service"
	"tempauth/internal/credential/store"
	"tempauth/internal/credential/store/replay"
	"tempauth/internal/expiry"
	"tempauth/internal/platform/config"
	"tempauth/internal/platform/httpserver"
	"tempauth/internal/platform/logger"
	platformredis "tempauth/internal/platform/redis"
	httptransport "tempauth/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	var (
		credStore store.Store = store.NewInMemory()
		ledger    service.Ledger
		opts      []service.Option
		checks    = map[string]httptransport.HealthChecker{}
	)
	ledger = audit.NewInMemory()

	if cfg.DatabaseURL != "" {
		// pgx driver, so store error inspection sees *pgconn.PgError.
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			log.Error("open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			log.Error("database unreachable", "error", err)
			os.Exit(1)
		}

		credStore = store.NewPostgres(db)
		ledger = audit.NewPostgres(db)
		opts = append(opts, service.WithStoreTx(newCredentialPostgresTx(db)))
		checks["postgres"] = dbHealth{db}
		log.Info("using postgres stores")
	} else {
		log.Info("using in-memory stores")
	}

	if cfg.RedisURL != "" {
		redisClient, err := platformredis.New(cfg.RedisURL, cfg.Redis)
		if err != nil {
			log.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		opts = append(opts, service.WithReplayGuard(replay.NewRedis(redisClient.Client)))
		checks["redis"] = redisClient
		log.Info("using redis replay guard")
	} else {
		opts = append(opts, service.WithReplayGuard(replay.NewInMemory()))
	}

	opts = append(opts,
		service.WithLogger(log),
		service.WithMetrics(credentialmetrics.New()),
		service.WithDurationBounds(service.DurationBounds{
			Min: cfg.MinDuration,
			Max: cfg.MaxDuration,
		}),
	)

	svc := service.New(
		credStore,
		ledger,
		secret.NewGenerator(cfg.TOTP.Issuer, cfg.TOTP.Period, cfg.TOTP.Skew),
		opts...,
	)

	router := httptransport.NewRouter(httptransport.Options{
		Credentials: credentialhandler.New(svc, log),
		APIKey:      cfg.APIKey,
		Logger:      log,
		Checks:      checks,
	})
	srv := httpserver.New(cfg.Addr, router)
	sweeper := expiry.New(svc, cfg.SweepInterval, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting tempauth", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

type dbHealth struct{ db *sql.DB }

func (h dbHealth) Health(ctx context.Context) error {
	return h.db.PingContext(ctx)
}
