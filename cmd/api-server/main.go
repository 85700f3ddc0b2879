package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/hackgods/petclinic-scheduling/internal/api"
	"github.com/hackgods/petclinic-scheduling/internal/appointment"
	"github.com/hackgods/petclinic-scheduling/internal/clinicapi"
	"github.com/hackgods/petclinic-scheduling/internal/config"
	"github.com/hackgods/petclinic-scheduling/internal/db"
	"github.com/hackgods/petclinic-scheduling/internal/journal"
	"github.com/hackgods/petclinic-scheduling/internal/logging"
	"github.com/hackgods/petclinic-scheduling/internal/metrics"
	"github.com/hackgods/petclinic-scheduling/internal/record"
	redisclient "github.com/hackgods/petclinic-scheduling/internal/redis"
)

const (
	version         = "0.1.0"
	sessionMaxIdle  = 30 * time.Minute
	sessionSweepGap = time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.LogLevel, cfg.Env)
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	client, err := clinicapi.New(clinicapi.Config{
		BaseURL: cfg.ClinicAPIURL,
		Timeout: cfg.ClinicAPITimeout,
		Metrics: m,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("clinic api client error")
	}
	checks := []api.DependencyCheck{{Name: "clinic_api", Critical: true, Ping: client.Ping}}

	// Postgres journal is optional
	var (
		eventJournal appointment.Journal
		eventLister  api.EventLister
	)
	if cfg.PostgresDSN != "" {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, db.PoolConfig{DSN: cfg.PostgresDSN})
		cancelPg()
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection error")
		}
		defer pgPool.Close()

		pj := journal.NewPgJournal(pgPool)
		if err := pj.EnsureSchema(rootCtx); err != nil {
			logger.Fatal().Err(err).Msg("journal schema error")
		}
		eventJournal = pj
		eventLister = pj
		checks = append(checks, api.DependencyCheck{Name: "postgres", Ping: pgPool.Ping})
		logger.Info().Msg("connected to Postgres")
	}

	// Redis slot lock is optional
	var locker redisclient.Locker
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing redis")
			}
		}()
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
		checks = append(checks, api.DependencyCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		logger.Info().Msg("connected to Redis")
	}

	sessions := api.NewSessionRegistry(api.SessionRegistryConfig{
		Directory: clinicapi.NewCachedDirectory(client, cfg.DirectoryCacheTTL),
		Slots:     appointment.NewSlotClient(client, m),
		Metrics:   m,
		Logger:    logger,
	})

	svc := appointment.NewService(appointment.ServiceConfig{
		Store:   client,
		Locker:  locker,
		Journal: eventJournal,
		Metrics: m,
		Logger:  logger,
	})
	svc.SetInvalidator(sessions)

	workflow := record.NewWorkflow(record.WorkflowConfig{
		Records:       client,
		Pets:          client,
		Practitioners: client,
		Session:       client,
		Appointments:  svc,
		Journal:       eventJournal,
		Metrics:       m,
		Logger:        logger,
	})

	router := api.NewRouter(api.RouterConfig{
		Sessions:     sessions,
		Appointments: svc,
		Records:      workflow,
		History:      client,
		Events:       eventLister,
		Users:        client,
		Checks:       checks,
		Logger:       logger,
		RateLimit:    rate.Limit(cfg.RateLimit),
		RateBurst:    cfg.RateBurst,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go sweepSessions(rootCtx, sessions, logger)

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func sweepSessions(ctx context.Context, sessions *api.SessionRegistry, logger zerolog.Logger) {
	ticker := time.NewTicker(sessionSweepGap)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(sessionMaxIdle); n > 0 {
				logger.Debug().Int("closed", n).Int("open", sessions.Len()).Msg("idle selection sessions closed")
			}
		}
	}
}
