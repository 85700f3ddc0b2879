package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/petclinic-scheduling/internal/config"
	"github.com/hackgods/petclinic-scheduling/internal/db"
	"github.com/hackgods/petclinic-scheduling/internal/journal"
	"github.com/hackgods/petclinic-scheduling/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.LogLevel, cfg.Env)
	if cfg.PostgresDSN == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.PruneInterval).
		Dur("retention", cfg.JournalRetention).
		Msg("journal-pruner starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, db.PoolConfig{DSN: cfg.PostgresDSN, MaxConns: 2})
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	pj := journal.NewPgJournal(pgPool)
	if err := pj.EnsureSchema(rootCtx); err != nil {
		logger.Fatal().Err(err).Msg("journal schema error")
	}

	// Run once at startup
	runOnce(rootCtx, pj, cfg.JournalRetention, logger)

	ticker := time.NewTicker(cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping journal pruner")
			return
		case <-ticker.C:
			runOnce(rootCtx, pj, cfg.JournalRetention, logger)
		}
	}
}

func runOnce(ctx context.Context, pj *journal.PgJournal, retention time.Duration, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := pj.Prune(runCtx, start.Add(-retention))
	if err != nil {
		logger.Error().Err(err).Msg("prune run error")
		return
	}
	logger.Info().Int64("deleted", n).Dur("took", time.Since(start)).Msg("prune run complete")
}
