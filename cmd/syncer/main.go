package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"github.com/Abyoshii/review-refinery/internal/adapters/marketplace"
	"github.com/Abyoshii/review-refinery/internal/adapters/observability"
	redisad "github.com/Abyoshii/review-refinery/internal/adapters/redis"
	"github.com/Abyoshii/review-refinery/internal/app"
	"github.com/Abyoshii/review-refinery/internal/shared"
	mysqlrepo "github.com/Abyoshii/review-refinery/internal/storage/mysql"
)

// One-shot by default; with SYNC_INTERVAL_SECONDS set it keeps pulling pages
// on that interval until interrupted.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv, "syncer")

	observability.Serve()

	log.Info().
		Str("base", cfg.FeedbackBase).
		Int("page_size", cfg.SyncPageSize).
		Dur("interval", cfg.SyncInterval).
		Msg("syncer starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	client, err := marketplace.New(cfg.FeedbackBase, cfg.FeedbackToken, 3)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize feedbacks client")
	}
	syncer := app.NewSyncService(client, repo, cache)

	runOnce := func() {
		res, err := syncer.Sync(ctx, cfg.SyncPageSize)
		if err != nil {
			log.Warn().Err(err).Msg("sync failed")
			return
		}
		log.Info().Int("saved", res.Saved).Int("fetched", res.Fetched).Msg("sync ok")
	}

	runOnce()
	if cfg.SyncInterval <= 0 {
		return
	}

	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("syncer stopping")
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
