package main

import (
	"database/sql"
	"net/http"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "github.com/Abyoshii/review-refinery/internal/adapters/http_server"
	"github.com/Abyoshii/review-refinery/internal/adapters/marketplace"
	"github.com/Abyoshii/review-refinery/internal/adapters/observability"
	redisad "github.com/Abyoshii/review-refinery/internal/adapters/redis"
	"github.com/Abyoshii/review-refinery/internal/app"
	"github.com/Abyoshii/review-refinery/internal/shared"
	mysqlrepo "github.com/Abyoshii/review-refinery/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "api")

	observability.Serve()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	client, err := marketplace.New(cfg.FeedbackBase, cfg.FeedbackToken, 3)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize feedbacks client")
	}

	q := app.NewQueryService(repo, cache, cfg.CacheTTL)
	syncer := app.NewSyncService(client, repo, cache)
	responder := app.NewResponder(client, repo, cache, cfg.ReplyWorkers, cfg.SubmitTimeout)

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Q:            q,
		Sync:         syncer,
		R:            responder,
		SyncPageSize: cfg.SyncPageSize,
	})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
