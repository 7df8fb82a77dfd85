package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"anyplace_viewer/internal/adapters/anyplace"
	"anyplace_viewer/internal/adapters/google"
	server "anyplace_viewer/internal/adapters/http_server"
	"anyplace_viewer/internal/adapters/observability"
	redisad "anyplace_viewer/internal/adapters/redis"
	"anyplace_viewer/internal/app"
	"anyplace_viewer/internal/domain"
	"anyplace_viewer/internal/shared"
	mysqlstore "anyplace_viewer/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// deps
	api, err := anyplace.New(cfg.AnyplaceBase, cfg.AnyplaceRPS, cfg.MaxInFlight)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize Anyplace client")
	}
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := cache.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis ping failed, continuing without a warm cache")
	}

	var markers domain.MarkerStore = redisad.NewMarkers(cache.Client())
	if cfg.MarkerBackend == shared.MarkerBackendMySQL {
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("sql.Open failed")
		}
		if err := db.PingContext(ctx); err != nil {
			log.Fatal().Err(err).Msg("db.Ping failed")
		}
		log.Info().Msg("database connection ok")
		store := mysqlstore.New(db)
		go purgeMarkers(ctx, store, cfg.MarkerPurge)
		markers = store
	}

	viewers := app.NewRegistry(
		app.RegistryConfig{
			Search: app.SearchConfig{
				Campus:         cfg.Campus,
				Debounce:       cfg.Debounce,
				RequestTimeout: cfg.RequestTimeout,
				CacheTTL:       cfg.CacheTTL,
			},
			IdleTTL:     cfg.ViewerIdleTTL,
			LoadTimeout: cfg.RequestTimeout,
		},
		app.RegistryDeps{
			API:      api,
			Identity: google.New(cfg.GoogleRevokeURL),
			Markers:  markers,
			Cache:    cache,
			Logger:   observability.Component("viewer"),
		},
	)
	go viewers.Run(ctx)

	// http
	srv := server.New(cfg.RequestTimeout + 5*time.Second)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Viewers: viewers})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("campus", cfg.Campus).Str("markers", cfg.MarkerBackend).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	viewers.Close()
	log.Info().Msg("API stopped")
}

func purgeMarkers(ctx context.Context, store *mysqlstore.Markers, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("marker purge failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("purged", n).Msg("expired markers purged")
			}
		}
	}
}
