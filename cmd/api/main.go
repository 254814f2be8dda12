package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/newsletter-backend/api/routes"
	"github.com/angelmondragon/newsletter-backend/internal/delivery"
	"github.com/angelmondragon/newsletter-backend/internal/idempotency"
	"github.com/angelmondragon/newsletter-backend/internal/newsletters"
	"github.com/angelmondragon/newsletter-backend/internal/subscribers"
	"github.com/angelmondragon/newsletter-backend/pkg/config"
	"github.com/angelmondragon/newsletter-backend/pkg/db"
	"github.com/angelmondragon/newsletter-backend/pkg/instance"
	"github.com/angelmondragon/newsletter-backend/pkg/logger"
	"github.com/angelmondragon/newsletter-backend/pkg/migrate"
	"github.com/angelmondragon/newsletter-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	var (
		cache       idempotency.Cache
		redisPinger db.Pinger
	)
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		cache = idempotency.NewRedisCache(redisClient, cfg.Idempotency.CacheTTL)
		redisPinger = redisClient
	} else {
		logg.Info(context.Background(), "redis not configured, idempotency replay cache disabled")
	}

	gate, err := idempotency.NewGate(idempotency.GateParams{
		DB:         dbClient,
		Repository: idempotency.NewRepository(dbClient.DB()),
		Cache:      cache,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency gate", err)
		os.Exit(1)
	}

	newsletterService, err := newsletters.NewService(newsletters.ServiceParams{
		Repository:  newsletters.NewRepository(dbClient.DB()),
		Subscribers: subscribers.NewRepository(),
		Queue:       delivery.NewQueue(dbClient.DB()),
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create newsletter service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisPinger, gate, newsletterService),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}
