package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/newsletter-backend/internal/delivery"
	"github.com/angelmondragon/newsletter-backend/internal/newsletters"
	"github.com/angelmondragon/newsletter-backend/pkg/config"
	"github.com/angelmondragon/newsletter-backend/pkg/db"
	"github.com/angelmondragon/newsletter-backend/pkg/email"
	"github.com/angelmondragon/newsletter-backend/pkg/instance"
	"github.com/angelmondragon/newsletter-backend/pkg/logger"
	"github.com/angelmondragon/newsletter-backend/pkg/metrics"
	"github.com/angelmondragon/newsletter-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "delivery-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "delivery-worker"

	logg = logger.New(logger.Options{
		ServiceName: "delivery-worker",
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

	sender, err := email.NewClient(cfg.Email, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create email client", err)
		os.Exit(1)
	}

	worker, err := delivery.NewWorker(delivery.WorkerParams{
		DB:                 dbClient,
		Queue:              delivery.NewQueue(dbClient.DB()),
		Issues:             newsletters.NewRepository(dbClient.DB()),
		Sender:             sender,
		Logger:             logg,
		Metrics:            metrics.NewDeliveryMetrics(prometheus.DefaultRegisterer),
		EmptyQueueInterval: cfg.Delivery.EmptyQueueInterval,
		ErrorInterval:      cfg.Delivery.ErrorInterval,
		SendTimeout:        cfg.Delivery.SendTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery worker", err)
		os.Exit(1)
	}

	pool, err := delivery.NewPool(worker, logg, cfg.Delivery.Concurrency)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker pool", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config: cfg,
		Logger: logg,
		DB:     dbClient,
		Pool:   pool,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
		"concurrency": cfg.Delivery.Concurrency,
	})
	logg.Info(ctx, "starting delivery worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "delivery worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "delivery worker shutting down gracefully")
}
