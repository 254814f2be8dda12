package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/newsletter-backend/pkg/config"
	"github.com/angelmondragon/newsletter-backend/pkg/logger"
)

const metricsShutdownTimeout = 5 * time.Second

type pinger interface {
	Ping(context.Context) error
}

type poolRunner interface {
	Run(context.Context) error
}

type ServiceParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             pinger
	Pool           poolRunner
	MetricsHandler http.Handler
}

type Service struct {
	cfg            *config.Config
	logg           *logger.Logger
	db             pinger
	pool           poolRunner
	metricsHandler http.Handler
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Pool == nil {
		return nil, errors.New("worker pool is required")
	}
	handler := params.MetricsHandler
	if handler == nil {
		handler = promhttp.Handler()
	}
	return &Service{
		cfg:            params.Config,
		logg:           params.Logger,
		db:             params.DB,
		pool:           params.Pool,
		metricsHandler: handler,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}
	s.logg.Info(ctx, "delivery worker dependencies are ready")
	return nil
}

// Run serves /metrics alongside the pool and returns once the pool has drained.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	var server *http.Server
	if addr := s.cfg.Delivery.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metricsHandler)
		server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			metricsCtx := s.logg.WithField(ctx, "metrics_addr", addr)
			s.logg.Info(metricsCtx, "serving delivery metrics")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logg.Error(metricsCtx, "metrics server stopped", err)
			}
		}()
	}

	err := s.pool.Run(ctx)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logg.Error(ctx, "metrics server shutdown failed", shutdownErr)
		}
	}

	if err != nil {
		return err
	}
	return ctx.Err()
}
