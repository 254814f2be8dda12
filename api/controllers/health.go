package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/newsletter-backend/api/responses"
	"github.com/angelmondragon/newsletter-backend/pkg/config"
	"github.com/angelmondragon/newsletter-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/newsletter-backend/pkg/errors"
	"github.com/angelmondragon/newsletter-backend/pkg/logger"
)

const (
	envHeader    = "X-Newsletter-Env"
	readyTimeout = 2 * time.Second
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings postgres and, when configured, redis. A nil redis pinger is skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbPinger db.Pinger, redisPinger db.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := map[string]string{"database": "ok"}
		if dbPinger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "database unavailable"))
			return
		}
		if err := dbPinger.Ping(ctx); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable").
				WithDetails(map[string]any{"dependency": "database"}))
			return
		}

		if redisPinger != nil {
			if err := redisPinger.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable").
					WithDetails(map[string]any{"dependency": "redis"}))
				return
			}
			checks["redis"] = "ok"
		}

		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
