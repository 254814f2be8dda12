package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/newsletter-backend/api/controllers"
	"github.com/angelmondragon/newsletter-backend/api/middleware"
	"github.com/angelmondragon/newsletter-backend/internal/idempotency"
	"github.com/angelmondragon/newsletter-backend/internal/newsletters"
	"github.com/angelmondragon/newsletter-backend/pkg/config"
	"github.com/angelmondragon/newsletter-backend/pkg/db"
	"github.com/angelmondragon/newsletter-backend/pkg/logger"
)

// NewRouter wires the HTTP surface. redisPinger may be nil when redis is not configured.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbPinger db.Pinger,
	redisPinger db.Pinger,
	gate *idempotency.Gate,
	newsletterService *newsletters.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbPinger, redisPinger))
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Post("/newsletters", controllers.PublishNewsletter(gate, newsletterService, logg))
		r.Get("/newsletters/{issueId}", controllers.GetNewsletterIssue(newsletterService, logg))
	})

	return r
}
