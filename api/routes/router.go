package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/shutterdesk-backend/api/controllers"
	"github.com/angelmondragon/shutterdesk-backend/api/middleware"
	"github.com/angelmondragon/shutterdesk-backend/api/validators"
	"github.com/angelmondragon/shutterdesk-backend/pkg/config"
	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/shutterdesk-backend/pkg/redis"
)

type sessionStore interface {
	HasSession(ctx context.Context, tokenID string) (bool, error)
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
}

type redisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	Redis     redisStore
	Sessions  sessionStore
	Publisher controllers.GalleryPublisher
	Galleries controllers.GalleryManager
	Public    controllers.PublicGalleryReader
	// Readiness lists the dependencies pinged by /health/ready.
	Readiness map[string]controllers.Pinger
	// Metrics serves /metrics; nil uses the default Prometheus gatherer.
	Metrics http.Handler
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	publicPolicy := middleware.NewRateLimitPolicy(
		"public-gallery",
		cfg.RateLimit.PublicWindow,
		cfg.RateLimit.PublicIPLimit,
		cfg.RateLimit.PasswordAttemptLimit,
	)
	uploadLimits := validators.UploadLimits{
		MaxFiles:     cfg.Gallery.MaxFiles,
		MaxFileBytes: cfg.Gallery.MaxUploadBytes(),
	}

	metricsHandler := p.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Readiness))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
		r.With(middleware.RateLimit(publicPolicy, p.Redis, logg)).
			Get("/galleries/{slug}", controllers.PublicGalleryFetch(p.Public, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
		// Idempotency is attached per route so chi has resolved the full pattern.
		idempotent := middleware.Idempotency(p.Redis, uploadLimits.MaxRequestBytes(), logg)

		r.Get("/ping", controllers.PrivatePing())
		r.Post("/v1/auth/logout", controllers.AuthLogout(p.Sessions, logg))

		r.Route("/v1/galleries", func(r chi.Router) {
			r.Get("/", controllers.GalleryList(p.Galleries, logg))
			r.With(idempotent).Post("/", controllers.GalleryPublish(p.Publisher, uploadLimits, logg))
			r.Get("/{slug}/deletion-intent", controllers.GalleryDeletionIntent(p.Galleries, logg))
			r.Delete("/{slug}", controllers.GalleryDelete(p.Galleries, logg))
			r.With(idempotent).Delete("/{slug}/images", controllers.GalleryDeleteImage(p.Galleries, logg))
		})
	})

	return r
}
