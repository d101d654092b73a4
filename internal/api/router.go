package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aegisgate/aegis/internal/middleware"
	"github.com/aegisgate/aegis/internal/services/ratelimit"
)

// RouterConfig carries everything the HTTP surface needs.
type RouterConfig struct {
	Logger    *zap.Logger
	Auth      *middleware.AuthMiddleware
	Limiter    ratelimit.RateLimiter
	RateLimit  int
	RateWindow time.Duration

	Chat       *ChatHandler
	Tools      *ToolsHandler
	Violations *ViolationsHandler
	Health     *HealthHandler
}

// NewRouter wires the middleware chain and routes.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.MetricsMiddleware(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", cfg.Health.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cfg.Auth.Authenticate)
		if cfg.Limiter != nil && cfg.RateLimit > 0 {
			r.Use(middleware.RateLimit(cfg.Limiter, cfg.RateLimit, cfg.RateWindow, cfg.Logger))
		}

		r.Post("/chat", cfg.Chat.Chat)
		r.Get("/tools", cfg.Tools.ListTools)
		r.Get("/admin/violations", cfg.Violations.ListViolations)
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		sendError(w, http.StatusNotFound, "The requested resource was not found")
	})

	return r
}
