package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/aegisgate/aegis/internal/guardrails"
	"github.com/aegisgate/aegis/internal/monitoring"
	"github.com/aegisgate/aegis/internal/services/ratelimit"
)

// RateLimit enforces a per-user request limit at the HTTP edge. This is the
// only place a rate_limit_exceeded violation originates; the guardrail
// backends never raise it.
func RateLimit(limiter ratelimit.RateLimiter, limit int, window time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	log := logger.Named("ratelimit")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r.Context())
			if user == nil {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := limiter.Allow(r.Context(), "ratelimit:user:"+user.ID, limit, window)
			if err != nil {
				// Limiter outage must not take the service down with it.
				log.Warn("Rate limiter unavailable, allowing request", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			endpoint := routePattern(r)
			if !allowed {
				monitoring.RecordRateLimitHit(endpoint)
				log.Info("Rate limit exceeded",
					zap.String("user_id", user.ID),
					zap.Int("limit", limit))
				sendRateLimited(w, user.ID, limit, window)
				return
			}

			monitoring.RecordRateLimitAllowed(endpoint)
			next.ServeHTTP(w, r)
		})
	}
}

func sendRateLimited(w http.ResponseWriter, userID string, limit int, window time.Duration) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", window.String())
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(guardrails.Result{
		Allowed: false,
		Violations: []guardrails.Violation{{
			Type:           guardrails.ViolationRateLimitExceeded,
			Severity:       guardrails.SeverityHigh,
			Message:        "Request rate limit exceeded",
			UserID:         userID,
			Blocked:        true,
			Recommendation: "Please slow down and retry shortly.",
		}},
		Metadata: map[string]any{
			"limit":  limit,
			"window": window.String(),
		},
	})
}
