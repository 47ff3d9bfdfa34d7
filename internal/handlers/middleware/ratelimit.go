package middleware

import (
	"net/http"

	"github.com/apexrewards/pointsledger/internal/handlers/actorctx"
	"github.com/apexrewards/pointsledger/internal/handlers/render"
	"github.com/apexrewards/pointsledger/internal/ratelimit"
)

// RateLimitMiddleware throttles by acting identity. Runs after the actor
// middleware; unauthenticated requests never get this far.
func RateLimitMiddleware(limiter ratelimit.Limiter, l logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := actorctx.FromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
				return
			}

			allowed, err := limiter.Allow(r.Context(), actor.Handle)
			if err != nil {
				// Limiter backend trouble must not take the service down
				l.Warn("Rate limiter unavailable, letting request through", "error", err)
				allowed = true
			}
			if !allowed {
				render.ServiceError(w, "Too many requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
