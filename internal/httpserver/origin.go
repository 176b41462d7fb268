package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/rs/cors"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/origin"
)

// originMiddleware rejects browser requests from origins outside the policy
// before any handler (or WebSocket upgrade) runs.
func originMiddleware(logger *slog.Logger, policy origin.Policy) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := policy.Check(r); !ok {
				logger.Debug("origin rejected",
					"origin", r.Header.Get("Origin"),
					"host", r.Host,
					"path", r.URL.Path,
				)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware emits CORS headers (and answers preflights) for origins the
// policy admits, so the frontend can run on a separate origin in development.
func corsMiddleware(policy origin.Policy) Middleware {
	c := cors.New(cors.Options{
		AllowOriginRequestFunc: policy.AllowOrigin,
		AllowedMethods:         []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:         []string{"*"},
		ExposedHeaders:         []string{"X-Request-ID"},
		AllowCredentials:       true,
		MaxAge:                 600,
	})
	return c.Handler
}
