package transport

import (
	"encoding/json"
	"net/http"

	"github.com/arjunv/quotaproxy/internal/keyengine"
	"github.com/arjunv/quotaproxy/internal/ratelimit"
)

// NewRouter wires the health check and catch-all relay handler behind
// the request-ID, logging, and ingress rate limiter middleware (run in
// that order, so a rejected request never reaches the engine). A nil
// limiter skips rate limiting entirely. There is deliberately no
// authentication layer: quotaproxy trusts its front door the way the
// original implementation did, leaving client authentication to
// whatever sits in front of it, if anything.
func NewRouter(h *Handler, limiter ratelimit.RateLimiter) http.Handler {
	mux := http.NewServeMux()
	registerHealthRoute(mux, h.Engine)
	mux.Handle("/", h)

	var handler http.Handler = mux
	if limiter != nil {
		handler = RateLimitMiddleware(limiter)(handler)
	}
	handler = LoggingMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	return handler
}

// registerHealthRoute registers a liveness endpoint that reports
// whether the engine currently has any available (key, model) pair.
func registerHealthRoute(mux *http.ServeMux, engine *keyengine.Engine) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status := engine.Status()
		healthy := len(status.RateLimitedKeys) < len(status.PriorityKeys)+len(status.SecondaryKeys)

		w.Header().Set("Content-Type", "application/json")
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":       boolToStatus(healthy),
			"current_key":  status.CurrentKey,
			"models":       status.ModelOrder,
			"rate_limited": status.RateLimitedKeys,
			"unavailable":  status.UnavailableKeys,
		})
	})
}

func boolToStatus(healthy bool) string {
	if healthy {
		return "ok"
	}
	return "degraded"
}
