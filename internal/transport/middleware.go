package transport

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arjunv/quotaproxy/internal/ratelimit"
)

// RequestIDMiddleware stashes a request ID (from X-Request-ID if the
// client sent one, else a fresh UUID) onto the request context and
// echoes it back on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := AddRequestID(r.Context(), r.Header.Get("X-Request-ID"))
		w.Header().Set("X-Request-ID", GetRequestID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimitMiddleware guards the proxy's own front door with limiter,
// independently of the key engine's per-(key,model) quota tracking: it
// caps how fast any client traffic reaches key selection at all, so one
// noisy client can't starve the request queue even when plenty of
// upstream quota remains. A request that finds no capacity gets a
// Gemini-shaped 429 rather than being silently dropped or queued.
func RateLimitMiddleware(limiter ratelimit.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(r.Context()) {
				WriteError(w, http.StatusTooManyRequests, "Too many requests; ingress rate limit exceeded.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
// written, since http.ResponseWriter has no getter for it.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(status int) {
	if rw.wroteHeader {
		return
	}
	rw.status = status
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LoggingMiddleware logs one line per request on completion: method,
// path, status, and duration, tagged with the request ID stashed by
// RequestIDMiddleware.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		logger := log.Ctx(r.Context())
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request started")

		next.ServeHTTP(rw, r)

		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.status).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}
