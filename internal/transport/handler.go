package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arjunv/quotaproxy/internal/health"
	"github.com/arjunv/quotaproxy/internal/keyengine"
	"github.com/arjunv/quotaproxy/internal/ratelimit"
	"github.com/arjunv/quotaproxy/internal/respcache"
)

// retryDelay is the pause between a 429 and the next attempt, matching
// the original implementation's time.sleep(1).
const retryDelay = time.Second

// hopByHopHeaders are stripped from both the upstream request and the
// relayed response, matching RFC 7230 §6.1.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// Handler implements the core relay loop: pick a (model, key) pair,
// forward the request upstream, react to the outcome, and retry on
// rate limiting up to a fixed budget.
type Handler struct {
	Engine         *keyengine.Engine
	Cache          respcache.Cache
	Upstream       *UpstreamClient
	MaxRetries     int
	ChunkRateLimit ratelimit.ROLimiterConfig
}

// NewHandler builds a Handler. maxRetries <= 0 defaults to 5, matching
// the original implementation's MAX_RETRIES.
func NewHandler(engine *keyengine.Engine, cache respcache.Cache, upstream *UpstreamClient, maxRetries int) *Handler {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Handler{
		Engine:         engine,
		Cache:          cache,
		Upstream:       upstream,
		MaxRetries:     maxRetries,
		ChunkRateLimit: DefaultChunkRateLimit,
	}
}

// ServeHTTP implements the single catch-all route: any method, any
// path is proxied to the Generative Language API.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	path := strings.TrimPrefix(r.URL.Path, "/")
	body, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	fingerprint := respcache.Fingerprint(path, body)

	if h.serveFromCache(ctx, w, fingerprint) {
		return
	}

	requestedModel := keyengine.Model(requestedModelFromPath(path))

	for attempt := 0; attempt < h.MaxRetries; attempt++ {
		if !h.attempt(ctx, w, r, path, body, requestedModel, fingerprint, attempt) {
			return
		}
	}

	logger.Warn().Str("path", path).Int("max_retries", h.MaxRetries).
		Msg("request failed after exhausting retry budget")
	WriteRetriesExhaustedError(w)
}

// attempt runs a single pick-and-forward iteration. It returns true if
// the caller should retry (a 429 was hit and retries remain), and false
// if the response has already been written to w (success, non-retriable
// error, or terminal failure).
func (h *Handler) attempt(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	path string,
	body []byte,
	requestedModel keyengine.Model,
	fingerprint string,
	attemptNum int,
) bool {
	logger := log.Ctx(ctx)

	model, key, err := h.Engine.Pick(requestedModel)
	if err != nil {
		logger.Warn().Err(err).Msg("no capacity available")
		WriteNoCapacityError(w)
		return false
	}

	resp, err := h.Upstream.Do(ctx, r.Method, path, r.URL.Query(), r.Header, body, string(model), string(key))
	if err != nil {
		if errors.Is(err, health.ErrCircuitOpen) {
			logger.Warn().Str("model", string(model)).Msg("upstream circuit breaker open")
			WriteError(w, http.StatusServiceUnavailable, "Upstream is currently unavailable.")
			return false
		}
		logger.Error().Err(err).Str("model", string(model)).Msg("upstream request failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if err := h.Engine.On429(key, model); err != nil {
			logger.Warn().Err(err).Msg("On429 reported unknown key")
		}
		if attemptNum == h.MaxRetries-1 {
			return true // loop exits naturally, final message written by caller
		}
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
		}
		return true

	case resp.StatusCode == http.StatusForbidden:
		if err := h.Engine.On403(key); err != nil {
			logger.Warn().Err(err).Msg("On403 reported unknown key")
		}
		WriteForbiddenError(w)
		return false

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		h.handleSuccess(ctx, w, resp, key, model, fingerprint)
		return false

	default:
		h.passthrough(w, resp)
		return false
	}
}

// handleSuccess relays a 2xx upstream response to the client while
// accumulating the full body, extracts the token count it reports, and
// records both the usage outcome and the response cache entry.
func (h *Handler) handleSuccess(
	ctx context.Context,
	w http.ResponseWriter,
	resp *http.Response,
	key keyengine.Key,
	model keyengine.Model,
	fingerprint string,
) {
	logger := log.Ctx(ctx)
	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	fullBody, err := RelayStream(ctx, w, resp.Body, h.ChunkRateLimit)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn().Err(err).Msg("error relaying upstream response body")
	}

	tokens := ExtractTokenUsage(fullBody)
	if err := h.Engine.OnSuccess(key, model, tokens); err != nil {
		logger.Warn().Err(err).Msg("OnSuccess reported unknown key")
	}

	h.storeInCache(ctx, fingerprint, resp.StatusCode, resp.Header, fullBody)
}

// passthrough relays a non-2xx, non-429, non-403 response unmodified:
// no caching, no retry, matching the original implementation's "else"
// branch which just streams the upstream response straight through.
func (h *Handler) passthrough(w http.ResponseWriter, resp *http.Response) {
	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Error().Err(err).Msg("error streaming non-success upstream response")
	}
}

func (h *Handler) serveFromCache(ctx context.Context, w http.ResponseWriter, fingerprint string) bool {
	if h.Cache == nil {
		return false
	}
	raw, err := h.Cache.Get(ctx, fingerprint)
	if err != nil {
		return false
	}
	stored, err := respcache.DecodeResponse(raw)
	if err != nil {
		return false
	}
	for k, vs := range stored.Headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
	return true
}

func (h *Handler) storeInCache(ctx context.Context, fingerprint string, status int, headers http.Header, body []byte) {
	if h.Cache == nil {
		return
	}
	encoded, err := respcache.EncodeResponse(respcache.StoredResponse{
		Status:  status,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to encode response for caching")
		return
	}
	if err := h.Cache.Set(ctx, fingerprint, encoded); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to store response in cache")
	}
}

func copyResponseHeaders(dst, src http.Header) {
outer:
	for k, vs := range src {
		for _, hop := range hopByHopHeaders {
			if strings.EqualFold(k, hop) {
				continue outer
			}
		}
		dst[k] = vs
	}
}
