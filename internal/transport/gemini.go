package transport

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/arjunv/quotaproxy/internal/health"
)

// DefaultUpstreamBaseURL is the Generative Language API's public
// endpoint, matching the original implementation's GOOGLE_API_BASE_URL.
const DefaultUpstreamBaseURL = "https://generativelanguage.googleapis.com"

// upstreamCircuitName identifies the Gemini upstream in the health
// tracker. quotaproxy talks to exactly one upstream, so this is a
// constant rather than something derived per-request.
const upstreamCircuitName = "generativelanguage"

// UpstreamClient issues requests to the Gemini-compatible upstream on
// behalf of the selected (model, key) pair.
type UpstreamClient struct {
	baseURL string
	http    *http.Client

	// health is optional; when set, Do short-circuits with
	// health.ErrCircuitOpen after repeated transport-level failures or
	// 5xx responses instead of hammering a downed upstream on every
	// attempt (spec §7's NetworkFailure case).
	health *health.Tracker
}

// NewUpstreamClient builds an UpstreamClient targeting baseURL, using
// httpClient for the actual round trips (its Timeout governs the
// per-attempt deadline, matching the original implementation's
// requests.request(..., timeout=120)).
func NewUpstreamClient(baseURL string, httpClient *http.Client) *UpstreamClient {
	if baseURL == "" {
		baseURL = DefaultUpstreamBaseURL
	}
	return &UpstreamClient{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// WithHealthTracker attaches a circuit breaker tracker to the client.
// Passing nil disables circuit breaking (the default).
func (c *UpstreamClient) WithHealthTracker(tracker *health.Tracker) *UpstreamClient {
	c.health = tracker
	return c
}

// rewritePathForModel substitutes the model segment of a generateContent
// path, mirroring the original implementation's path rewrite:
//
//	parts = path.split('/'); parts[-2] = f"models/{model}"
//
// For any other request path, the path is returned unchanged.
func rewritePathForModel(path string, model string) string {
	if !strings.Contains(path, "generateContent") {
		return path
	}
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return path
	}
	parts[len(parts)-2] = "models/" + model
	return strings.Join(parts, "/")
}

// buildTargetURL assembles the full upstream URL for one attempt: the
// base URL, the (possibly rewritten) path, the caller's query
// parameters, and the selected key appended as ?key=.
func (c *UpstreamClient) buildTargetURL(path string, model string, query url.Values, apiKey string) string {
	targetPath := rewritePathForModel(path, model)

	q := url.Values{}
	for k, vs := range query {
		q[k] = vs
	}
	q.Set("key", apiKey)

	return fmt.Sprintf("%s/%s?%s", c.baseURL, targetPath, q.Encode())
}

// requestedModelFromPath extracts the model name a client asked for
// from a generateContent-shaped path (".../models/{model}:generateContent"),
// returning "" for any other path shape so the caller falls back to the
// engine's configured default model.
func requestedModelFromPath(path string) string {
	if !strings.Contains(path, "generateContent") {
		return ""
	}
	parts := strings.Split(path, "/")
	last := parts[len(parts)-1]
	name, _, found := strings.Cut(last, ":")
	if !found {
		return ""
	}
	return name
}

// headersToForward copies the inbound headers to the upstream request,
// dropping Host (net/http sets it from the URL), Content-Length, and any
// hop-by-hop header that would otherwise leak this proxy's own framing.
func headersToForward(in http.Header) http.Header {
	out := make(http.Header, len(in))
	for k, vs := range in {
		if strings.EqualFold(k, "Host") || strings.EqualFold(k, "Content-Length") {
			continue
		}
		hop := false
		for _, h := range hopByHopHeaders {
			if strings.EqualFold(k, h) {
				hop = true
				break
			}
		}
		if hop {
			continue
		}
		out[k] = vs
	}
	return out
}

// Do issues one upstream attempt for the given method/path/body,
// targeting the selected model and key. The caller owns retry and
// outcome handling; Do performs exactly one round trip.
func (c *UpstreamClient) Do(
	ctx context.Context,
	method, path string,
	query url.Values,
	headers http.Header,
	body []byte,
	model string,
	apiKey string,
) (*http.Response, error) {
	if c.health != nil && !c.health.IsHealthyFunc(upstreamCircuitName)() {
		return nil, health.ErrCircuitOpen
	}

	targetURL := c.buildTargetURL(path, model, query, apiKey)

	req, err := http.NewRequestWithContext(ctx, method, targetURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transport: build upstream request: %w", err)
	}
	req.Header = headersToForward(headers)

	resp, err := c.http.Do(req)
	if err != nil {
		if c.health != nil {
			c.health.RecordFailure(upstreamCircuitName, err)
		}
		return nil, fmt.Errorf("transport: upstream request failed: %w", err)
	}

	// 429/403 are the key engine's domain (a key or model is rate-limited
	// or banned, not the upstream itself); only 5xx responses count
	// against the circuit here.
	if c.health != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			c.health.RecordFailure(upstreamCircuitName, fmt.Errorf("upstream status %d", resp.StatusCode))
		} else {
			c.health.RecordSuccess(upstreamCircuitName)
		}
	}
	return resp, nil
}
