// The checker.go file implements synthetic health checks during OPEN state.
// When a circuit opens due to failures, the health checker runs periodic
// lightweight probes and reports their results to the Tracker. A success
// reported while the circuit is OPEN does not shorten the open period:
// the circuit moves to HALF-OPEN only once its open duration has elapsed.
//
// Key features:
//   - UpstreamHealthCheck interface for pluggable health checks
//   - HTTPHealthCheck for HTTP-based connectivity validation
//   - Periodic monitoring with configurable interval and jitter
//   - Only checks OPEN circuits (not CLOSED or HALF-OPEN)
package health

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// UpstreamHealthCheck defines how to check if an upstream is healthy.
// Implementations should be lightweight and fast (not full API calls).
type UpstreamHealthCheck interface {
	// Check performs a health check against the upstream.
	// Returns nil if healthy, error if unhealthy.
	Check(ctx context.Context) error

	// Name returns the name of the upstream being checked.
	Name() string
}

// HTTPHealthCheck performs health checks via HTTP request.
type HTTPHealthCheck struct {
	name     string
	url      string
	client   *http.Client
	method   string
	expectOK bool
}

// NewHTTPHealthCheck creates an HTTP-based health check.
// By default, it performs a GET request and expects a 2xx response.
func NewHTTPHealthCheck(name, url string, client *http.Client) *HTTPHealthCheck {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPHealthCheck{
		name:     name,
		url:      url,
		client:   client,
		method:   http.MethodGet,
		expectOK: true,
	}
}

// Check performs the HTTP health check.
func (h *HTTPHealthCheck) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, h.method, h.url, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if h.expectOK && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return fmt.Errorf("unhealthy status: %d", resp.StatusCode)
	}
	return nil
}

// Name returns the name of the upstream being checked.
func (h *HTTPHealthCheck) Name() string {
	return h.name
}

// NoOpHealthCheck always returns healthy. Used when no health check
// endpoint is configured for an upstream.
type NoOpHealthCheck struct {
	name string
}

// NewNoOpHealthCheck creates a no-op health check that always succeeds.
func NewNoOpHealthCheck(name string) *NoOpHealthCheck {
	return &NoOpHealthCheck{name: name}
}

// Check always returns nil (healthy).
func (n *NoOpHealthCheck) Check(_ context.Context) error {
	return nil
}

// Name returns the name of the upstream.
func (n *NoOpHealthCheck) Name() string {
	return n.name
}

// NewUpstreamHealthCheck creates a health check appropriate for the
// upstream, using its base URL as the probe endpoint.
func NewUpstreamHealthCheck(name, baseURL string, client *http.Client) UpstreamHealthCheck {
	if baseURL == "" {
		return NewNoOpHealthCheck(name)
	}
	return NewHTTPHealthCheck(name, baseURL, client)
}

// Checker monitors upstream health and triggers recovery checks.
// It runs periodic health checks against upstreams with OPEN circuits
// and reports the results to the Tracker; these results do not move an
// OPEN circuit to HALF-OPEN before its open duration has elapsed.
type Checker struct {
	ctx     context.Context
	tracker *Tracker
	checks  map[string]UpstreamHealthCheck
	logger  *zerolog.Logger
	cancel  context.CancelFunc
	config  CheckConfig
	wg      sync.WaitGroup
	mu      sync.RWMutex
}

// NewChecker creates a new Checker.
func NewChecker(tracker *Tracker, cfg CheckConfig, logger *zerolog.Logger) *Checker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Checker{
		tracker: tracker,
		config:  cfg,
		checks:  make(map[string]UpstreamHealthCheck),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds a health check for an upstream.
func (h *Checker) Register(check UpstreamHealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[check.Name()] = check
}

// Start begins periodic health checking for all registered upstreams.
// Should be called once after all upstreams are registered.
func (h *Checker) Start() {
	if !h.config.IsEnabled() {
		if h.logger != nil {
			h.logger.Info().Msg("health checker disabled")
		}
		return
	}

	interval := h.config.GetInterval()
	jitter := cryptoRandDuration(2 * time.Second)
	ticker := time.NewTicker(interval + jitter)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer ticker.Stop()

		if h.logger != nil {
			h.logger.Info().
				Dur("interval", interval).
				Dur("jitter", jitter).
				Msg("health checker started")
		}

		for {
			select {
			case <-h.ctx.Done():
				if h.logger != nil {
					h.logger.Info().Msg("health checker stopped")
				}
				return
			case <-ticker.C:
				h.checkAllUpstreams()
			}
		}
	}()
}

// Stop stops the health checker and waits for the goroutine to finish.
func (h *Checker) Stop() {
	h.cancel()
	h.wg.Wait()
}

// checkAllUpstreams runs health checks for all upstreams with OPEN circuits.
func (h *Checker) checkAllUpstreams() {
	h.mu.RLock()
	checks := make([]UpstreamHealthCheck, 0, len(h.checks))
	for _, check := range h.checks {
		checks = append(checks, check)
	}
	h.mu.RUnlock()

	for _, check := range checks {
		name := check.Name()
		state := h.tracker.GetState(name)

		if state != StateOpen {
			continue
		}

		ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
		err := check.Check(ctx)
		cancel()

		if err != nil {
			if h.logger != nil {
				h.logger.Debug().
					Str("upstream", name).
					Err(err).
					Msg("health check failed")
			}
			continue
		}

		if h.logger != nil {
			h.logger.Info().
				Str("upstream", name).
				Msg("health check succeeded, recording success")
		}
		h.tracker.RecordSuccess(name)
	}
}

// cryptoRandDuration returns a cryptographically random duration between 0 and maxDur.
func cryptoRandDuration(maxDur time.Duration) time.Duration {
	if maxDur <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	n := binary.LittleEndian.Uint64(b[:])
	//nolint:gosec // G115: maxDur is always positive (checked above), safe conversion
	return time.Duration(n % uint64(maxDur))
}
