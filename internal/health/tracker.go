package health

import (
	"sync"

	"github.com/rs/zerolog"
)

// Tracker manages circuit breakers keyed by upstream name. quotaproxy
// talks to a single Gemini upstream, but the map keeps the door open
// for a future multi-endpoint deployment without a rewrite.
type Tracker struct {
	circuits map[string]*CircuitBreaker
	logger   *zerolog.Logger
	config   CircuitBreakerConfig
	mu       sync.RWMutex
}

// NewTracker creates a new Tracker with the given configuration.
func NewTracker(cfg CircuitBreakerConfig, logger *zerolog.Logger) *Tracker {
	return &Tracker{
		circuits: make(map[string]*CircuitBreaker),
		config:   cfg,
		logger:   logger,
	}
}

// GetOrCreateCircuit returns the circuit breaker for an upstream, creating it if necessary.
// This method is thread-safe and uses lazy initialization.
func (t *Tracker) GetOrCreateCircuit(upstreamName string) *CircuitBreaker {
	// Fast path: check if circuit exists with read lock
	t.mu.RLock()
	cb, exists := t.circuits[upstreamName]
	t.mu.RUnlock()

	if exists {
		return cb
	}

	// Slow path: create circuit with write lock
	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring write lock
	if cb, exists = t.circuits[upstreamName]; exists {
		return cb
	}

	// Create new circuit breaker
	cb = NewCircuitBreaker(upstreamName, t.config, t.logger)
	t.circuits[upstreamName] = cb

	if t.logger != nil {
		t.logger.Debug().
			Str("upstream", upstreamName).
			Msg("created circuit breaker")
	}

	return cb
}

// IsHealthyFunc returns a closure that checks if an upstream is healthy.
// This closure is designed to be wired into the transport layer's upstream-availability check.
//
// An upstream is considered healthy if its circuit is:
//   - CLOSED: Normal operation, requests flow through
//   - HALF-OPEN: Testing recovery, probe requests are allowed
//
// An upstream is unhealthy only if the circuit is OPEN.
func (t *Tracker) IsHealthyFunc(upstreamName string) func() bool {
	return func() bool {
		cb := t.GetOrCreateCircuit(upstreamName)
		// OPEN = unhealthy, CLOSED/HALF-OPEN = healthy
		return cb.State() != StateOpen
	}
}

// GetState returns the current state of an upstream's circuit breaker.
// Returns StateClosed if no circuit exists for the upstream (healthy by default).
func (t *Tracker) GetState(upstreamName string) State {
	t.mu.RLock()
	cb, exists := t.circuits[upstreamName]
	t.mu.RUnlock()

	if !exists {
		return StateClosed
	}
	return cb.State()
}

// RecordSuccess records a successful operation for an upstream.
func (t *Tracker) RecordSuccess(upstreamName string) {
	cb := t.GetOrCreateCircuit(upstreamName)
	cb.ReportSuccess()

	if t.logger != nil {
		t.logger.Debug().
			Str("upstream", upstreamName).
			Str("state", cb.State().String()).
			Msg("recorded success")
	}
}

// RecordFailure records a failed operation for an upstream.
func (t *Tracker) RecordFailure(upstreamName string, err error) {
	cb := t.GetOrCreateCircuit(upstreamName)
	cb.ReportFailure(err)

	if t.logger != nil {
		t.logger.Debug().
			Str("upstream", upstreamName).
			Str("state", cb.State().String()).
			Err(err).
			Msg("recorded failure")
	}
}

// AllStates returns a snapshot of all upstream circuit states.
// Useful for debugging and monitoring.
func (t *Tracker) AllStates() map[string]State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	states := make(map[string]State, len(t.circuits))
	for name, cb := range t.circuits {
		states[name] = cb.State()
	}
	return states
}
