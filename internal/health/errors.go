package health

import "errors"

// Sentinel errors for upstream health tracking.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open and rejecting requests.
	ErrCircuitOpen = errors.New("health: circuit breaker is open")

	// ErrHealthCheckFailed is returned when a synthetic health check fails.
	ErrHealthCheckFailed = errors.New("health: health check failed")

	// ErrUpstreamUnhealthy is returned when the upstream is marked as unhealthy.
	ErrUpstreamUnhealthy = errors.New("health: upstream is unhealthy")
)
