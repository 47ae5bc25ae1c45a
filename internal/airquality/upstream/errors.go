package upstream

import "errors"

var (
	// ErrUpstreamUnavailable marks a lookup that produced no usable reading:
	// transport failure, non-2xx answer or an undecodable body.
	ErrUpstreamUnavailable = errors.New("air quality upstream unavailable")

	// ErrMissingCredential is returned when no API key is configured.
	ErrMissingCredential = errors.New("air quality api key is not configured")

	// ErrCircuitOpen is returned while the circuit breaker rejects calls.
	ErrCircuitOpen = errors.New("circuit breaker open")
)
