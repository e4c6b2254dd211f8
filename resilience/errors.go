package resilience

import "errors"

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrAdmissionRejected is returned when a partition's wait queue is full.
	ErrAdmissionRejected = errors.New("resilience: admission rejected")

	// ErrAdmissionTimeout is returned when a queued request waits longer
	// than the gate's MaxWait.
	ErrAdmissionTimeout = errors.New("resilience: admission wait timed out")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrInvalidConfig is returned for configurations that cannot work.
	ErrInvalidConfig = errors.New("resilience: invalid config")
)
