package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed lets every call through and counts consecutive failures.
	StateClosed State = iota
	// StateOpen fails every call with ErrCircuitOpen.
	StateOpen
	// StateHalfOpen lets a limited number of probes through.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	// Default: 5
	MaxFailures int

	// ResetTimeout is how long the circuit stays open before probing.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// HalfOpenMaxRequests is the number of concurrent probes allowed while
	// half-open. The first successful probe closes the circuit.
	// Default: 1
	HalfOpenMaxRequests int

	// OnStateChange is called after each transition, outside the breaker's
	// lock, so it may call back into the breaker.
	OnStateChange func(from, to State)

	// IsFailure classifies results.
	// Default: all non-nil errors are failures.
	IsFailure func(err error) bool

	// Clock is the time source.
	// Default: the wall clock
	Clock clock.Clock
}

type transition struct{ from, to State }

// CircuitBreaker fails calls fast while a dependency is unhealthy.
//
// Each state period has a generation number. A call records its result
// only if the generation it started in is still current, so a slow call
// that began before the circuit opened cannot close or re-open it later.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu         sync.Mutex
	state      State
	generation uint64
	failures   int
	openedAt   time.Time
	probes     int
	rejected   int64
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	return &CircuitBreaker{config: config}
}

// Execute runs op if the circuit admits it and records the result.
// When the circuit is open it returns ErrCircuitOpen without calling op.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	gen, err := cb.admit()
	if err != nil {
		return err
	}
	err = op(ctx)
	cb.record(gen, err)
	return err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	tr := cb.refreshLocked()
	s := cb.state
	cb.mu.Unlock()
	cb.notify(tr)
	return s
}

// Reset closes the circuit and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	tr := cb.moveLocked(StateClosed)
	cb.mu.Unlock()
	cb.notify(tr)
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	var trs []transition
	if tr := cb.refreshLocked(); tr != nil {
		trs = append(trs, *tr)
	}

	var err error
	switch cb.state {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if cb.probes >= cb.config.HalfOpenMaxRequests {
			err = ErrCircuitOpen
		} else {
			cb.probes++
		}
	}
	if err != nil {
		cb.rejected++
	}
	gen := cb.generation
	cb.mu.Unlock()

	for i := range trs {
		cb.notify(&trs[i])
	}
	return gen, err
}

func (cb *CircuitBreaker) record(gen uint64, err error) {
	failed := cb.config.IsFailure(err)

	cb.mu.Lock()
	if gen != cb.generation {
		cb.mu.Unlock()
		return
	}
	var tr *transition
	switch cb.state {
	case StateClosed:
		if !failed {
			cb.failures = 0
			break
		}
		cb.failures++
		if cb.failures >= cb.config.MaxFailures {
			tr = cb.moveLocked(StateOpen)
		}
	case StateHalfOpen:
		if failed {
			tr = cb.moveLocked(StateOpen)
		} else {
			tr = cb.moveLocked(StateClosed)
		}
	}
	cb.mu.Unlock()
	cb.notify(tr)
}

// refreshLocked moves an open circuit to half-open once ResetTimeout has
// passed since it opened.
func (cb *CircuitBreaker) refreshLocked() *transition {
	if cb.state == StateOpen && cb.config.Clock.Since(cb.openedAt) >= cb.config.ResetTimeout {
		return cb.moveLocked(StateHalfOpen)
	}
	return nil
}

// moveLocked starts a new state period. It returns nil when to is the
// current state.
func (cb *CircuitBreaker) moveLocked(to State) *transition {
	from := cb.state
	cb.generation++
	cb.state = to
	cb.failures = 0
	cb.probes = 0
	if to == StateOpen {
		cb.openedAt = cb.config.Clock.Now()
	}
	if from == to {
		return nil
	}
	return &transition{from: from, to: to}
}

func (cb *CircuitBreaker) notify(tr *transition) {
	if tr != nil && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(tr.from, tr.to)
	}
}

// Metrics returns current circuit breaker metrics.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	tr := cb.refreshLocked()
	m := CircuitBreakerMetrics{
		State:    cb.state,
		Failures: cb.failures,
		OpenedAt: cb.openedAt,
		Rejected: cb.rejected,
	}
	cb.mu.Unlock()
	cb.notify(tr)
	return m
}

// CircuitBreakerMetrics contains circuit breaker statistics.
type CircuitBreakerMetrics struct {
	State    State
	Failures int       // consecutive failures in the current closed period
	OpenedAt time.Time // zero until the circuit first opens
	Rejected int64     // calls refused with ErrCircuitOpen
}
