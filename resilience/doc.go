// Package resilience provides the fault-handling patterns of the ledger
// service.
//
// # Patterns
//
//   - Retry: reruns a failed operation on a fixed backoff schedule
//     (200ms, 400ms, 800ms by default). A classifier decides which errors
//     are retried; the default retries all of them.
//
//   - Admission Gate: per-partition fixed-window admission with a bounded
//     FIFO wait queue. Requests are admitted, queued until the next window,
//     or rejected with a retry-after hint.
//
//   - Circuit Breaker: stops calling a failing dependency after a threshold
//     is reached.
//
//   - Bulkhead: limits concurrent operations against a shared dependency.
//
//   - Timeout: bounds each attempt.
//
// # Usage
//
//	retry := resilience.NewRetry(resilience.DefaultRetryConfig())
//	entries, err := resilience.Do(ctx, retry, func(ctx context.Context) ([]Entry, error) {
//	    return store.List(ctx)
//	})
//
//	gate, _ := resilience.NewAdmissionGate(resilience.AdmissionConfig{
//	    PermitLimit: 2,
//	    Window:      time.Minute,
//	    QueueLimit:  1,
//	})
//	decision, err := gate.Acquire(ctx, clientIP)
//	if errors.Is(err, resilience.ErrAdmissionRejected) {
//	    // respond 429 with decision.RetryAfter
//	}
//
//	executor := resilience.NewExecutor(
//	    resilience.WithCircuitBreaker(cb),
//	    resilience.WithTimeout(250*time.Millisecond),
//	)
package resilience
