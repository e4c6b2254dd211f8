package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/ledgerops/resilience"
)

func ExampleNewAdmissionGate() {
	gate, err := resilience.NewAdmissionGate(resilience.AdmissionConfig{
		PermitLimit: 2,
		Window:      time.Minute,
	})
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	for range 3 {
		d, err := gate.Acquire(ctx, "sub:alice")
		fmt.Println(d.Outcome, err != nil)
	}
	// Output:
	// admit false
	// admit false
	// reject true
}

func ExampleDo() {
	r := resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		OnRetry: func(attempt int, err error, _ time.Duration) {
			fmt.Printf("attempt %d failed: %v\n", attempt, err)
		},
	})

	calls := 0
	total, err := resilience.Do(context.Background(), r, func(context.Context) (float64, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("store timeout")
		}
		return 150.25, nil
	})
	fmt.Println(total, err)
	// Output:
	// attempt 1 failed: store timeout
	// attempt 2 failed: store timeout
	// 150.25 <nil>
}

func ExampleCircuitBreaker_State() {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Minute,
	})

	fail := func(context.Context) error { return errors.New("redis unreachable") }
	_ = cb.Execute(context.Background(), fail)
	fmt.Println(cb.State())
	_ = cb.Execute(context.Background(), fail)
	fmt.Println(cb.State())
	fmt.Println(cb.Execute(context.Background(), fail) == resilience.ErrCircuitOpen)
	// Output:
	// closed
	// open
	// true
}
