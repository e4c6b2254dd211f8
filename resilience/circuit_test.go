package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

var errRedisDown = errors.New("redis unreachable")

func failing(context.Context) error    { return errRedisDown }
func succeeding(context.Context) error { return nil }

func newTestBreaker(maxFailures int) (*CircuitBreaker, *clock.Mock) {
	mock := clock.NewMock()
	return NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  maxFailures,
		ResetTimeout: 30 * time.Second,
		Clock:        mock,
	}), mock
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
	if cb.config.MaxFailures != 5 {
		t.Errorf("MaxFailures = %d, want 5", cb.config.MaxFailures)
	}
	if cb.config.ResetTimeout != 30*time.Second {
		t.Errorf("ResetTimeout = %v, want 30s", cb.config.ResetTimeout)
	}
	if cb.config.HalfOpenMaxRequests != 1 {
		t.Errorf("HalfOpenMaxRequests = %d, want 1", cb.config.HalfOpenMaxRequests)
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := cb.Execute(ctx, failing); err != errRedisDown {
			t.Fatalf("Execute() #%d = %v, want %v", i, err, errRedisDown)
		}
		want := StateClosed
		if i == 3 {
			want = StateOpen
		}
		if got := cb.State(); got != want {
			t.Errorf("after %d failures state = %v, want %v", i, got, want)
		}
	}

	err := cb.Execute(ctx, func(context.Context) error {
		t.Error("op called while open")
		return nil
	})
	if err != ErrCircuitOpen {
		t.Errorf("Execute() while open = %v, want ErrCircuitOpen", err)
	}
	if m := cb.Metrics(); m.Rejected != 1 || m.OpenedAt.IsZero() {
		t.Errorf("Metrics() = %+v, want 1 rejection and OpenedAt set", m)
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	_ = cb.Execute(ctx, failing)
	_ = cb.Execute(ctx, succeeding)
	_ = cb.Execute(ctx, failing)
	_ = cb.Execute(ctx, failing)

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed (failures were not consecutive)", cb.State())
	}
	if got := cb.Metrics().Failures; got != 2 {
		t.Errorf("Failures = %d, want 2", got)
	}
}

func TestCircuitBreaker_Recovery(t *testing.T) {
	tests := []struct {
		name  string
		probe func(context.Context) error
		want  State
	}{
		{"probe succeeds", succeeding, StateClosed},
		{"probe fails", failing, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, mock := newTestBreaker(1)
			ctx := context.Background()
			_ = cb.Execute(ctx, failing)

			mock.Add(29 * time.Second)
			if cb.State() != StateOpen {
				t.Fatalf("state = %v, want open before ResetTimeout", cb.State())
			}
			mock.Add(time.Second)
			if cb.State() != StateHalfOpen {
				t.Fatalf("state = %v, want half-open", cb.State())
			}

			_ = cb.Execute(ctx, tt.probe)
			if got := cb.State(); got != tt.want {
				t.Errorf("state after probe = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCircuitBreaker_FailedProbeRestartsTimeout(t *testing.T) {
	cb, mock := newTestBreaker(1)
	ctx := context.Background()
	_ = cb.Execute(ctx, failing)

	mock.Add(30 * time.Second)
	_ = cb.Execute(ctx, failing)

	mock.Add(20 * time.Second)
	if cb.State() != StateOpen {
		t.Errorf("state = %v, want open until a full ResetTimeout after the failed probe", cb.State())
	}
	mock.Add(10 * time.Second)
	if cb.State() != StateHalfOpen {
		t.Errorf("state = %v, want half-open", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenAdmitsOneProbe(t *testing.T) {
	cb, mock := newTestBreaker(2)
	ctx := context.Background()
	_ = cb.Execute(ctx, failing)
	_ = cb.Execute(ctx, failing)
	mock.Add(30 * time.Second)

	probe := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(ctx, func(context.Context) error {
			close(started)
			<-probe
			return nil
		})
	}()
	<-started

	if err := cb.Execute(ctx, succeeding); err != ErrCircuitOpen {
		t.Errorf("second half-open call = %v, want ErrCircuitOpen", err)
	}
	close(probe)
	if err := <-done; err != nil {
		t.Errorf("probe error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed after successful probe", cb.State())
	}
}

func TestCircuitBreaker_StaleResultIgnored(t *testing.T) {
	cb, _ := newTestBreaker(1)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// The circuit opens while the slow call is in flight.
	_ = cb.Execute(ctx, failing)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	close(release)
	<-done
	if cb.State() != StateOpen {
		t.Errorf("state = %v, want open: a call from the closed period must not close the circuit", cb.State())
	}
}

func TestCircuitBreaker_IsFailure(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return err != nil && !errors.Is(err, context.Canceled) },
	})

	_ = cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed: cancellation is not a failure", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []string
	)
	mock := clock.NewMock()
	var cb *CircuitBreaker
	cb = NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		Clock:        mock,
		OnStateChange: func(from, to State) {
			// Runs outside the lock.
			_ = cb.State()
			mu.Lock()
			transitions = append(transitions, from.String()+"->"+to.String())
			mu.Unlock()
		},
	})
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	mock.Add(time.Second)
	_ = cb.Execute(ctx, succeeding)
	_ = cb.Execute(ctx, failing)
	cb.Reset()

	want := []string{"closed->open", "open->half-open", "half-open->closed", "closed->open", "open->closed"}
	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(1)
	_ = cb.Execute(context.Background(), failing)

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("state after Reset = %v, want closed", cb.State())
	}
	if err := cb.Execute(context.Background(), succeeding); err != nil {
		t.Errorf("Execute() after Reset = %v", err)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
