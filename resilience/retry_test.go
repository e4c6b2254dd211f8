package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewRetry_Defaults(t *testing.T) {
	cfg := NewRetry(RetryConfig{}).Config()

	if cfg.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d, want 4", cfg.MaxAttempts)
	}
	if cfg.InitialDelay != 200*time.Millisecond {
		t.Errorf("InitialDelay = %v, want 200ms", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 30*time.Second {
		t.Errorf("MaxDelay = %v, want 30s", cfg.MaxDelay)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("Multiplier = %v, want 2", cfg.Multiplier)
	}
	if cfg.RetryIf == nil || !cfg.RetryIf(errors.New("x")) {
		t.Error("default RetryIf does not retry plain errors")
	}
}

func TestRetry_Execute(t *testing.T) {
	errTransient := errors.New("connection reset")
	errPermanent := errors.New("constraint violation")

	tests := []struct {
		name         string
		failures     int // attempts that fail before one succeeds
		err          error
		retryIf      func(error) bool
		wantErr      error
		wantAttempts int
	}{
		{"first attempt succeeds", 0, nil, nil, nil, 1},
		{"succeeds on last attempt", 2, errTransient, nil, nil, 3},
		{"exhausted returns last error", 10, errTransient, nil, errTransient, 3},
		{"classifier rejects", 10, errPermanent, func(err error) bool { return err == errTransient }, errPermanent, 1},
		{"classifier accepts", 10, errTransient, func(err error) bool { return err == errTransient }, errTransient, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, RetryIf: tt.retryIf})

			attempts := 0
			err := r.Execute(context.Background(), func(context.Context) error {
				attempts++
				if attempts <= tt.failures {
					return tt.err
				}
				return nil
			})
			if err != tt.wantErr {
				t.Errorf("Execute() error = %v, want %v", err, tt.wantErr)
			}
			if attempts != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", attempts, tt.wantAttempts)
			}
		})
	}
}

func TestRetry_CancelledDuringBackoff(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 10, InitialDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	err := r.Execute(ctx, func(context.Context) error {
		attempts++
		return errors.New("store down")
	})

	if err != context.Canceled {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if time.Since(start) > time.Second {
		t.Error("backoff did not stop on cancellation")
	}
}

func TestRetry_OnRetry(t *testing.T) {
	type call struct {
		attempt int
		delay   time.Duration
	}
	var calls []call
	errDown := errors.New("store down")

	r := NewRetry(RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			if err != errDown {
				t.Errorf("OnRetry err = %v, want %v", err, errDown)
			}
			calls = append(calls, call{attempt, delay})
		},
	})
	_ = r.Execute(context.Background(), func(context.Context) error { return errDown })

	want := []call{{1, time.Millisecond}, {2, 2 * time.Millisecond}}
	if len(calls) != len(want) {
		t.Fatalf("OnRetry calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("OnRetry call %d = %+v, want %+v", i, calls[i], want[i])
		}
	}
}

func TestRetry_CalculateDelay(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RetryConfig
		attempt int
		want    time.Duration
	}{
		{"exponential", RetryConfig{InitialDelay: 10 * time.Millisecond, Strategy: BackoffExponential}, 3, 40 * time.Millisecond},
		{"linear", RetryConfig{InitialDelay: 10 * time.Millisecond, Strategy: BackoffLinear}, 3, 30 * time.Millisecond},
		{"constant", RetryConfig{InitialDelay: 10 * time.Millisecond, Strategy: BackoffConstant}, 3, 10 * time.Millisecond},
		{"capped", RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 10}, 5, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewRetry(tt.cfg).calculateDelay(tt.attempt); got != tt.want {
				t.Errorf("calculateDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestDefaultRetryConfig_Delays(t *testing.T) {
	r := NewRetry(DefaultRetryConfig())
	want := []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}
	for i, w := range want {
		if got := r.calculateDelay(i + 1); got != w {
			t.Errorf("calculateDelay(%d) = %v, want %v", i+1, got, w)
		}
	}
	if r.Config().MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d, want 4", r.Config().MaxAttempts)
	}
}

func TestDefaultRetryConfig_AppliesEveryDelay(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond

	var delays []time.Duration
	cfg.OnRetry = func(_ int, _ error, d time.Duration) { delays = append(delays, d) }

	calls := 0
	errStoreDown := errors.New("store down")
	err := NewRetry(cfg).Execute(context.Background(), func(context.Context) error {
		calls++
		return errStoreDown
	})
	if err != errStoreDown {
		t.Errorf("Execute() error = %v, want %v", err, errStoreDown)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i+1, delays[i], want[i])
		}
	}
}

func TestRetry_JitterBounded(t *testing.T) {
	r := NewRetry(RetryConfig{InitialDelay: 100 * time.Millisecond, Strategy: BackoffConstant, Jitter: true})
	for range 50 {
		d := r.calculateDelay(1)
		if d < 100*time.Millisecond || d >= 125*time.Millisecond {
			t.Fatalf("jittered delay = %v, want [100ms, 125ms)", d)
		}
	}
}

func TestRetry_CancelledDuringAttempt(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := r.Execute(ctx, func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("store read aborted")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want %v", err, context.Canceled)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestDo(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond})

	attempts := 0
	v, err := Do(context.Background(), r, func(context.Context) ([]string, error) {
		attempts++
		if attempts == 1 {
			return []string{"partial"}, errors.New("timeout")
		}
		return []string{"a", "b"}, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if len(v) != 2 || attempts != 2 {
		t.Errorf("Do() = %v after %d attempts, want [a b] after 2", v, attempts)
	}

	want := errors.New("down")
	v, err = Do(context.Background(), r, func(context.Context) ([]string, error) {
		return []string{"partial"}, want
	})
	if err != want || v != nil {
		t.Errorf("Do() = %v, %v; want nil, %v", v, err, want)
	}
}
