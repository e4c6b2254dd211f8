package resilience

import (
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrCircuitOpen", ErrCircuitOpen},
		{"ErrAdmissionRejected", ErrAdmissionRejected},
		{"ErrAdmissionTimeout", ErrAdmissionTimeout},
		{"ErrBulkheadFull", ErrBulkheadFull},
		{"ErrTimeout", ErrTimeout},
		{"ErrInvalidConfig", ErrInvalidConfig},
	}

	seen := make(map[string]bool)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Fatalf("%s is nil", tt.name)
			}
			msg := tt.err.Error()
			if msg == "" {
				t.Errorf("%s has empty message", tt.name)
			}
			if seen[msg] {
				t.Errorf("%s message %q is not unique", tt.name, msg)
			}
			seen[msg] = true
		})
	}
}
