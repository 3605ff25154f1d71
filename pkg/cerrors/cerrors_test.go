package cerrors

import (
	"testing"

	"github.com/palantir/stacktrace"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      Error
		expected string
	}{
		{
			name:     "reason only",
			err:      Error{ErrorCode: ErrorTypeGeneric, Reason: "boom"},
			expected: "boom",
		},
		{
			name:     "with target",
			err:      Error{ErrorCode: ErrorTypeTargetSelection, Target: "pay-1", Reason: "boom"},
			expected: "target: 'pay-1', boom",
		},
		{
			name:     "with phase",
			err:      Error{ErrorCode: ErrorTypeActionExecution, Phase: "ChaosInject", Reason: "boom"},
			expected: "[ChaosInject]: boom",
		},
		{
			name:     "with phase and target",
			err:      Error{ErrorCode: ErrorTypeActionExecution, Phase: "ChaosInject", Target: "pay-1", Reason: "boom"},
			expected: "[ChaosInject]: target: 'pay-1', boom",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Error(); got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestGetRootCauseAndErrorCode(t *testing.T) {
	root := Error{ErrorCode: ErrorTypeTimeout, Reason: "probe timed out"}
	wrapped := stacktrace.Propagate(root, "checking dependency")

	cause, code := GetRootCauseAndErrorCode(wrapped)
	if code != ErrorTypeTimeout {
		t.Errorf("expected code %v, got %v", ErrorTypeTimeout, code)
	}
	if cause != "probe timed out" {
		t.Errorf("expected the root cause to survive wrapping, got %q", cause)
	}
	if !Is(wrapped, ErrorTypeTimeout) {
		t.Error("Is must match the root cause's code")
	}
}
