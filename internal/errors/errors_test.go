package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Message(t *testing.T) {
	cause := stderrors.New("exec: \"cargo\": not found")
	err := New(ProcessError, "failed to spawn build", cause)

	if !strings.Contains(err.Error(), "[PROCESS_ERROR]") {
		t.Errorf("missing code in %q", err.Error())
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("missing cause in %q", err.Error())
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
	if len(err.SuggestedFixes) == 0 {
		t.Error("expected default fixes for ProcessError")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"direct", Newf(NotFound, "no definition %d", 7), NotFound},
		{"wrapped", fmt.Errorf("query: %w", Newf(InvariantViolation, "gap")), InvariantViolation},
		{"plain", stderrors.New("boom"), InternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %s, want %s", got, tt.want)
			}
		})
	}
	if Is(nil, InternalError) {
		t.Error("nil error should not match any code")
	}
}
