package health

import (
	"strings"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrCheckFailed", ErrCheckFailed},
		{"ErrCheckTimeout", ErrCheckTimeout},
		{"ErrProbePanic", ErrProbePanic},
		{"ErrCheckerNotFound", ErrCheckerNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Fatalf("%s is nil", tt.name)
			}
			if !strings.HasPrefix(tt.err.Error(), "health: ") {
				t.Errorf("%s = %q, want health: prefix", tt.name, tt.err.Error())
			}
		})
	}
}
