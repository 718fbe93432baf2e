package sender

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"invalid request", newSendError(KindInvalidRequest, 400, "bad"), false},
		{"invalid recipient", newSendError(KindInvalidRecipient, 0, "bad"), false},
		{"configuration", newSendError(KindConfiguration, 401, "bad"), false},
		{"provider rate limited", newSendError(KindProviderRateLimited, 429, "slow down"), true},
		{"send failed", newSendError(KindSendFailed, 503, "oops"), true},
		{"wrapped send error", fmt.Errorf("attempt: %w", newSendError(KindConfiguration, 0, "bad")), false},
		{"unknown error", errors.New("socket closed"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsTransient(tt.err); got != tt.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
