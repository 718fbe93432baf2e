package sender

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	"go.uber.org/zap"
)

// scriptedSender returns the scripted errors in order, then succeeds.
type scriptedSender struct {
	errs  []error
	calls int
}

func (s *scriptedSender) Channel() domain.Channel { return domain.ChannelEmail }

func (s *scriptedSender) Send(ctx context.Context, recipient, content, locale string, metadata Metadata) (string, error) {
	defer func() { s.calls++ }()
	if s.calls < len(s.errs) && s.errs[s.calls] != nil {
		return "", s.errs[s.calls]
	}
	return "msg-1", nil
}

func newTestResilient(next Sender, maxAttempts int) Sender {
	return WithResilience(next, RetryConfig{
		MaxAttempts: maxAttempts,
		Delay:       0,
		Timeout:     time.Second,
	}, zap.NewNop())
}

func TestResilienceRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	inner := &scriptedSender{errs: []error{
		newSendError(KindSendFailed, 503, "blip"),
		newSendError(KindProviderRateLimited, 429, "slow down"),
	}}
	s := newTestResilient(inner, 3)

	id, err := s.Send(context.Background(), "a@b.co", "hi", "en", nil)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if id != "msg-1" {
		t.Fatalf("Send() id = %q", id)
	}
	if inner.calls != 3 {
		t.Fatalf("inner sender called %d times, want 3", inner.calls)
	}
}

func TestResilienceDoesNotRetryPermanentFailures(t *testing.T) {
	t.Parallel()

	inner := &scriptedSender{errs: []error{
		newSendError(KindInvalidRecipient, 0, "bad address"),
	}}
	s := newTestResilient(inner, 3)

	_, err := s.Send(context.Background(), "nope", "hi", "en", nil)
	var se *SendError
	if !errors.As(err, &se) || se.Kind != KindInvalidRecipient {
		t.Fatalf("Send() error = %v, want invalid recipient", err)
	}
	if inner.calls != 1 {
		t.Fatalf("inner sender called %d times, want 1", inner.calls)
	}
}

func TestResilienceExhaustsAttempts(t *testing.T) {
	t.Parallel()

	inner := &scriptedSender{errs: []error{
		newSendError(KindSendFailed, 503, "down"),
		newSendError(KindSendFailed, 503, "down"),
		newSendError(KindSendFailed, 503, "down"),
	}}
	s := newTestResilient(inner, 3)

	_, err := s.Send(context.Background(), "a@b.co", "hi", "en", nil)
	if err == nil {
		t.Fatal("Send() should fail after exhausting attempts")
	}
	if !IsTransient(err) {
		t.Fatalf("exhausted error should stay transient, got %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("inner sender called %d times, want 3", inner.calls)
	}
}

func TestResilienceOpensCircuit(t *testing.T) {
	t.Parallel()

	inner := &scriptedSender{errs: []error{
		newSendError(KindSendFailed, 503, "down"),
		newSendError(KindSendFailed, 503, "down"),
		newSendError(KindSendFailed, 503, "down"),
		newSendError(KindSendFailed, 503, "down"),
		newSendError(KindSendFailed, 503, "down"),
		newSendError(KindSendFailed, 503, "down"),
	}}
	s := newTestResilient(inner, 1)

	for i := 0; i < 5; i++ {
		if _, err := s.Send(context.Background(), "a@b.co", "hi", "en", nil); err == nil {
			t.Fatalf("send %d should fail", i+1)
		}
	}

	_, err := s.Send(context.Background(), "a@b.co", "hi", "en", nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Send() error = %v, want circuit open", err)
	}
}
