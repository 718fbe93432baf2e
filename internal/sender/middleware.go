package sender

import (
	"context"
	"time"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	"go.uber.org/zap"
)

// RetryConfig controls the fast in-process retry ladder applied around a
// sender. Retries only cover transient failures; anything else fails on the
// first attempt.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	Timeout     time.Duration
}

type resilientSender struct {
	next    Sender
	cfg     RetryConfig
	breaker *circuitBreaker
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// WithResilience wraps a sender with a circuit breaker, per-attempt timeout
// and transient-only retries.
func WithResilience(next Sender, cfg RetryConfig, logger *zap.Logger) Sender {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &resilientSender{
		next:    next,
		cfg:     cfg,
		breaker: newCircuitBreaker(5, 0.6, 30*time.Second),
		logger:  logger,
		sleep:   sleepContext,
	}
}

func (s *resilientSender) Channel() domain.Channel { return s.next.Channel() }

func (s *resilientSender) Send(ctx context.Context, recipient, content, locale string, metadata Metadata) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if !s.breaker.allow() {
			return "", ErrCircuitOpen
		}

		providerID, err := s.sendOnce(ctx, recipient, content, locale, metadata)
		if err == nil {
			s.breaker.recordSuccess()
			return providerID, nil
		}

		s.breaker.recordFailure()
		lastErr = err

		if !IsTransient(err) {
			return "", err
		}
		if attempt == s.cfg.MaxAttempts {
			break
		}

		s.logger.Warn("send attempt failed, retrying",
			zap.String("channel", s.next.Channel().String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if err := s.sleep(ctx, s.cfg.Delay); err != nil {
			return "", err
		}
	}

	return "", lastErr
}

func (s *resilientSender) sendOnce(ctx context.Context, recipient, content, locale string, metadata Metadata) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.next.Send(attemptCtx, recipient, content, locale, metadata)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
