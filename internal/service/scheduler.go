package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	"github.com/dispatchlab/notify-gateway/internal/observability"
	"go.uber.org/zap"
)

// ColdSource drains due cold-queue entries.
type ColdSource interface {
	PopDue(ctx context.Context) ([]domain.Notification, error)
	Schedule(ctx context.Context, n *domain.Notification, delay time.Duration) error
}

// Admitter is the admission pipeline a resurrected notification re-enters.
type Admitter interface {
	Dispatch(ctx context.Context, n *domain.Notification) (duplicate bool, err error)
}

// DedupForgetter drops a dedup fingerprint so a deliberate re-submission is
// not suppressed by its own first attempt.
type DedupForgetter interface {
	Forget(ctx context.Context, recipient string, channel domain.Channel, contentID string) error
}

// Scheduler periodically re-submits cold-queue entries for delivery.
// Re-submission goes through the same admission pipeline as a first send:
// the scheduler forgets the entry's own dedup fingerprint, resets the record
// to QUEUED, then dispatches. Rate limiting still applies; a retry that does
// not fit the window goes back to the cold queue instead of being lost.
type Scheduler struct {
	coldQueue ColdSource
	gateway   Admitter
	dedup     DedupForgetter
	state     StatusUpdater
	metrics   *observability.Metrics
	logger    *zap.Logger
	interval  time.Duration
	delay     time.Duration
}

func NewScheduler(
	coldQueue ColdSource,
	gateway Admitter,
	dedup DedupForgetter,
	state StatusUpdater,
	metrics *observability.Metrics,
	logger *zap.Logger,
	interval time.Duration,
	delay time.Duration,
) (*Scheduler, error) {
	if coldQueue == nil || gateway == nil || dedup == nil || state == nil {
		return nil, fmt.Errorf("scheduler dependencies are incomplete")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}

	return &Scheduler{
		coldQueue: coldQueue,
		gateway:   gateway,
		dedup:     dedup,
		state:     state,
		metrics:   metrics,
		logger:    logger,
		interval:  interval,
		delay:     delay,
	}, nil
}

// Start scans immediately, then on every tick, until the context ends.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

func (s *Scheduler) scan(ctx context.Context) {
	due, err := s.coldQueue.PopDue(ctx)
	if err != nil {
		// Entries already removed from the cold queue arrive alongside the
		// error. They no longer exist anywhere else, so they must be
		// re-submitted now; only the remainder waits for the next tick.
		s.logger.Error("cold queue scan failed", zap.Error(err))
	}
	if len(due) == 0 {
		return
	}

	s.logger.Info("re-submitting cold queue entries", zap.Int("count", len(due)))
	for i := range due {
		s.resubmit(ctx, &due[i])
	}
}

func (s *Scheduler) resubmit(ctx context.Context, n *domain.Notification) {
	// Move the record back to QUEUED so the worker picks it up again; the
	// transition is recorded as an attempt like any other.
	err := s.state.UpdateStatus(ctx, n.ID, domain.StatusQueued, "re-submitted from cold queue", "")
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn("dropping cold retry for unknown notification",
			zap.String("notificationId", n.ID),
		)
		return
	}
	if err != nil {
		s.logger.Error("failed to requeue cold retry, rescheduling",
			zap.String("notificationId", n.ID),
			zap.Error(err),
		)
		s.reschedule(ctx, n)
		return
	}

	// The fingerprint from the original send may still be live; without this
	// the retry would suppress itself as a duplicate.
	if err := s.dedup.Forget(ctx, n.Recipient, n.Channel, n.ContentIdentifier()); err != nil {
		s.logger.Error("failed to refresh dedup fingerprint, rescheduling",
			zap.String("notificationId", n.ID),
			zap.Error(err),
		)
		s.reschedule(ctx, n)
		return
	}

	duplicate, err := s.gateway.Dispatch(ctx, n)
	var rateLimited *domain.RateLimitError
	if errors.As(err, &rateLimited) {
		s.logger.Warn("cold retry rate limited, rescheduling",
			zap.String("notificationId", n.ID),
			zap.String("channel", n.Channel.String()),
		)
		s.reschedule(ctx, n)
		return
	}
	if err != nil {
		s.logger.Error("failed to re-dispatch cold retry, rescheduling",
			zap.String("notificationId", n.ID),
			zap.Error(err),
		)
		s.reschedule(ctx, n)
		return
	}
	if duplicate {
		// A newer identical notification was admitted between the failure and
		// this retry; the retry is redundant.
		s.logger.Info("cold retry suppressed as duplicate",
			zap.String("notificationId", n.ID),
		)
		if err := s.state.UpdateStatus(ctx, n.ID, domain.StatusFailed,
			"cold retry suppressed as duplicate", ""); err != nil {
			s.logger.Error("failed to finalize suppressed cold retry",
				zap.String("notificationId", n.ID),
				zap.Error(err),
			)
		}
		return
	}

	s.logger.Info("cold retry re-submitted",
		zap.String("notificationId", n.ID),
		zap.String("channel", n.Channel.String()),
	)
}

func (s *Scheduler) reschedule(ctx context.Context, n *domain.Notification) {
	if err := s.coldQueue.Schedule(ctx, n, s.delay); err != nil {
		s.logger.Error("failed to reschedule cold retry",
			zap.String("notificationId", n.ID),
			zap.Error(err),
		)
		return
	}
	if s.metrics != nil {
		s.metrics.ColdQueueScheduled.WithLabelValues(n.Channel.String()).Inc()
	}
}
