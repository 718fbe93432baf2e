// Package service wires admission, delivery, scheduling and reconciliation
// around the durable notification record.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	"github.com/dispatchlab/notify-gateway/internal/observability"
	"github.com/dispatchlab/notify-gateway/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RateLimiter gates admission per (recipient, channel).
type RateLimiter interface {
	Allow(ctx context.Context, channel domain.Channel, recipient string) bool
	ResetTime(ctx context.Context, channel domain.Channel, recipient string) time.Duration
}

// Deduplicator suppresses repeats of identical content within a window.
type Deduplicator interface {
	IsDuplicate(ctx context.Context, recipient string, channel domain.Channel, contentID string) bool
}

// RecordStore is the admission-side slice of the notification repository.
type RecordStore interface {
	CreateIfAbsent(ctx context.Context, r *domain.NotificationRecord) error
}

// Publisher hands admitted notifications to the delivery queue.
type Publisher interface {
	Publish(ctx context.Context, queueName string, msg queue.NotificationMessage) error
}

// Gateway is the admission pipeline: validate, rate-limit, deduplicate,
// persist the QUEUED record, then enqueue for asynchronous delivery.
type Gateway struct {
	limiter       RateLimiter
	dedup         Deduplicator
	records       RecordStore
	publisher     Publisher
	metrics       *observability.Metrics
	logger        *zap.Logger
	defaultLocale string
}

func NewGateway(
	limiter RateLimiter,
	dedup Deduplicator,
	records RecordStore,
	publisher Publisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
	defaultLocale string,
) (*Gateway, error) {
	if limiter == nil || dedup == nil || records == nil || publisher == nil {
		return nil, fmt.Errorf("gateway dependencies are incomplete")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(defaultLocale) == "" {
		defaultLocale = "en"
	}

	return &Gateway{
		limiter:       limiter,
		dedup:         dedup,
		records:       records,
		publisher:     publisher,
		metrics:       metrics,
		logger:        logger,
		defaultLocale: defaultLocale,
	}, nil
}

// Dispatch admits one notification. It returns duplicate=true when the
// request was suppressed by deduplication; that is a success from the
// caller's point of view, just one with nothing left to do.
func (g *Gateway) Dispatch(ctx context.Context, n *domain.Notification) (duplicate bool, err error) {
	if n == nil {
		return false, fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}
	if err := n.Validate(); err != nil {
		return false, err
	}

	if strings.TrimSpace(n.Locale) == "" {
		n.Locale = g.defaultLocale
	}
	if strings.TrimSpace(n.ID) == "" {
		n.ID = uuid.NewString()
	}

	if !g.limiter.Allow(ctx, n.Channel, n.Recipient) {
		if g.metrics != nil {
			g.metrics.RateLimited.WithLabelValues(n.Channel.String()).Inc()
		}
		return false, &domain.RateLimitError{
			Channel:    n.Channel,
			Recipient:  n.Recipient,
			ResetAfter: g.limiter.ResetTime(ctx, n.Channel, n.Recipient),
		}
	}

	if g.dedup.IsDuplicate(ctx, n.Recipient, n.Channel, n.ContentIdentifier()) {
		if g.metrics != nil {
			g.metrics.DedupSuppressed.WithLabelValues(n.Channel.String()).Inc()
		}
		return true, nil
	}

	record := domain.RecordFromNotification(n)
	if err := g.records.CreateIfAbsent(ctx, record); err != nil {
		return false, fmt.Errorf("failed to persist notification: %w", err)
	}

	msg := queue.NotificationMessage{
		NotificationID: n.ID,
		Channel:        n.Channel,
	}
	if err := g.publisher.Publish(ctx, queue.QueueName(n.Channel), msg); err != nil {
		return false, fmt.Errorf("failed to enqueue notification: %w", err)
	}

	observability.LoggerWithContext(ctx, g.logger).Info("notification accepted",
		zap.String("notificationId", n.ID),
		zap.String("channel", n.Channel.String()),
	)
	return false, nil
}
