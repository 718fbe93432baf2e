package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	"github.com/dispatchlab/notify-gateway/internal/observability"
	"github.com/dispatchlab/notify-gateway/internal/queue"
	"github.com/dispatchlab/notify-gateway/internal/sender"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RecordReader is the worker-side slice of the notification repository.
type RecordReader interface {
	GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error)
}

// ContentResolver renders template-backed notification content.
type ContentResolver interface {
	Render(ctx context.Context, name, locale string, data map[string]string) (string, error)
}

// StatusUpdater is the single choke-point for status transitions.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id string, status domain.Status, message, providerMessageID string) error
}

// ColdScheduler stores transiently failed notifications for later
// re-submission.
type ColdScheduler interface {
	Schedule(ctx context.Context, n *domain.Notification, delay time.Duration) error
}

// SenderRegistry resolves the delivery provider for a channel.
type SenderRegistry interface {
	Resolve(ch domain.Channel) (sender.Sender, bool)
}

// Worker consumes the per-channel delivery queues, renders content and hands
// it to the channel sender. Terminal failures (template resolution, missing
// sender, permanent provider rejections) are finalized as FAILED; transient
// exhaustion additionally lands the notification in the cold queue.
type Worker struct {
	consumer    queue.Consumer
	records     RecordReader
	resolver    ContentResolver
	senders     SenderRegistry
	state       StatusUpdater
	coldQueue   ColdScheduler
	metrics     *observability.Metrics
	logger      *zap.Logger
	concurrency int
	coldDelay   time.Duration
}

func NewWorker(
	consumer queue.Consumer,
	records RecordReader,
	resolver ContentResolver,
	senders SenderRegistry,
	state StatusUpdater,
	coldQueue ColdScheduler,
	metrics *observability.Metrics,
	logger *zap.Logger,
	concurrency int,
	coldDelay time.Duration,
) (*Worker, error) {
	if consumer == nil || records == nil || resolver == nil || senders == nil ||
		state == nil || coldQueue == nil {
		return nil, fmt.Errorf("worker dependencies are incomplete")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}

	return &Worker{
		consumer:    consumer,
		records:     records,
		resolver:    resolver,
		senders:     senders,
		state:       state,
		coldQueue:   coldQueue,
		metrics:     metrics,
		logger:      logger,
		concurrency: concurrency,
		coldDelay:   coldDelay,
	}, nil
}

// Start runs the consumer loops until the context is canceled. Workers are
// spread round-robin across the per-channel queues.
func (w *Worker) Start(ctx context.Context) error {
	queues := queue.WorkQueueNames()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		queueName := queues[i%len(queues)]
		workerID := i

		g.Go(func() error {
			w.logger.Info("delivery worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return w.consumer.Consume(ctx, queueName, w.processMessage)
		})
	}

	return g.Wait()
}

// processMessage handles one queue delivery. A nil return acknowledges the
// message; a non-nil return nacks it for redelivery, so only infrastructure
// failures (store or broker unavailable) may propagate out.
func (w *Worker) processMessage(ctx context.Context, msg queue.NotificationMessage) error {
	record, err := w.records.GetByID(ctx, msg.NotificationID)
	if errors.Is(err, domain.ErrNotFound) {
		w.logger.Warn("skipping message for unknown notification",
			zap.String("notificationId", msg.NotificationID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load notification %s: %w", msg.NotificationID, err)
	}

	// Redelivered messages for already finalized records are no-ops.
	if record.Status != domain.StatusQueued {
		w.logger.Debug("skipping already finalized notification",
			zap.String("notificationId", record.ID),
			zap.String("status", record.Status.String()),
		)
		return nil
	}

	n := record.Command()

	if n.UsesTemplate() {
		content, err := w.resolver.Render(ctx, templateRef(n.Channel, n.TemplateName), n.Locale, n.Data)
		if err != nil {
			return w.finalizeFailure(ctx, n, "template", err, false)
		}
		n.ProcessedContent = content
	} else {
		n.ProcessedContent = n.Message
	}

	snd, ok := w.senders.Resolve(n.Channel)
	if !ok {
		err := fmt.Errorf("no sender registered for channel %s", n.Channel)
		return w.finalizeFailure(ctx, n, "no_sender", err, false)
	}

	if w.metrics != nil {
		w.metrics.WorkerInflight.Inc()
		defer w.metrics.WorkerInflight.Dec()
	}

	start := time.Now()
	providerID, err := snd.Send(ctx, n.Recipient, n.ProcessedContent, n.Locale, sender.Metadata(n.Data))
	if w.metrics != nil {
		w.metrics.SendDuration.WithLabelValues(n.Channel.String()).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		return w.finalizeFailure(ctx, n, "send", err, sender.IsTransient(err))
	}

	if err := w.state.UpdateStatus(ctx, n.ID, domain.StatusSent, "", providerID); err != nil {
		return fmt.Errorf("failed to mark notification %s sent: %w", n.ID, err)
	}
	if w.metrics != nil {
		w.metrics.NotificationsSent.WithLabelValues(n.Channel.String()).Inc()
	}

	w.logger.Info("notification delivered",
		zap.String("notificationId", n.ID),
		zap.String("channel", n.Channel.String()),
		zap.String("providerMessageId", providerID),
	)
	return nil
}

func (w *Worker) finalizeFailure(ctx context.Context, n *domain.Notification, reason string, cause error, transient bool) error {
	if err := w.state.UpdateStatus(ctx, n.ID, domain.StatusFailed, cause.Error(), ""); err != nil {
		return fmt.Errorf("failed to mark notification %s failed: %w", n.ID, err)
	}
	if w.metrics != nil {
		w.metrics.NotificationsFailed.WithLabelValues(n.Channel.String(), reason).Inc()
	}

	w.logger.Warn("notification delivery failed",
		zap.String("notificationId", n.ID),
		zap.String("channel", n.Channel.String()),
		zap.String("reason", reason),
		zap.Bool("transient", transient),
		zap.Error(cause),
	)

	if !transient {
		return nil
	}

	if err := w.coldQueue.Schedule(ctx, n, w.coldDelay); err != nil {
		// The record is already FAILED; losing the cold retry is logged
		// rather than propagated, since a nack would redeliver a message
		// whose record is no longer QUEUED.
		w.logger.Error("failed to schedule cold retry",
			zap.String("notificationId", n.ID),
			zap.Error(err),
		)
		return nil
	}
	if w.metrics != nil {
		w.metrics.ColdQueueScheduled.WithLabelValues(n.Channel.String()).Inc()
	}
	return nil
}

// templateRef composes the resolver lookup name from the channel folder and
// the bare template name, e.g. ("EMAIL", "welcome") -> "email/welcome".
func templateRef(channel domain.Channel, name string) string {
	return channel.FolderName() + "/" + name
}
