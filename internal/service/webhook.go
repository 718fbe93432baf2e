package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	"github.com/dispatchlab/notify-gateway/internal/observability"
	"go.uber.org/zap"
)

// ProviderEvent is one entry of an email provider webhook batch.
type ProviderEvent struct {
	Event             string `json:"event"`
	ProviderMessageID string `json:"sg_message_id"`
	NotificationID    string `json:"notificationId"`
	Reason            string `json:"reason"`
}

// StateWriter is the state-service slice the reconciler needs: status
// transitions for terminal events, append-only attempts for informational
// ones.
type StateWriter interface {
	StatusUpdater
	AppendAttempt(ctx context.Context, id string, status domain.Status, message, providerMessageID string) error
}

// WebhookReconciler folds asynchronous provider delivery events back into
// notification state. Delivery confirmations and bounces change the status;
// engagement events only add an informational attempt.
type WebhookReconciler struct {
	publicKey *ecdsa.PublicKey
	records   RecordReader
	state     StateWriter
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewWebhookReconciler parses the base64 PKIX public key used for signature
// verification. An empty key disables verification, for local development.
func NewWebhookReconciler(
	publicKeyBase64 string,
	records RecordReader,
	state StateWriter,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*WebhookReconciler, error) {
	if records == nil || state == nil {
		return nil, fmt.Errorf("webhook reconciler dependencies are incomplete")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &WebhookReconciler{
		records: records,
		state:   state,
		metrics: metrics,
		logger:  logger,
	}

	if strings.TrimSpace(publicKeyBase64) == "" {
		logger.Warn("webhook public key not configured, signature verification disabled")
		return r, nil
	}

	der, err := base64.StdEncoding.DecodeString(publicKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode webhook public key: %w", err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse webhook public key: %w", err)
	}
	ecKey, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("webhook public key is not an ECDSA key")
	}

	r.publicKey = ecKey
	return r, nil
}

// VerifySignature checks the provider's ECDSA signature over the
// concatenation of the timestamp header and the raw request body. A nil
// return with no configured key means verification is disabled.
func (r *WebhookReconciler) VerifySignature(signature, timestamp string, payload []byte) error {
	if r.publicKey == nil {
		return nil
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return &domain.NotificationError{
			Code:     domain.CodeInvalidSignature,
			Category: domain.CategorySecurity,
			Title:    "Invalid webhook signature",
			Message:  "signature is not valid base64",
			Cause:    err,
		}
	}

	digest := sha256.Sum256(append([]byte(timestamp), payload...))
	if !ecdsa.VerifyASN1(r.publicKey, digest[:], sig) {
		return &domain.NotificationError{
			Code:     domain.CodeInvalidSignature,
			Category: domain.CategorySecurity,
			Title:    "Invalid webhook signature",
			Message:  "signature verification failed",
		}
	}
	return nil
}

// Process applies a webhook event batch. Per-event failures are logged and
// skipped; the batch as a whole only fails on an undecodable payload, so the
// provider does not redeliver a batch over one bad entry.
func (r *WebhookReconciler) Process(ctx context.Context, payload []byte) error {
	var events []ProviderEvent
	if err := json.Unmarshal(payload, &events); err != nil {
		return fmt.Errorf("%w: undecodable webhook payload: %v", domain.ErrValidation, err)
	}

	log := observability.LoggerWithContext(ctx, r.logger)
	for _, event := range events {
		if r.metrics != nil {
			r.metrics.WebhookEvents.WithLabelValues(event.Event).Inc()
		}
		if err := r.applyEvent(ctx, event); err != nil {
			log.Warn("skipping webhook event",
				zap.String("event", event.Event),
				zap.String("notificationId", event.NotificationID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (r *WebhookReconciler) applyEvent(ctx context.Context, event ProviderEvent) error {
	if strings.TrimSpace(event.NotificationID) == "" {
		return fmt.Errorf("event has no notification id")
	}

	record, err := r.records.GetByID(ctx, event.NotificationID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("unknown notification")
	}
	if err != nil {
		return err
	}

	switch event.Event {
	case "delivered":
		return r.state.UpdateStatus(ctx, record.ID, domain.StatusSent,
			"", event.ProviderMessageID)
	case "bounce", "dropped", "spamreport":
		reason := event.Reason
		if reason == "" {
			reason = "provider reported " + event.Event
		}
		return r.state.UpdateStatus(ctx, record.ID, domain.StatusFailed,
			reason, event.ProviderMessageID)
	case "deferred", "open", "click":
		// Informational only: append an attempt without writing the record's
		// status, so a concurrent transition is never overwritten with the
		// status read above.
		return r.state.AppendAttempt(ctx, record.ID, record.Status,
			"provider event: "+event.Event, event.ProviderMessageID)
	default:
		return fmt.Errorf("unhandled event type %q", event.Event)
	}
}
