package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Webhook signature headers sent by the email provider.
const (
	HeaderWebhookSignature = "X-Twilio-Email-Event-Webhook-Signature"
	HeaderWebhookTimestamp = "X-Twilio-Email-Event-Webhook-Timestamp"
)

// EventProcessor verifies and applies provider webhook batches.
type EventProcessor interface {
	VerifySignature(signature, timestamp string, payload []byte) error
	Process(ctx context.Context, payload []byte) error
}

type WebhookHandler struct {
	processor EventProcessor
	logger    *zap.Logger
}

func NewWebhookHandler(processor EventProcessor, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{processor: processor, logger: logger}
}

// HandleEmailEvents ingests an email provider event batch. An invalid
// signature is rejected with 401; any processing problem after that is
// logged and answered with 200 so the provider does not redeliver a batch
// we cannot use.
func (h *WebhookHandler) HandleEmailEvents(c *fiber.Ctx) error {
	payload := c.Body()

	err := h.processor.VerifySignature(
		c.Get(HeaderWebhookSignature),
		c.Get(HeaderWebhookTimestamp),
		payload,
	)
	if err != nil {
		return err
	}

	if err := h.processor.Process(c.UserContext(), payload); err != nil {
		h.logger.Warn("webhook batch not processed", zap.Error(err))
	}
	return c.SendStatus(fiber.StatusOK)
}
