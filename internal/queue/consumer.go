package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitMQConsumer drains one channel work queue and feeds the delivery
// worker. Undeliverable messages are rejected without requeue, which routes
// them to the channel's dead-letter queue via the topology's
// x-dead-letter-exchange binding.
type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:   client,
		prefetch: prefetch,
		logger:   logger,
	}
}

// Consume runs until the context ends, re-establishing the channel with
// exponential backoff after broker failures.
func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	backoff := reconnectBackoff
	for {
		err := c.consumeOnce(ctx, queue, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = reconnectBackoff
			continue
		}

		c.logger.Warn("consumer channel lost, reconnecting",
			zap.String("queue", queue),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *RabbitMQConsumer) consumeOnce(ctx context.Context, queue string, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		queue,
		"notify-gateway."+queue,
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if err := c.handleDelivery(ctx, queue, d, handler); err != nil {
				return err
			}
		}
	}
}

// handleDelivery settles exactly one delivery. Malformed or misrouted
// messages dead-letter immediately; a handler failure gets one requeued
// redelivery, then the message is parked in the DLQ for operator replay so a
// persistent fault cannot spin the queue.
func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, queue string, d amqp.Delivery, handler MessageHandler) error {
	msg, err := c.decode(queue, d)
	if err != nil {
		c.logger.Warn("dead-lettering undeliverable message",
			zap.String("queue", queue),
			zap.String("messageId", d.MessageId),
			zap.Error(err),
		)
		return c.deadLetter(d)
	}

	if err := handler(ctx, msg); err != nil {
		if d.Redelivered {
			c.logger.Error("dead-lettering message after redelivery failure",
				zap.String("queue", queue),
				zap.String("notificationId", msg.NotificationID),
				zap.Error(err),
			)
			return c.deadLetter(d)
		}

		c.logger.Warn("requeueing message after handler failure",
			zap.String("queue", queue),
			zap.String("notificationId", msg.NotificationID),
			zap.Error(err),
		)
		if nackErr := d.Nack(false, true); nackErr != nil {
			return fmt.Errorf("failed to requeue delivery: %w", nackErr)
		}
		return nil
	}

	if err := d.Ack(false); err != nil {
		return fmt.Errorf("failed to ack delivery: %w", err)
	}
	return nil
}

// decode parses and validates the broker payload, and checks the message was
// not published to the wrong channel queue: a chat message consumed from the
// email queue would otherwise be handed to the email sender.
func (c *RabbitMQConsumer) decode(queue string, d amqp.Delivery) (NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return NotificationMessage{}, fmt.Errorf("invalid message body: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return NotificationMessage{}, err
	}
	if QueueName(msg.Channel) != queue {
		return NotificationMessage{}, fmt.Errorf("message for channel %q consumed from queue %q", msg.Channel, queue)
	}
	return msg, nil
}

// deadLetter rejects without requeue; the queue's x-dead-letter-exchange
// binding routes the message to the channel DLQ.
func (c *RabbitMQConsumer) deadLetter(d amqp.Delivery) error {
	if err := d.Reject(false); err != nil {
		return fmt.Errorf("failed to dead-letter delivery: %w", err)
	}
	return nil
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
