package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/dispatchlab/notify-gateway/internal/domain"
)

// Publisher publishes notification messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg NotificationMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg NotificationMessage) error

// Consumer consumes notification messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// QueueName returns the channel work queue name, e.g. rich_message.
func QueueName(channel domain.Channel) string {
	return strings.ToLower(channel.String())
}

// DLQName returns the dead-letter queue name for a channel, e.g. dlq.sms.
func DLQName(channel domain.Channel) string {
	return fmt.Sprintf("dlq.%s", QueueName(channel))
}

// WorkQueueNames returns one work queue per supported channel.
func WorkQueueNames() []string {
	channels := domain.Channels()
	queues := make([]string, 0, len(channels))
	for _, channel := range channels {
		queues = append(queues, QueueName(channel))
	}
	return queues
}
