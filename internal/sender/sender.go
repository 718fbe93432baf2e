// Package sender contains the per-channel delivery providers and the
// resilience middleware wrapped around them.
package sender

import (
	"context"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	"go.uber.org/zap"
)

// Metadata carries optional provider hints passed through from the request,
// e.g. "subject" for email or "media_url" for chat attachments.
type Metadata map[string]string

// Sender delivers rendered content to one recipient over one channel. Send
// returns the provider's message id when the provider exposes one.
type Sender interface {
	Channel() domain.Channel
	Send(ctx context.Context, recipient, content, locale string, metadata Metadata) (string, error)
}

// Registry maps channels to their senders. Registration keeps the first
// sender for a channel and warns on duplicates.
type Registry struct {
	senders map[domain.Channel]Sender
	logger  *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		senders: make(map[domain.Channel]Sender),
		logger:  logger,
	}
}

func (r *Registry) Register(s Sender) {
	if s == nil {
		return
	}
	ch := s.Channel()
	if _, exists := r.senders[ch]; exists {
		r.logger.Warn("duplicate sender registration ignored",
			zap.String("channel", ch.String()),
		)
		return
	}
	r.senders[ch] = s
}

func (r *Registry) Resolve(ch domain.Channel) (Sender, bool) {
	s, ok := r.senders[ch]
	return s, ok
}

// Channels returns the channels that have a registered sender, in the
// canonical channel order.
func (r *Registry) Channels() []domain.Channel {
	out := make([]domain.Channel, 0, len(r.senders))
	for _, ch := range domain.Channels() {
		if _, ok := r.senders[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}
