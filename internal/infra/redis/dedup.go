package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduplicator suppresses repeat sends of identical content to the same
// recipient within a TTL window. The fingerprint is SHA-256 over
// "recipient:CHANNEL:content-identifier". SetNX makes the check-and-mark a
// single atomic operation, so two concurrent identical requests cannot both
// pass. Store errors fail open (not a duplicate).
type Deduplicator struct {
	client *goredis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduplicator(client *goredis.Client, ttl time.Duration, logger *zap.Logger) (*Deduplicator, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Deduplicator{
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// IsDuplicate reports whether an identical notification was admitted within
// the dedup TTL, marking the fingerprint as seen when it was not.
func (d *Deduplicator) IsDuplicate(ctx context.Context, recipient string, channel domain.Channel, contentID string) bool {
	if d.ttl <= 0 {
		return false
	}

	key := dedupKey(recipient, channel, contentID)
	created, err := d.client.SetNX(ctx, key, "sent", d.ttl).Result()
	if err != nil {
		d.logger.Warn("dedup check failed, allowing notification",
			zap.String("recipient", recipient),
			zap.String("channel", channel.String()),
			zap.Error(err),
		)
		return false
	}

	if !created {
		d.logger.Warn("duplicate notification suppressed",
			zap.String("recipient", recipient),
			zap.String("channel", channel.String()),
		)
	}
	return !created
}

// Forget drops the fingerprint for one notification so an intentional
// re-submission (a cold retry) is not suppressed by its own first attempt.
func (d *Deduplicator) Forget(ctx context.Context, recipient string, channel domain.Channel, contentID string) error {
	if d.ttl <= 0 {
		return nil
	}
	if err := d.client.Del(ctx, dedupKey(recipient, channel, contentID)).Err(); err != nil {
		return fmt.Errorf("failed to forget dedup fingerprint: %w", err)
	}
	return nil
}

func dedupKey(recipient string, channel domain.Channel, contentID string) string {
	sum := sha256.Sum256([]byte(recipient + ":" + channel.String() + ":" + contentID))
	return "dedup:" + hex.EncodeToString(sum[:])
}
