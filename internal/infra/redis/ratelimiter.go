package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ChannelLimit is the fixed-window admission budget for one channel.
// A non-positive Max disables limiting for that channel.
type ChannelLimit struct {
	Max    int64
	Window time.Duration
}

// allowScript atomically increments the window counter, attaches the window
// TTL on the increment that creates the key, and reports whether the count
// is within the limit. This is a fixed-window counter: bursts at window
// boundaries can admit up to twice the nominal limit.
var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

// RateLimiter is a distributed per (recipient, channel) fixed-window rate
// limiter backed by Redis. Store errors fail open: delivery availability is
// prioritized over strict limiting.
type RateLimiter struct {
	client *goredis.Client
	limits map[domain.Channel]ChannelLimit
	logger *zap.Logger
	script *goredis.Script
}

func NewRateLimiter(client *goredis.Client, limits map[domain.Channel]ChannelLimit, logger *zap.Logger) (*RateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimiter{
		client: client,
		limits: limits,
		logger: logger,
		script: allowScript,
	}, nil
}

// Allow reports whether one more request for (recipient, channel) fits in
// the current window.
func (r *RateLimiter) Allow(ctx context.Context, channel domain.Channel, recipient string) bool {
	limit, ok := r.limits[channel]
	if !ok || limit.Max <= 0 {
		return true
	}

	windowSeconds := int64(limit.Window / time.Second)
	if windowSeconds < 1 {
		windowSeconds = 1
	}

	key := rateLimitKey(channel, recipient)
	result, err := r.script.Run(ctx, r.client, []string{key}, limit.Max, windowSeconds).Int()
	if err != nil {
		r.logger.Error("rate limit check failed, allowing request",
			zap.String("channel", channel.String()),
			zap.String("recipient", recipient),
			zap.Error(err),
		)
		return true
	}

	return result == 1
}

// ResetTime returns the remaining window TTL for (recipient, channel),
// zero when the key is absent, expired, or the store errors.
func (r *RateLimiter) ResetTime(ctx context.Context, channel domain.Channel, recipient string) time.Duration {
	limit, ok := r.limits[channel]
	if !ok || limit.Max <= 0 {
		return 0
	}

	ttl, err := r.client.TTL(ctx, rateLimitKey(channel, recipient)).Result()
	if err != nil {
		r.logger.Error("rate limit reset time lookup failed",
			zap.String("channel", channel.String()),
			zap.Error(err),
		)
		return 0
	}
	if ttl < 0 {
		return 0
	}
	return ttl
}

func rateLimitKey(channel domain.Channel, recipient string) string {
	return fmt.Sprintf("rate-limit:%s:%s", strings.ToLower(channel.String()), recipient)
}
