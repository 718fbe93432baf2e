package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dispatchlab/notify-gateway/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRateLimiterAllowWithinWindow(t *testing.T) {
	_, client := newTestClient(t)

	limiter, err := NewRateLimiter(client, map[domain.Channel]ChannelLimit{
		domain.ChannelSMS: {Max: 2, Window: time.Hour},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRateLimiter() error = %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if !limiter.Allow(ctx, domain.ChannelSMS, "+15550001111") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if limiter.Allow(ctx, domain.ChannelSMS, "+15550001111") {
		t.Fatal("third request should be rejected")
	}

	// A different recipient has its own window.
	if !limiter.Allow(ctx, domain.ChannelSMS, "+15550002222") {
		t.Fatal("other recipient should be allowed")
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	mr, client := newTestClient(t)

	limiter, err := NewRateLimiter(client, map[domain.Channel]ChannelLimit{
		domain.ChannelChat: {Max: 1, Window: time.Minute},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRateLimiter() error = %v", err)
	}

	ctx := context.Background()
	if !limiter.Allow(ctx, domain.ChannelChat, "42") {
		t.Fatal("first request should be allowed")
	}
	if limiter.Allow(ctx, domain.ChannelChat, "42") {
		t.Fatal("second request should be rejected")
	}

	mr.FastForward(time.Minute + time.Second)

	if !limiter.Allow(ctx, domain.ChannelChat, "42") {
		t.Fatal("request after window expiry should be allowed")
	}
}

func TestRateLimiterResetTime(t *testing.T) {
	_, client := newTestClient(t)

	limiter, err := NewRateLimiter(client, map[domain.Channel]ChannelLimit{
		domain.ChannelEmail: {Max: 1, Window: time.Hour},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRateLimiter() error = %v", err)
	}

	ctx := context.Background()
	if got := limiter.ResetTime(ctx, domain.ChannelEmail, "a@b.co"); got != 0 {
		t.Fatalf("ResetTime() before any request = %v, want 0", got)
	}

	limiter.Allow(ctx, domain.ChannelEmail, "a@b.co")
	if got := limiter.ResetTime(ctx, domain.ChannelEmail, "a@b.co"); got <= 0 || got > time.Hour {
		t.Fatalf("ResetTime() = %v, want within (0, 1h]", got)
	}
}

func TestRateLimiterDisabledChannel(t *testing.T) {
	_, client := newTestClient(t)

	limiter, err := NewRateLimiter(client, map[domain.Channel]ChannelLimit{
		domain.ChannelEmail: {Max: 0, Window: time.Hour},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRateLimiter() error = %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		if !limiter.Allow(ctx, domain.ChannelEmail, "a@b.co") {
			t.Fatal("disabled limit should always allow")
		}
	}
	// Unconfigured channels are unlimited too.
	if !limiter.Allow(ctx, domain.ChannelSMS, "+15550001111") {
		t.Fatal("unconfigured channel should always allow")
	}
}
