package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TemplateCache stores rendered template output keyed by
// (template name, locale, data hash). Cache errors are non-critical: reads
// fall through to a re-render, writes are dropped.
type TemplateCache struct {
	client *goredis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewTemplateCache(client *goredis.Client, ttl time.Duration, logger *zap.Logger) (*TemplateCache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TemplateCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func (c *TemplateCache) Get(ctx context.Context, name, locale, dataHash string) (string, bool) {
	if c.ttl <= 0 {
		return "", false
	}

	content, err := c.client.Get(ctx, templateCacheKey(name, locale, dataHash)).Result()
	if err == goredis.Nil {
		return "", false
	}
	if err != nil {
		c.logger.Warn("template cache read failed",
			zap.String("template", name),
			zap.String("locale", locale),
			zap.Error(err),
		)
		return "", false
	}
	return content, true
}

func (c *TemplateCache) Set(ctx context.Context, name, locale, dataHash, content string) {
	if c.ttl <= 0 || content == "" {
		return
	}

	if err := c.client.Set(ctx, templateCacheKey(name, locale, dataHash), content, c.ttl).Err(); err != nil {
		c.logger.Warn("template cache write failed",
			zap.String("template", name),
			zap.String("locale", locale),
			zap.Error(err),
		)
	}
}

// Invalidate removes every cached variation of (name, locale) using a
// non-blocking SCAN over the key pattern.
func (c *TemplateCache) Invalidate(ctx context.Context, name, locale string) {
	if c.ttl <= 0 {
		return
	}

	pattern := templateCacheKey(name, locale, "*")
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Error("template cache invalidation delete failed",
				zap.String("key", iter.Val()),
				zap.Error(err),
			)
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Error("template cache invalidation scan failed",
			zap.String("template", name),
			zap.String("locale", locale),
			zap.Error(err),
		)
		return
	}

	c.logger.Info("invalidated template cache entries",
		zap.String("template", name),
		zap.String("locale", locale),
	)
}

func templateCacheKey(name, locale, dataHash string) string {
	return fmt.Sprintf("template-cache:%s:%s:%s", name, locale, dataHash)
}
