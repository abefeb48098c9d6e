// Package cache deduplicates identical prompts by caching final replies.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/horus-ai-bot-go/internal/config"
	"github.com/horus-ai-bot-go/internal/models"
)

// Service defines reply cache operations
type Service interface {
	Get(ctx context.Context, userID, prompt string) (string, bool)
	Set(ctx context.Context, userID, prompt, reply string) error
	Clear(ctx context.Context) error
}

// NewService builds the cache backend named in the config. Disabled caching
// returns a no-op service.
func NewService(cfg *config.Config, client *redis.Client, logger *logrus.Logger) Service {
	if !cfg.Cache.Enabled {
		return &localCache{enabled: false}
	}
	if cfg.Cache.Backend == "redis" && client != nil {
		return &redisCache{client: client, ttl: cfg.Cache.TTL, logger: logger}
	}
	return &localCache{
		enabled: true,
		cache:   gocache.New(cfg.Cache.TTL, cfg.Cache.TTL*2),
		logger:  logger,
		maxSize: cfg.Cache.MaxSize,
	}
}

// replyKey scopes the cache per user so one user's reply never leaks into
// another user's conversation.
func replyKey(userID, prompt string) string {
	data := fmt.Sprintf("%s:%s", userID, prompt)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// localCache is the in-process backend
type localCache struct {
	enabled bool
	cache   *gocache.Cache
	logger  *logrus.Logger
	maxSize int
}

func (c *localCache) Get(ctx context.Context, userID, prompt string) (string, bool) {
	if !c.enabled {
		return "", false
	}

	if val, found := c.cache.Get(replyKey(userID, prompt)); found {
		entry := val.(*models.CacheEntry)
		c.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"age":     time.Since(entry.CreatedAt),
		}).Debug("Cache hit")
		return entry.Reply, true
	}

	return "", false
}

func (c *localCache) Set(ctx context.Context, userID, prompt, reply string) error {
	if !c.enabled {
		return nil
	}

	if c.cache.ItemCount() >= c.maxSize {
		c.logger.Warn("Cache size limit reached, clearing old entries")
		c.cache.DeleteExpired()
	}

	c.cache.SetDefault(replyKey(userID, prompt), &models.CacheEntry{
		Prompt:    prompt,
		Reply:     reply,
		UserID:    userID,
		CreatedAt: time.Now(),
	})
	return nil
}

func (c *localCache) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	c.cache.Flush()
	c.logger.Info("Cache cleared")
	return nil
}

// redisCache shares cached replies across instances
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func cacheKey(userID, prompt string) string {
	return fmt.Sprintf("reply:cache:%s", replyKey(userID, prompt))
}

func (c *redisCache) Get(ctx context.Context, userID, prompt string) (string, bool) {
	data, err := c.client.Get(ctx, cacheKey(userID, prompt)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.logger.WithError(err).Warn("Cache lookup failed")
		return "", false
	}

	var entry models.CacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		c.logger.WithError(err).Warn("Discarding unreadable cache entry")
		return "", false
	}
	c.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"age":     time.Since(entry.CreatedAt),
	}).Debug("Cache hit")
	return entry.Reply, true
}

func (c *redisCache) Set(ctx context.Context, userID, prompt, reply string) error {
	data, err := json.Marshal(&models.CacheEntry{
		Prompt:    prompt,
		Reply:     reply,
		UserID:    userID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return c.client.Set(ctx, cacheKey(userID, prompt), data, c.ttl).Err()
}

func (c *redisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "reply:cache:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
