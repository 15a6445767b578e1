// Package cache implements the best-effort result cache that memoizes the
// last known-good delivery server per (episode, category). All backend
// failures are swallowed and logged: the cache is an advisory hint store,
// never a source of truth, and the resolution engine works unchanged when
// no backend is configured.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aniflux/aniflux/internal/constants"
	"github.com/aniflux/aniflux/internal/models"
)

const connectTimeout = 5 * time.Second

// SourceCache stores per-episode resolution memos in Redis with a TTL.
// A zero backend (nil client) turns every operation into a no-op.
type SourceCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// New connects to the Redis backend at redisURL. An empty URL or an
// unreachable backend yields a disabled cache, not an error.
func New(redisURL string, ttl time.Duration, logger *logrus.Logger) *SourceCache {
	disabled := &SourceCache{ttl: ttl, logger: logger}
	if redisURL == "" {
		logger.Info("[SourceCache] no backend configured, resolution memoization disabled")
		return disabled
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.WithError(err).Warn("[SourceCache] invalid REDIS_URL, memoization disabled")
		return disabled
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("[SourceCache] backend unreachable, memoization disabled")
		_ = client.Close()
		return disabled
	}

	logger.Info("[SourceCache] backend connected")
	return &SourceCache{client: client, ttl: ttl, logger: logger}
}

// NewWithClient wraps an existing Redis client. Used by tests.
func NewWithClient(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *SourceCache {
	return &SourceCache{client: client, ttl: ttl, logger: logger}
}

// Enabled reports whether a backend is connected.
func (c *SourceCache) Enabled() bool {
	return c.client != nil
}

// Close releases the backend connection.
func (c *SourceCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

var keySanitizer = strings.NewReplacer("?", "-", "=", "-", "&", "-", ":", "-", "/", "-", " ", "-")

// Key derives the store key for an episode/category pair. It is a pure
// function of its inputs; special characters in the episode reference are
// substituted so the key stays a single flat token per segment.
func Key(ref models.EpisodeReference, category models.Category) string {
	episode := ref.EpisodeNumber
	if episode == "" {
		episode = "none"
	}
	return constants.CacheKeyPrefix + ":" +
		keySanitizer.Replace(ref.SeriesID) + ":" +
		keySanitizer.Replace(episode) + ":" +
		string(category)
}

// Get returns the cache entry for the episode/category pair, or false when
// absent, expired, or the backend misbehaves.
func (c *SourceCache) Get(ctx context.Context, ref models.EpisodeReference, category models.Category) (*models.CacheEntry, bool) {
	if c.client == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, Key(ref, category)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Debug("[SourceCache] read failed")
		}
		return nil, false
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.WithError(err).Debug("[SourceCache] stored entry unreadable, dropping")
		c.Clear(ctx, ref, category)
		return nil, false
	}
	return &entry, true
}

// RecordSuccess memoizes server as the known-good choice for the pair and
// merges any servers that failed on the way there into the entry's failed
// set. The success counter increments only while the same server keeps
// winning; a new winner resets it. Every write renews the TTL.
func (c *SourceCache) RecordSuccess(ctx context.Context, ref models.EpisodeReference, category models.Category, server string, failed []string) {
	if c.client == nil {
		return
	}

	entry, ok := c.Get(ctx, ref, category)
	if !ok {
		entry = &models.CacheEntry{}
	}
	if entry.Server == server {
		entry.SuccessCount++
	} else {
		entry.Server = server
		entry.SuccessCount = 1
	}
	entry.LastSuccessAt = time.Now().UTC()
	for _, f := range failed {
		entry.AddFailed(f)
	}

	c.write(ctx, ref, category, entry)
}

// RecordFailure adds server to the pair's failed set, creating the entry if
// needed. The failed set only grows until the entry expires.
func (c *SourceCache) RecordFailure(ctx context.Context, ref models.EpisodeReference, category models.Category, server string) {
	if c.client == nil {
		return
	}

	entry, ok := c.Get(ctx, ref, category)
	if !ok {
		entry = &models.CacheEntry{}
	}
	if entry.Server == server {
		// The memoized server stopped working; forget it so the next
		// resolution walks discovery order again.
		entry.Server = ""
		entry.SuccessCount = 0
	}
	entry.AddFailed(server)

	c.write(ctx, ref, category, entry)
}

// Clear removes the entry for the pair.
func (c *SourceCache) Clear(ctx context.Context, ref models.EpisodeReference, category models.Category) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, Key(ref, category)).Err(); err != nil {
		c.logger.WithError(err).Debug("[SourceCache] delete failed")
	}
}

func (c *SourceCache) write(ctx context.Context, ref models.EpisodeReference, category models.Category, entry *models.CacheEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.WithError(err).Debug("[SourceCache] marshal failed")
		return
	}
	if err := c.client.Set(ctx, Key(ref, category), data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Debug("[SourceCache] write failed")
	}
}
