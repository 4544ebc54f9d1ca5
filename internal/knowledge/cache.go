package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "chorus:knowledge:"
	defaultTTL     = time.Hour
)

// Cache holds successful snippet lookups keyed by persona and topic. Misses and backend errors
// are indistinguishable to callers; a cache never makes a lookup fail.
type Cache interface {
	Get(ctx context.Context, persona, topic string) (Snippet, bool)
	Set(ctx context.Context, persona, topic string, snippet Snippet)
}

func cacheKey(persona, topic string) string {
	return persona + ":" + strings.ToLower(strings.TrimSpace(topic))
}

type memoryEntry struct {
	snippet Snippet
	expires time.Time
}

type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MemoryCache{ttl: ttl, entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, persona, topic string) (Snippet, bool) {
	key := cacheKey(persona, topic)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Snippet{}, false
	}
	if !c.now().Before(entry.expires) {
		delete(c.entries, key)
		return Snippet{}, false
	}
	return entry.snippet, true
}

func (c *MemoryCache) Set(_ context.Context, persona, topic string, snippet Snippet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey(persona, topic)] = memoryEntry{snippet: snippet, expires: c.now().Add(c.ttl)}
}

// RedisCache shares snippets between chorus processes.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, persona, topic string) (Snippet, bool) {
	val, err := c.client.Get(ctx, redisKeyPrefix+cacheKey(persona, topic)).Result()
	if errors.Is(err, redis.Nil) {
		return Snippet{}, false
	}
	if err != nil {
		c.logger.Warn("knowledge cache read failed", "topic", topic, "error", err)
		return Snippet{}, false
	}

	var snippet Snippet
	if err := json.Unmarshal([]byte(val), &snippet); err != nil {
		c.logger.Warn("knowledge cache entry unreadable", "topic", topic, "error", err)
		return Snippet{}, false
	}
	return snippet, true
}

func (c *RedisCache) Set(ctx context.Context, persona, topic string, snippet Snippet) {
	val, err := json.Marshal(snippet)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+cacheKey(persona, topic), val, c.ttl).Err(); err != nil {
		c.logger.Warn("knowledge cache write failed", "topic", topic, "error", err)
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
