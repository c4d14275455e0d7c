package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fintrackhq/fintrack/config"
)

// RedisClient holds the redis connection
var RedisClient *redis.Client

// InitializeRedis connects to redis and verifies the connection
func InitializeRedis() error {
	conf := config.ServerConfig()

	RedisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", conf.RedisHost, conf.RedisPort),
		Password: conf.RedisPassword,
		DB:       conf.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := RedisClient.Ping(ctx).Err(); err != nil {
		RedisClient = nil
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// TokenCache stores short-lived provider auth tokens keyed by provider and
// credential, with an explicit TTL so expiry is deterministic in tests.
type TokenCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// NewTokenCache returns a redis-backed cache when redis is connected, and
// an in-process cache otherwise. Callers must not assume the cache survives
// process restarts either way.
func NewTokenCache() TokenCache {
	if RedisClient != nil {
		return &redisTokenCache{client: RedisClient}
	}
	return NewMemoryTokenCache(time.Now)
}

type redisTokenCache struct {
	client *redis.Client
}

func (c *redisTokenCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, "token:"+key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (c *redisTokenCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	c.client.Set(ctx, "token:"+key, value, ttl)
}

func (c *redisTokenCache) Delete(ctx context.Context, key string) {
	c.client.Del(ctx, "token:"+key)
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryTokenCache is the in-process fallback. The clock is injectable so
// tests control expiry.
type MemoryTokenCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryTokenCache creates an in-memory token cache using the given clock.
func NewMemoryTokenCache(now func() time.Time) *MemoryTokenCache {
	return &MemoryTokenCache{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

// Get returns the cached value when present and unexpired.
func (c *MemoryTokenCache) Get(ctx context.Context, key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

// Set stores value under key for ttl.
func (c *MemoryTokenCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: value, expiresAt: c.now().Add(ttl)}
}

// Delete removes key from the cache.
func (c *MemoryTokenCache) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
