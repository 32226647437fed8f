package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/animefan/internal/platform/events"
	"github.com/example/animefan/internal/platform/logging"
)

// InvalidateAll is the key that drops every cached entry.
const InvalidateAll = "ALL"

// Cache holds JSON-encodable statistics. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Invalidate(ctx context.Context, key string) error
}

type cacheItem struct {
	val       []byte
	expiresAt time.Time
}

// TTLCache is an in-process Cache with per-entry expiry.
type TTLCache struct {
	mu    sync.RWMutex
	items map[string]cacheItem
	ttl   time.Duration
	now   func() time.Time
}

func NewTTLCache(ttl time.Duration) *TTLCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &TTLCache{items: make(map[string]cacheItem), ttl: ttl, now: time.Now}
}

func (c *TTLCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if c.now().After(it.expiresAt) {
		c.mu.Lock()
		if cur, ok2 := c.items[key]; ok2 && c.now().After(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(it.val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *TTLCache) Set(_ context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items[key] = cacheItem{val: b, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *TTLCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key == "" || strings.EqualFold(key, InvalidateAll) {
		c.items = make(map[string]cacheItem)
		return nil
	}
	delete(c.items, key)
	return nil
}

// RedisCache shares entries between replicas. Keys are namespaced by prefix
// so InvalidateAll only touches statistics.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
}

func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisCache{Client: redis.NewClient(opt), TTL: ttl, Prefix: "catalog:stats:"}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.Client.Get(ctx, c.Prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, c.Prefix+key, b, c.TTL).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	if key != "" && !strings.EqualFold(key, InvalidateAll) {
		return c.Client.Del(ctx, c.Prefix+key).Err()
	}
	iter := c.Client.Scan(ctx, 0, c.Prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan stats keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.Client.Del(ctx, keys...).Err()
}

func (c *RedisCache) Close() error { return c.Client.Close() }

// SubscribeInvalidation drops cache entries named by stats-invalidate
// events. The returned subscription is owned by the caller.
func SubscribeInvalidation(nc *nats.Conn, cache Cache, log *zap.Logger) (*nats.Subscription, error) {
	log = logging.OrNop(log).Named("stats_cache")
	return nc.Subscribe(events.SubjectStatsInvalidate, func(m *nats.Msg) {
		key := invalidationKey(m.Data)
		if err := cache.Invalidate(context.Background(), key); err != nil {
			log.Warn("stats cache invalidation failed", zap.String("key", key), zap.Error(err))
		}
	})
}

// invalidationKey reads the key from an event envelope. Anything that is not
// an envelope is taken as a raw key.
func invalidationKey(data []byte) string {
	var ev events.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return strings.TrimSpace(string(data))
	}
	if k, ok := ev.Properties["key"].(string); ok {
		return k
	}
	return InvalidateAll
}
