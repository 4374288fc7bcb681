package directory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache is the key-value subset the read-through cache needs.
type Cache interface {
	// Get returns the stored value and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Cached is a read-through cache in front of another Directory. Only
// successful lookups are cached; cache failures fall back to the source.
type Cached struct {
	source Directory
	cache  Cache
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// NewCached wraps source. A nil logger discards cache warnings.
func NewCached(source Directory, cache Cache, ttl time.Duration, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cached{
		source: source,
		cache:  cache,
		ttl:    ttl,
		prefix: "booking:directory:",
		logger: logger.With("component", "directory_cache"),
	}
}

var _ Directory = (*Cached)(nil)

func (c *Cached) User(ctx context.Context, userID string) (User, error) {
	return readThrough(ctx, c, "user:"+userID, func() (User, error) {
		return c.source.User(ctx, userID)
	})
}

func (c *Cached) Worker(ctx context.Context, workerID string) (Worker, error) {
	return readThrough(ctx, c, "worker:"+workerID, func() (Worker, error) {
		return c.source.Worker(ctx, workerID)
	})
}

func (c *Cached) WorkerForUser(ctx context.Context, userID string) (Worker, error) {
	return readThrough(ctx, c, "worker_user:"+userID, func() (Worker, error) {
		return c.source.WorkerForUser(ctx, userID)
	})
}

func (c *Cached) Customer(ctx context.Context, customerID string) (Customer, error) {
	return readThrough(ctx, c, "customer:"+customerID, func() (Customer, error) {
		return c.source.Customer(ctx, customerID)
	})
}

func (c *Cached) CustomerForUser(ctx context.Context, userID string) (Customer, error) {
	return readThrough(ctx, c, "customer_user:"+userID, func() (Customer, error) {
		return c.source.CustomerForUser(ctx, userID)
	})
}

func (c *Cached) Job(ctx context.Context, jobID string) (Job, error) {
	return readThrough(ctx, c, "job:"+jobID, func() (Job, error) {
		return c.source.Job(ctx, jobID)
	})
}

func readThrough[T any](ctx context.Context, c *Cached, key string, load func() (T, error)) (T, error) {
	key = c.prefix + key

	raw, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		c.logger.WarnContext(ctx, "directory cache read failed", "key", key, "error", err)
	case ok:
		var cached T
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return cached, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cache entry", "key", key)
	}

	value, err := load()
	if err != nil {
		return value, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return value, nil
	}
	if err := c.cache.Set(ctx, key, string(encoded), c.ttl); err != nil {
		c.logger.WarnContext(ctx, "directory cache write failed", "key", key, "error", err)
	}
	return value, nil
}
