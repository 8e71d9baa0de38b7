// Package cache stores replayable HTTP responses keyed by Idempotency-Key.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// pendingTTL bounds how long a request that never finished can hold a key.
const pendingTTL = time.Minute

// Response is a stored HTTP response. A pending response marks a key whose
// first request is still running.
type Response struct {
	Status  int    `json:"status"`
	Body    []byte `json:"body"`
	Pending bool   `json:"pending,omitempty"`
}

type RedisIdempotencyCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisIdempotencyCache(redisURL, prefix string, ttl time.Duration, logger *slog.Logger) (*RedisIdempotencyCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return NewRedisIdempotencyCacheWithOptions(opt, prefix, ttl, logger), nil
}

func NewRedisIdempotencyCacheWithOptions(opt *redis.Options, prefix string, ttl time.Duration, logger *slog.Logger) *RedisIdempotencyCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisIdempotencyCache{client: redis.NewClient(opt), prefix: prefix, ttl: ttl, logger: logger}
}

func (c *RedisIdempotencyCache) key(scope, key string) string {
	return c.prefix + scope + ":" + key
}

// Get returns nil, nil on a cache miss.
func (c *RedisIdempotencyCache) Get(ctx context.Context, scope, key string) (*Response, error) {
	val, err := c.client.Get(ctx, c.key(scope, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.logger.Debug("idempotency cache miss", "scope", scope, "key", key)
		return nil, nil
	}
	if err != nil {
		c.logger.Error("idempotency cache get error", "key", key, "error", err)
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reserve claims key for one request. It reports false when another request
// already holds or completed the key.
func (c *RedisIdempotencyCache) Reserve(ctx context.Context, scope, key string) (bool, error) {
	data, err := json.Marshal(Response{Pending: true})
	if err != nil {
		return false, err
	}
	ok, err := c.client.SetNX(ctx, c.key(scope, key), data, pendingTTL).Result()
	if err != nil {
		c.logger.Error("idempotency cache reserve error", "key", key, "error", err)
		return false, err
	}
	return ok, nil
}

// Put replaces the reservation with the final response.
func (c *RedisIdempotencyCache) Put(ctx context.Context, scope, key string, resp Response) error {
	resp.Pending = false
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(scope, key), data, c.ttl).Err(); err != nil {
		c.logger.Error("idempotency cache set error", "key", key, "error", err)
		return err
	}
	return nil
}

// Release drops a reservation so the key can be retried.
func (c *RedisIdempotencyCache) Release(ctx context.Context, scope, key string) error {
	if err := c.client.Del(ctx, c.key(scope, key)).Err(); err != nil {
		c.logger.Error("idempotency cache release error", "key", key, "error", err)
		return err
	}
	return nil
}

func (c *RedisIdempotencyCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisIdempotencyCache) Close() error {
	return c.client.Close()
}
