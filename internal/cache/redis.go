package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/QWED-AI/qwed-verification/internal/engine"
)

const redisKeyPrefix = "qwed:verify:"

// RedisCache is the optional second tier shared across gateway
// processes. A miss here is not an error: callers fall back to running
// the engine again exactly as they would on a cold LRU.
//
// Round-tripping through JSON loses Go's concrete Payload type: a
// []engine.Issue written by the code adapter comes back as
// []interface{} of map[string]interface{}, not []engine.Issue. Callers
// reading a Redis-tier hit must type-switch on the decoded shape rather
// than type-assert the original struct type. The LRU tier does not have
// this limitation since it stores the Go value directly.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an already-constructed client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func redisKey(key Key) string {
	return redisKeyPrefix + key.TenantID + ":" + key.Fingerprint
}

func (c *RedisCache) Get(ctx context.Context, key Key) (engine.Result, bool, error) {
	raw, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return engine.Result{}, false, nil
		}
		return engine.Result{}, false, fmt.Errorf("cache: redis get: %w", err)
	}
	var result engine.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return engine.Result{}, false, fmt.Errorf("cache: decode cached result: %w", err)
	}
	return result, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key Key, result engine.Result, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache: encode result: %w", err)
	}
	if err := c.client.Set(ctx, redisKey(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}
