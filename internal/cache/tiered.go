package cache

import (
	"context"
	"time"

	"github.com/QWED-AI/qwed-verification/internal/engine"
	"github.com/QWED-AI/qwed-verification/internal/logging"
)

// TieredCache checks the in-process LRU first and falls back to a shared
// Redis tier on a miss, backfilling the LRU from any Redis hit. Redis is
// optional: a nil second tier makes this behave exactly like the LRU
// alone.
type TieredCache struct {
	l1     *LRUCache
	l2     Cache
	logger *logging.Logger
}

// NewTieredCache composes l1 (required) with an optional l2. Pass a nil
// l2 to run LRU-only.
func NewTieredCache(l1 *LRUCache, l2 Cache, logger *logging.Logger) *TieredCache {
	return &TieredCache{l1: l1, l2: l2, logger: logger}
}

func (c *TieredCache) Get(ctx context.Context, key Key) (engine.Result, bool, error) {
	if result, ok, err := c.l1.Get(ctx, key); err == nil && ok {
		return result, true, nil
	}

	if c.l2 == nil {
		return engine.Result{}, false, nil
	}

	result, ok, err := c.l2.Get(ctx, key)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn(ctx, "cache: redis tier read failed, treating as miss", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return engine.Result{}, false, nil
	}
	if !ok {
		return engine.Result{}, false, nil
	}

	_ = c.l1.Set(ctx, key, result, DefaultTTL)
	return result, true, nil
}

func (c *TieredCache) Set(ctx context.Context, key Key, result engine.Result, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, result, ttl); err != nil {
		return err
	}
	if c.l2 == nil {
		return nil
	}
	if err := c.l2.Set(ctx, key, result, ttl); err != nil {
		if c.logger != nil {
			c.logger.Warn(ctx, "cache: redis tier write failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	return nil
}
