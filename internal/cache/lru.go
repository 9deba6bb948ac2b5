package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/QWED-AI/qwed-verification/internal/engine"
)

type lruEntry struct {
	result    engine.Result
	expiresAt time.Time
}

// LRUCache is the in-process, size-bounded cache tier. golang-lru handles
// eviction by recency; expiry is checked on read since the library itself
// has no notion of per-entry TTL.
type LRUCache struct {
	entries *lru.Cache[string, lruEntry]
}

// NewLRUCache builds an LRUCache holding at most capacity live entries.
func NewLRUCache(capacity int) (*LRUCache, error) {
	if capacity <= 0 {
		capacity = 10000
	}
	c, err := lru.New[string, lruEntry](capacity)
	if err != nil {
		return nil, err
	}
	return &LRUCache{entries: c}, nil
}

func (c *LRUCache) Get(_ context.Context, key Key) (engine.Result, bool, error) {
	composite := key.composite()
	entry, ok := c.entries.Get(composite)
	if !ok {
		return engine.Result{}, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.entries.Remove(composite)
		return engine.Result{}, false, nil
	}
	return entry.result, true, nil
}

func (c *LRUCache) Set(_ context.Context, key Key, result engine.Result, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.entries.Add(key.composite(), lruEntry{result: result, expiresAt: time.Now().Add(ttl)})
	return nil
}
