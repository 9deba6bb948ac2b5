package ratelimit

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QWED-AI/qwed-verification/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New("test", "error", "json")
}

func TestDefaultConfigMatchesDocumentedLimits(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 100, cfg.PerKeyLimit)
	assert.Equal(t, 1000, cfg.GlobalLimit)
}

func TestAllowBlocks101stRapidRequestFromOneKey(t *testing.T) {
	limiter := New(DefaultConfig(), testLogger())

	for i := 0; i < 100; i++ {
		decision := limiter.Allow("key-1")
		require.Truef(t, decision.Allowed, "request %d should be allowed", i+1)
	}

	decision := limiter.Allow("key-1")
	require.False(t, decision.Allowed)
	assert.Equal(t, "key", decision.Scope)
	assert.Greater(t, decision.RetryAfterSeconds, 0)
}

func TestAllowKeepsKeysIndependent(t *testing.T) {
	limiter := New(DefaultConfig(), testLogger())

	for i := 0; i < 100; i++ {
		require.True(t, limiter.Allow("key-1").Allowed)
	}
	require.False(t, limiter.Allow("key-1").Allowed)

	// A second key has its own bucket and is unaffected by the first.
	require.True(t, limiter.Allow("key-2").Allowed)
}

func TestAllowBlocksPastGlobalLimit(t *testing.T) {
	limiter := New(Config{
		PerKeyLimit:  100000,
		PerKeyWindow: time.Minute,
		GlobalLimit:  1000,
		GlobalWindow: time.Minute,
	}, testLogger())

	for i := 0; i < 1000; i++ {
		key := "key-" + strconv.Itoa(i)
		require.Truef(t, limiter.Allow(key).Allowed, "request %d should be allowed", i+1)
	}

	decision := limiter.Allow("key-overflow")
	require.False(t, decision.Allowed)
	assert.Equal(t, "global", decision.Scope)
}

func TestCleanupResetsOversizedKeyMap(t *testing.T) {
	limiter := New(DefaultConfig(), testLogger())
	for i := 0; i < 10001; i++ {
		limiter.perKeyLimiter(string(rune(i)))
	}
	require.Greater(t, limiter.KeyCount(), 10000)

	limiter.Cleanup()
	assert.Equal(t, 0, limiter.KeyCount())
}
