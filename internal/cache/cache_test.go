package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QWED-AI/qwed-verification/internal/engine"
)

func TestCacheableExcludesFactAndImage(t *testing.T) {
	assert.True(t, Cacheable("math", engine.VerdictVerified))
	assert.True(t, Cacheable("sql", engine.VerdictUnsafe))
	assert.False(t, Cacheable("fact", engine.VerdictSupported))
	assert.False(t, Cacheable("image", engine.VerdictVerified))
}

func TestCacheableExcludesLogicUnknown(t *testing.T) {
	assert.True(t, Cacheable("logic", engine.VerdictVerified))
	assert.True(t, Cacheable("logic", engine.VerdictRefuted))
	assert.False(t, Cacheable("logic", engine.VerdictUnknown))
}

func TestFingerprintIsStableAndKindSensitive(t *testing.T) {
	payload := []byte(`{"expression":"2+2"}`)
	a := Fingerprint("math", payload)
	b := Fingerprint("math", payload)
	c := Fingerprint("logic", payload)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestLRUCacheRoundTrip(t *testing.T) {
	c, err := NewLRUCache(10)
	require.NoError(t, err)

	key := Key{TenantID: "tenant-a", Fingerprint: "fp1"}
	_, ok, err := c.Get(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(context.Background(), key, engine.Result{Verdict: engine.VerdictVerified}, time.Minute))
	result, ok, err := c.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, engine.VerdictVerified, result.Verdict)
}

func TestLRUCacheExpiresEntries(t *testing.T) {
	c, err := NewLRUCache(10)
	require.NoError(t, err)

	key := Key{TenantID: "tenant-a", Fingerprint: "fp1"}
	require.NoError(t, c.Set(context.Background(), key, engine.Result{Verdict: engine.VerdictVerified}, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.Get(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLRUCacheNeverCrossesTenants(t *testing.T) {
	c, err := NewLRUCache(10)
	require.NoError(t, err)

	require.NoError(t, c.Set(context.Background(), Key{TenantID: "tenant-a", Fingerprint: "fp1"}, engine.Result{Verdict: engine.VerdictVerified}, time.Minute))

	_, ok, err := c.Get(context.Background(), Key{TenantID: "tenant-b", Fingerprint: "fp1"})
	require.NoError(t, err)
	assert.False(t, ok)
}

type memoryL2 struct {
	store map[string]engine.Result
}

func newMemoryL2() *memoryL2 {
	return &memoryL2{store: make(map[string]engine.Result)}
}

func (m *memoryL2) Get(_ context.Context, key Key) (engine.Result, bool, error) {
	result, ok := m.store[key.composite()]
	return result, ok, nil
}

func (m *memoryL2) Set(_ context.Context, key Key, result engine.Result, _ time.Duration) error {
	m.store[key.composite()] = result
	return nil
}

func TestTieredCacheFallsBackToL2AndBackfillsL1(t *testing.T) {
	l1, err := NewLRUCache(10)
	require.NoError(t, err)
	l2 := newMemoryL2()
	tiered := NewTieredCache(l1, l2, nil)

	key := Key{TenantID: "tenant-a", Fingerprint: "fp1"}
	require.NoError(t, l2.Set(context.Background(), key, engine.Result{Verdict: engine.VerdictCorrected}, time.Minute))

	result, ok, err := tiered.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, engine.VerdictCorrected, result.Verdict)

	l1Result, ok, err := l1.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, engine.VerdictCorrected, l1Result.Verdict)
}

func TestTieredCacheWorksWithNilL2(t *testing.T) {
	l1, err := NewLRUCache(10)
	require.NoError(t, err)
	tiered := NewTieredCache(l1, nil, nil)

	key := Key{TenantID: "tenant-a", Fingerprint: "fp1"}
	require.NoError(t, tiered.Set(context.Background(), key, engine.Result{Verdict: engine.VerdictVerified}, time.Minute))

	result, ok, err := tiered.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, engine.VerdictVerified, result.Verdict)
}
