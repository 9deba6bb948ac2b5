package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSecret() []byte {
	return []byte("test-hmac-secret-do-not-use-in-prod")
}

func appendSample(t *testing.T, w *Writer, action string) Entry {
	t.Helper()
	e, err := w.Append(context.Background(), Entry{
		TenantID: "tenant-1",
		Actor:    "svc-gateway",
		Action:   action,
		Resource: "verification_log",
		Result:   "VERIFIED",
		Details:  map[string]interface{}{"latency_ms": 12},
	})
	require.NoError(t, err)
	return e
}

func TestWriterChainsSequentialEntries(t *testing.T) {
	store := NewMemoryStore()
	w, err := NewWriter(context.Background(), store, testSecret(), nil)
	require.NoError(t, err)

	first := appendSample(t, w, "verify_math")
	second := appendSample(t, w, "verify_logic")

	assert.Equal(t, genesisHash, first.PreviousHash)
	assert.Equal(t, first.EntryHash, second.PreviousHash)
	assert.NotEmpty(t, second.EntryHash)
	assert.NotEmpty(t, second.HMAC)
}

func TestWriterRedactsPIIBeforeHashing(t *testing.T) {
	store := NewMemoryStore()
	w, err := NewWriter(context.Background(), store, testSecret(), nil)
	require.NoError(t, err)

	e, err := w.Append(context.Background(), Entry{
		TenantID: "tenant-1",
		Action:   "verify_fact",
		Result:   "SUPPORTED",
		Details:  map[string]interface{}{"note": "contact jane.doe@example.com for follow-up"},
	})
	require.NoError(t, err)
	assert.NotContains(t, e.Details["note"], "jane.doe@example.com")
}

func TestVerifierWalkDetectsTamperedHash(t *testing.T) {
	store := NewMemoryStore()
	w, err := NewWriter(context.Background(), store, testSecret(), nil)
	require.NoError(t, err)

	appendSample(t, w, "verify_math")
	appendSample(t, w, "verify_sql")

	store.mu.Lock()
	store.entries[0].EntryHash[0] ^= 0xFF
	store.mu.Unlock()

	v := NewVerifier(store, testSecret())
	brk, err := v.Walk(context.Background())
	require.NoError(t, err)
	require.NotNil(t, brk)
	assert.Equal(t, BreakHashMismatch, brk.Kind)
}

func TestVerifierWalkDetectsTamperedLink(t *testing.T) {
	store := NewMemoryStore()
	w, err := NewWriter(context.Background(), store, testSecret(), nil)
	require.NoError(t, err)

	appendSample(t, w, "verify_math")
	second := appendSample(t, w, "verify_sql")
	appendSample(t, w, "verify_code")

	store.mu.Lock()
	store.entries[2].PreviousHash = second.PreviousHash // rewire around entry 2
	store.mu.Unlock()

	v := NewVerifier(store, testSecret())
	brk, err := v.Walk(context.Background())
	require.NoError(t, err)
	require.NotNil(t, brk)
	assert.Equal(t, BreakLinkMismatch, brk.Kind)
}

func TestVerifierWalkDetectsForgedHMAC(t *testing.T) {
	store := NewMemoryStore()
	w, err := NewWriter(context.Background(), store, testSecret(), nil)
	require.NoError(t, err)

	appendSample(t, w, "verify_math")

	store.mu.Lock()
	store.entries[0].HMAC[0] ^= 0xFF
	store.mu.Unlock()

	v := NewVerifier(store, testSecret())
	brk, err := v.Walk(context.Background())
	require.NoError(t, err)
	require.NotNil(t, brk)
	assert.Equal(t, BreakHMACMismatch, brk.Kind)
}

func TestVerifierWalkPassesOnUntamperedChain(t *testing.T) {
	store := NewMemoryStore()
	w, err := NewWriter(context.Background(), store, testSecret(), nil)
	require.NoError(t, err)

	appendSample(t, w, "verify_math")
	appendSample(t, w, "verify_logic")
	appendSample(t, w, "verify_sql")

	v := NewVerifier(store, testSecret())
	brk, err := v.Walk(context.Background())
	require.NoError(t, err)
	assert.Nil(t, brk)
}

func TestNewWriterResumesFromExistingTail(t *testing.T) {
	store := NewMemoryStore()
	w1, err := NewWriter(context.Background(), store, testSecret(), nil)
	require.NoError(t, err)
	last := appendSample(t, w1, "verify_math")

	w2, err := NewWriter(context.Background(), store, testSecret(), nil)
	require.NoError(t, err)
	next := appendSample(t, w2, "verify_logic")

	assert.Equal(t, last.EntryHash, next.PreviousHash)
}
