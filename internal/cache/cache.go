// Package cache memoizes verification results for the engines whose
// outputs are a pure function of their input, so identical requests never
// re-run an engine (or a sandbox, or a provider call) twice.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/QWED-AI/qwed-verification/internal/engine"
)

// DefaultTTL is how long a cached result stays valid once written.
const DefaultTTL = time.Hour

// cacheableKinds lists the engine kinds whose result is a deterministic
// function of (kind, payload): re-running them against the same input
// always reaches the same verdict, so caching never serves a stale
// answer for a query that could now resolve differently. fact and image
// consult external, non-deterministic judgment (an NLI helper or a
// multimodal provider) and are deliberately excluded.
var cacheableKinds = map[string]bool{
	"math":  true,
	"logic": true,
	"code":  true,
	"sql":   true,
	"stats": true,
}

// Cacheable reports whether a result for the given engine kind and
// verdict is eligible to be cached. logic's UNKNOWN verdict (solver
// timeout) is excluded even though the logic kind is otherwise
// cacheable: a timeout is a property of the deadline granted to that
// particular call, not of the query itself, so it must not be memoized
// as if it were a decided answer.
func Cacheable(kind string, verdict engine.Verdict) bool {
	if !cacheableKinds[kind] {
		return false
	}
	if kind == "logic" && verdict == engine.VerdictUnknown {
		return false
	}
	return true
}

// CacheableKind reports whether kind belongs to the deterministic set at
// all, independent of any particular verdict. Callers use this before a
// result exists yet, to decide whether a cache lookup is worth attempting
// once the payload has been translated.
func CacheableKind(kind string) bool {
	return cacheableKinds[kind]
}

// Fingerprint derives a content-addressed key from an engine kind and the
// canonical bytes of its translated payload. It never incorporates the
// tenant: tenant scoping is the caller's job (see Key), keeping the
// fingerprint itself reusable for a cross-tenant hit-rate audit without
// exposing any tenant's actual cached value.
func Fingerprint(kind string, canonicalPayload []byte) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(canonicalPayload)
	return hex.EncodeToString(h.Sum(nil))
}

// Key scopes a fingerprint to the tenant it was computed for. Two tenants
// submitting byte-identical payloads get distinct cache entries: nothing
// in this package ever looks up or stores a value under the fingerprint
// alone.
type Key struct {
	TenantID    string
	Fingerprint string
}

func (k Key) composite() string {
	return k.TenantID + "\x00" + k.Fingerprint
}

// Cache is the verification-result cache contract. Implementations must
// treat a composite (tenant, fingerprint) key as opaque and must never
// serve one tenant's entry for another tenant's key.
type Cache interface {
	Get(ctx context.Context, key Key) (engine.Result, bool, error)
	Set(ctx context.Context, key Key, result engine.Result, ttl time.Duration) error
}
