// Package tenant resolves API keys to organizations and propagates tenant
// identity through the request context.
package tenant

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	qerrors "github.com/QWED-AI/qwed-verification/internal/errors"
)

// Organization is a billable tenant of the gateway.
type Organization struct {
	ID        string
	Name      string
	Plan      string
	CreatedAt time.Time
	Suspended bool
}

// APIKey is an issued credential, stored hashed; Prefix is the short,
// non-secret portion surfaced in listings: the key's first 12 characters,
// e.g. "qwed_live_ab".
type APIKey struct {
	ID         string
	OrgID      string
	Prefix     string
	HashedKey  string
	Role       string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	Revoked    bool
}

// Context is the resolved tenant identity attached to a request. Role is
// the permission level of the specific key that authenticated the
// request ("member" or "admin"), not a property of the organization: two
// keys on the same org can carry different roles.
type Context struct {
	Org   Organization
	KeyID string
	Role  string
}

// IsAdmin reports whether the resolved key carries the admin role.
func (c Context) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// RoleAdmin and RoleMember are the two permission levels a resolved API
// key can carry.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type ctxKeyType struct{}

var ctxKey = ctxKeyType{}

// WithContext attaches a resolved tenant Context to ctx.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey, tc)
}

// FromContext retrieves the tenant Context attached by WithContext.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey).(Context)
	return tc, ok
}

const keyPrefixLength = 12

// GenerateKey mints a new raw API key of the form "qwed_live_<40 hex chars>"
// along with its bcrypt hash and display prefix. The raw value is returned
// to the caller exactly once and never persisted.
func GenerateKey() (raw string, prefix string, hashed string, err error) {
	buf := make([]byte, 20)
	if _, err = rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("generate key material: %w", err)
	}
	raw = "qwed_live_" + hex.EncodeToString(buf)
	prefix = raw[:keyPrefixLength]

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("hash key: %w", err)
	}
	return raw, prefix, string(hashBytes), nil
}

// VerifyKey checks raw against a stored bcrypt hash.
func VerifyKey(hashed, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(raw)) == nil
}

// Prefix extracts the display prefix from a raw key without hashing it.
func Prefix(raw string) string {
	if len(raw) <= keyPrefixLength {
		return raw
	}
	return raw[:keyPrefixLength]
}

// Resolver looks up tenant identity for an API key. Implementations back
// this with the Postgres store; it is an interface so request-path code
// never depends on the storage package directly.
type Resolver interface {
	ResolveAPIKey(ctx context.Context, rawKey string) (Context, error)
}

// ExtractBearer pulls the raw API key out of an Authorization header value
// of the form "Bearer qwed_live_...".
func ExtractBearer(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", qerrors.Unauthorized("missing bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", qerrors.Unauthorized("empty bearer token")
	}
	return token, nil
}
