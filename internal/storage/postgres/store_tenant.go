package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	qerrors "github.com/QWED-AI/qwed-verification/internal/errors"
	"github.com/QWED-AI/qwed-verification/internal/tenant"
)

var errUnknownAPIKey = errors.New("unknown or revoked api key")

// TenantStore resolves API keys to tenant identity and persists the
// organizations and keys behind them. It is the Postgres-backed
// implementation of tenant.Resolver.
type TenantStore struct {
	db *sqlx.DB
}

// NewTenantStore wraps an open connection.
func NewTenantStore(db *sqlx.DB) *TenantStore {
	return &TenantStore{db: db}
}

type organizationRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Plan      string    `db:"plan"`
	Suspended bool      `db:"suspended"`
	CreatedAt time.Time `db:"created_at"`
}

type apiKeyRow struct {
	ID         string       `db:"id"`
	OrgID      string       `db:"org_id"`
	Prefix     string       `db:"prefix"`
	HashedKey  string       `db:"hashed_key"`
	Role       string       `db:"role"`
	Revoked    bool         `db:"revoked"`
	CreatedAt  time.Time    `db:"created_at"`
	LastUsedAt sql.NullTime `db:"last_used_at"`
}

// CreateOrganization inserts a new tenant.
func (s *TenantStore) CreateOrganization(ctx context.Context, org tenant.Organization) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, plan, suspended, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, org.ID, org.Name, org.Plan, org.Suspended, org.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

// CreateAPIKey persists an already-hashed key record.
func (s *TenantStore) CreateAPIKey(ctx context.Context, key tenant.APIKey) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, org_id, prefix, hashed_key, role, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, key.ID, key.OrgID, key.Prefix, key.HashedKey, key.Role, key.Revoked, key.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// ResolveAPIKey implements tenant.Resolver: it looks up every key sharing
// rawKey's display prefix (collisions are possible though vanishingly
// unlikely, so this must not assume uniqueness), verifies rawKey against
// each candidate's bcrypt hash, and returns the resolved tenant identity
// for the first match, or a Forbidden error if that match's organization
// is suspended.
func (s *TenantStore) ResolveAPIKey(ctx context.Context, rawKey string) (tenant.Context, error) {
	prefix := tenant.Prefix(rawKey)

	var keys []apiKeyRow
	if err := s.db.SelectContext(ctx, &keys, `
		SELECT id, org_id, prefix, hashed_key, role, revoked, created_at, last_used_at
		FROM api_keys
		WHERE prefix = $1 AND revoked = false
	`, prefix); err != nil {
		return tenant.Context{}, fmt.Errorf("query api keys: %w", err)
	}

	for _, k := range keys {
		if !tenant.VerifyKey(k.HashedKey, rawKey) {
			continue
		}

		var org organizationRow
		if err := s.db.GetContext(ctx, &org, `
			SELECT id, name, plan, suspended, created_at FROM organizations WHERE id = $1
		`, k.OrgID); err != nil {
			return tenant.Context{}, fmt.Errorf("load organization: %w", err)
		}
		if org.Suspended {
			return tenant.Context{}, qerrors.Forbidden("organization suspended")
		}

		go s.touchLastUsed(k.ID)

		return tenant.Context{
			Org: tenant.Organization{
				ID:        org.ID,
				Name:      org.Name,
				Plan:      org.Plan,
				CreatedAt: org.CreatedAt,
				Suspended: org.Suspended,
			},
			KeyID: k.ID,
			Role:  k.Role,
		}, nil
	}

	return tenant.Context{}, qerrors.InvalidKey(errUnknownAPIKey)
}

// touchLastUsed records key usage off the request's critical path; a
// failure here must never fail the request it is tracking.
func (s *TenantStore) touchLastUsed(keyID string) {
	_, _ = s.db.Exec(`UPDATE api_keys SET last_used_at = now() WHERE id = $1`, keyID)
}
