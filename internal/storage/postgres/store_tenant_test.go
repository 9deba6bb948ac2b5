package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/QWED-AI/qwed-verification/internal/tenant"
)

func newMockStore(t *testing.T) (*TenantStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewTenantStore(sqlxDB), mock, func() { db.Close() }
}

func TestResolveAPIKeyReturnsTenantContext(t *testing.T) {
	store, mock, closeFn := newMockStore(t)
	defer closeFn()

	raw, prefix, hashed, err := tenant.GenerateKey()
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, org_id, prefix, hashed_key, role, revoked, created_at, last_used_at").
		WithArgs(prefix).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "prefix", "hashed_key", "role", "revoked", "created_at", "last_used_at"}).
			AddRow("key-1", "org-1", prefix, hashed, tenant.RoleMember, false, time.Now(), nil))

	mock.ExpectQuery("SELECT id, name, plan, suspended, created_at FROM organizations").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "plan", "suspended", "created_at"}).
			AddRow("org-1", "Acme", "pro", false, time.Now()))

	mock.ExpectExec("UPDATE api_keys SET last_used_at").WillReturnResult(sqlmock.NewResult(0, 1))

	tc, err := store.ResolveAPIKey(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, "org-1", tc.Org.ID)
	require.Equal(t, tenant.RoleMember, tc.Role)

	// touchLastUsed runs in its own goroutine off the request path; give
	// it a moment before checking expectations.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveAPIKeyRejectsSuspendedOrg(t *testing.T) {
	store, mock, closeFn := newMockStore(t)
	defer closeFn()

	raw, prefix, hashed, err := tenant.GenerateKey()
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, org_id, prefix, hashed_key, role, revoked, created_at, last_used_at").
		WithArgs(prefix).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "prefix", "hashed_key", "role", "revoked", "created_at", "last_used_at"}).
			AddRow("key-1", "org-1", prefix, hashed, tenant.RoleMember, false, time.Now(), nil))

	mock.ExpectQuery("SELECT id, name, plan, suspended, created_at FROM organizations").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "plan", "suspended", "created_at"}).
			AddRow("org-1", "Acme", "pro", true, time.Now()))

	_, err = store.ResolveAPIKey(context.Background(), raw)
	require.Error(t, err)
}

func TestResolveAPIKeyRejectsUnknownPrefix(t *testing.T) {
	store, mock, closeFn := newMockStore(t)
	defer closeFn()

	mock.ExpectQuery("SELECT id, org_id, prefix, hashed_key, role, revoked, created_at, last_used_at").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "prefix", "hashed_key", "role", "revoked", "created_at", "last_used_at"}))

	_, err := store.ResolveAPIKey(context.Background(), "qwed_live_unknown")
	require.Error(t, err)
}
