package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/QWED-AI/qwed-verification/internal/audit"
)

func newAuditMock(t *testing.T) (*AuditStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewAuditStore(sqlxDB), mock, func() { db.Close() }
}

func TestAppendWritesInsideTransaction(t *testing.T) {
	store, mock, closeFn := newAuditMock(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry := audit.Entry{
		Sequence:  1,
		Timestamp: time.Now(),
		TenantID:  "org-1",
		Actor:     "key-1",
		Action:    "verify.math",
		Resource:  "verification",
		Result:    "VERIFIED",
		EntryHash: []byte{1, 2, 3},
		HMAC:      []byte{4, 5, 6},
	}
	require.NoError(t, store.Append(context.Background(), entry))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendRollsBackOnInsertFailure(t *testing.T) {
	store, mock, closeFn := newAuditMock(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_entries").WillReturnError(errors.New("insert failed"))
	mock.ExpectRollback()

	entry := audit.Entry{Sequence: 1, TenantID: "org-1"}
	err := store.Append(context.Background(), entry)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTailReturnsErrNoEntriesWhenEmpty(t *testing.T) {
	store, mock, closeFn := newAuditMock(t)
	defer closeFn()

	mock.ExpectQuery("SELECT sequence, tenant_id, actor, action, resource, resource_id, result").
		WillReturnRows(sqlmock.NewRows([]string{
			"sequence", "tenant_id", "actor", "action", "resource", "resource_id",
			"result", "details", "previous_hash", "entry_hash", "hmac", "created_at",
		}))

	_, err := store.Tail(context.Background())
	require.ErrorIs(t, err, audit.ErrNoEntries)
}

func TestWalkVisitsEntriesInSequenceOrder(t *testing.T) {
	store, mock, closeFn := newAuditMock(t)
	defer closeFn()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"sequence", "tenant_id", "actor", "action", "resource", "resource_id",
		"result", "details", "previous_hash", "entry_hash", "hmac", "created_at",
	}).
		AddRow(int64(1), "org-1", "key-1", "verify.math", "verification", "", "VERIFIED", nil, nil, []byte{1}, []byte{2}, now).
		AddRow(int64(2), "org-1", "key-1", "verify.logic", "verification", "", "VERIFIED", nil, []byte{1}, []byte{3}, []byte{4}, now)

	mock.ExpectQuery("SELECT sequence, tenant_id, actor, action, resource, resource_id, result").
		WillReturnRows(rows)

	var seen []int64
	err := store.Walk(context.Background(), func(e audit.Entry) error {
		seen = append(seen, e.Sequence)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, seen)
}
