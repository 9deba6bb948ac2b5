package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/QWED-AI/qwed-verification/internal/audit"
)

// AuditStore is the durable implementation of audit.Store: every Append
// runs inside its own transaction so a partial write can never leave a
// gap in the hash chain's sequence numbers.
type AuditStore struct {
	db *sqlx.DB
}

// NewAuditStore wraps an open connection.
func NewAuditStore(db *sqlx.DB) *AuditStore {
	return &AuditStore{db: db}
}

type auditEntryRow struct {
	Sequence     int64           `db:"sequence"`
	TenantID     string          `db:"tenant_id"`
	Actor        string          `db:"actor"`
	Action       string          `db:"action"`
	Resource     string          `db:"resource"`
	ResourceID   string          `db:"resource_id"`
	Result       string          `db:"result"`
	Details      []byte          `db:"details"`
	PreviousHash []byte          `db:"previous_hash"`
	EntryHash    []byte          `db:"entry_hash"`
	HMAC         []byte          `db:"hmac"`
	CreatedAt    time.Time       `db:"created_at"`
}

func (s *AuditStore) Append(ctx context.Context, entry audit.Entry) error {
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit append: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_entries (
			sequence, tenant_id, actor, action, resource, resource_id, result,
			details, previous_hash, entry_hash, hmac, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, entry.Sequence, entry.TenantID, entry.Actor, entry.Action, entry.Resource,
		entry.ResourceID, entry.Result, detailsJSON, entry.PreviousHash,
		entry.EntryHash, entry.HMAC, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return tx.Commit()
}

func (s *AuditStore) Tail(ctx context.Context) (audit.Entry, error) {
	var row auditEntryRow
	err := s.db.GetContext(ctx, &row, `
		SELECT sequence, tenant_id, actor, action, resource, resource_id, result,
		       details, previous_hash, entry_hash, hmac, created_at
		FROM audit_entries ORDER BY sequence DESC LIMIT 1
	`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return audit.Entry{}, audit.ErrNoEntries
		}
		return audit.Entry{}, fmt.Errorf("query audit tail: %w", err)
	}
	return row.toEntry()
}

func (s *AuditStore) Walk(ctx context.Context, fn func(audit.Entry) error) error {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT sequence, tenant_id, actor, action, resource, resource_id, result,
		       details, previous_hash, entry_hash, hmac, created_at
		FROM audit_entries ORDER BY sequence ASC
	`)
	if err != nil {
		return fmt.Errorf("query audit chain: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row auditEntryRow
		if err := rows.StructScan(&row); err != nil {
			return fmt.Errorf("scan audit entry: %w", err)
		}
		entry, err := row.toEntry()
		if err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (row auditEntryRow) toEntry() (audit.Entry, error) {
	var details map[string]interface{}
	if len(row.Details) > 0 {
		if err := json.Unmarshal(row.Details, &details); err != nil {
			return audit.Entry{}, fmt.Errorf("unmarshal audit details: %w", err)
		}
	}
	return audit.Entry{
		Sequence:     row.Sequence,
		Timestamp:    row.CreatedAt,
		TenantID:     row.TenantID,
		Actor:        row.Actor,
		Action:       row.Action,
		Resource:     row.Resource,
		ResourceID:   row.ResourceID,
		Result:       row.Result,
		Details:      details,
		PreviousHash: row.PreviousHash,
		EntryHash:    row.EntryHash,
		HMAC:         row.HMAC,
	}, nil
}
