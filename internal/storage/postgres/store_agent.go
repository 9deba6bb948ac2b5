package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/QWED-AI/qwed-verification/internal/agent"
)

// AgentStore is the durable implementation of agent.Store.
type AgentStore struct {
	db *sqlx.DB
}

// NewAgentStore wraps an open connection.
func NewAgentStore(db *sqlx.DB) *AgentStore {
	return &AgentStore{db: db}
}

type agentRow struct {
	ID          string         `db:"id"`
	TenantID    string         `db:"tenant_id"`
	Name        string         `db:"name"`
	Permissions pq.StringArray `db:"permissions"`
	KeyPrefix   string         `db:"key_prefix"`
	KeyHash     string         `db:"key_hash"`
	Revoked     bool           `db:"revoked"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (s *AgentStore) Register(ctx context.Context, a agent.Agent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, tenant_id, name, permissions, key_prefix, key_hash, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.TenantID, a.Name, pq.Array(a.Permissions), a.KeyPrefix, a.KeyHash, a.Revoked, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

func (s *AgentStore) Get(ctx context.Context, tenantID, agentID string) (agent.Agent, error) {
	var row agentRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, tenant_id, name, permissions, key_prefix, key_hash, revoked, created_at
		FROM agents WHERE id = $1 AND tenant_id = $2
	`, agentID, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return agent.Agent{}, agent.ErrNotFound
	}
	if err != nil {
		return agent.Agent{}, fmt.Errorf("query agent: %w", err)
	}
	return agent.Agent{
		ID:          row.ID,
		TenantID:    row.TenantID,
		Name:        row.Name,
		Permissions: []string(row.Permissions),
		KeyPrefix:   row.KeyPrefix,
		KeyHash:     row.KeyHash,
		CreatedAt:   row.CreatedAt,
		Revoked:     row.Revoked,
	}, nil
}

func (s *AgentStore) RecordActivity(ctx context.Context, a agent.Activity) error {
	detailsJSON, err := json.Marshal(a.Details)
	if err != nil {
		return fmt.Errorf("marshal activity details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_activity (agent_id, tenant_id, action, result, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.AgentID, a.TenantID, a.Action, a.Result, detailsJSON, a.Timestamp)
	if err != nil {
		return fmt.Errorf("insert agent activity: %w", err)
	}
	return nil
}

func (s *AgentStore) ListActivity(ctx context.Context, tenantID, agentID string, limit int) ([]agent.Activity, error) {
	type activityRow struct {
		ID        int64     `db:"id"`
		AgentID   string    `db:"agent_id"`
		TenantID  string    `db:"tenant_id"`
		Action    string    `db:"action"`
		Result    string    `db:"result"`
		Details   []byte    `db:"details"`
		CreatedAt time.Time `db:"created_at"`
	}

	var rows []activityRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, agent_id, tenant_id, action, result, details, created_at
		FROM agent_activity
		WHERE tenant_id = $1 AND agent_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, tenantID, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query agent activity: %w", err)
	}

	out := make([]agent.Activity, 0, len(rows))
	for _, r := range rows {
		var details map[string]interface{}
		if len(r.Details) > 0 {
			if err := json.Unmarshal(r.Details, &details); err != nil {
				return nil, fmt.Errorf("unmarshal activity details: %w", err)
			}
		}
		out = append(out, agent.Activity{
			ID:        r.ID,
			AgentID:   r.AgentID,
			TenantID:  r.TenantID,
			Action:    r.Action,
			Result:    r.Result,
			Details:   details,
			Timestamp: r.CreatedAt,
		})
	}
	return out, nil
}
