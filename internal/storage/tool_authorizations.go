package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/clasper-run/clasper/internal/model"
)

// InsertToolAuthorization records one per-tool ruling for an execution.
func (s *Store) InsertToolAuthorization(ta model.ToolAuthorization) error {
	var grantedScope interface{}
	if ta.GrantedScope != nil {
		b, err := json.Marshal(ta.GrantedScope)
		if err != nil {
			return fmt.Errorf("marshal granted scope: %w", err)
		}
		grantedScope = string(b)
	}

	var expiresAt interface{}
	if ta.ExpiresAt != nil {
		expiresAt = *ta.ExpiresAt
	}

	_, err := s.db.Exec(`
		INSERT INTO tool_authorizations (execution_id, adapter_id, tool, tool_group, decision, policy_id, reason, granted_scope, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ta.ExecutionID, ta.AdapterID, ta.Tool, ta.ToolGroup, string(ta.Decision), ta.PolicyID, ta.Reason, grantedScope, expiresAt, ta.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert tool authorization: %w", err)
	}
	return nil
}

// ListToolAuthorizations returns every ruling recorded for one execution,
// oldest first.
func (s *Store) ListToolAuthorizations(executionID string) ([]model.ToolAuthorization, error) {
	rows, err := s.db.Query(`
		SELECT execution_id, adapter_id, tool, tool_group, decision, policy_id, reason, granted_scope, expires_at, created_at
		FROM tool_authorizations WHERE execution_id = ? ORDER BY id
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list tool authorizations: %w", err)
	}
	defer rows.Close()

	var out []model.ToolAuthorization
	for rows.Next() {
		var ta model.ToolAuthorization
		var decision string
		var grantedScope sql.NullString
		var expiresAt sql.NullTime

		if err := rows.Scan(&ta.ExecutionID, &ta.AdapterID, &ta.Tool, &ta.ToolGroup, &decision, &ta.PolicyID, &ta.Reason, &grantedScope, &expiresAt, &ta.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tool authorization: %w", err)
		}

		ta.Decision = model.Effect(decision)
		if grantedScope.Valid {
			var gs model.GrantedScope
			if err := json.Unmarshal([]byte(grantedScope.String), &gs); err != nil {
				return nil, fmt.Errorf("unmarshal granted scope: %w", err)
			}
			ta.GrantedScope = &gs
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			ta.ExpiresAt = &t
		}

		out = append(out, ta)
	}
	return out, rows.Err()
}
