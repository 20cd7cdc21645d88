package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/clasper-run/clasper/internal/model"
)

// UpsertPolicy inserts or replaces a policy by ID.
func (s *Store) UpsertPolicy(p model.Policy) error {
	conditions, err := json.Marshal(p.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}

	var grantedScope []byte
	if p.Effect.GrantedScope != nil {
		if grantedScope, err = json.Marshal(p.Effect.GrantedScope); err != nil {
			return fmt.Errorf("marshal granted scope: %w", err)
		}
	}

	_, err = s.db.Exec(`
		INSERT INTO policies (
			policy_id, tenant_id, workspace_id, subject_type, subject_name, conditions,
			effect, required_role, granted_scope, precedence, enabled, explanation,
			is_fallback, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (policy_id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			workspace_id = excluded.workspace_id,
			subject_type = excluded.subject_type,
			subject_name = excluded.subject_name,
			conditions = excluded.conditions,
			effect = excluded.effect,
			required_role = excluded.required_role,
			granted_scope = excluded.granted_scope,
			precedence = excluded.precedence,
			enabled = excluded.enabled,
			explanation = excluded.explanation,
			is_fallback = excluded.is_fallback,
			updated_at = excluded.updated_at
	`, p.PolicyID, p.Scope.TenantID, p.Scope.WorkspaceID, string(p.Subject.Type), p.Subject.Name, string(conditions),
		string(p.Effect.Decision), p.Effect.RequiredRole, nullableBytes(grantedScope), p.Precedence, p.Enabled, p.Explanation,
		p.IsFallback, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert policy: %w", err)
	}
	return nil
}

// GetPolicy looks up a policy by ID.
func (s *Store) GetPolicy(policyID string) (model.Policy, error) {
	row := s.db.QueryRow(policySelect+" WHERE policy_id = ?", policyID)
	return scanPolicy(row)
}

// ListPoliciesInScope returns enabled policies whose scope covers tenantID
// and (if set) workspaceID, applicable to subjectType/subjectName or a
// wildcard subject, ordered by precedence descending.
func (s *Store) ListPoliciesInScope(tenantID, workspaceID string, subjectType model.SubjectType, subjectName string) ([]model.Policy, error) {
	rows, err := s.db.Query(policySelect+`
		WHERE tenant_id = ?
		  AND (workspace_id = '' OR workspace_id = ?)
		  AND subject_type = ?
		  AND (subject_name = '' OR subject_name = ?)
		  AND enabled = TRUE
		ORDER BY precedence DESC
	`, tenantID, workspaceID, string(subjectType), subjectName)
	if err != nil {
		return nil, fmt.Errorf("list policies in scope: %w", err)
	}
	defer rows.Close()

	var out []model.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListAllPolicies returns every policy for a tenant, for the ops inspection
// surface.
func (s *Store) ListAllPolicies(tenantID string) ([]model.Policy, error) {
	rows, err := s.db.Query(policySelect+" WHERE tenant_id = ? ORDER BY precedence DESC", tenantID)
	if err != nil {
		return nil, fmt.Errorf("list all policies: %w", err)
	}
	defer rows.Close()

	var out []model.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const policySelect = `
	SELECT policy_id, tenant_id, workspace_id, subject_type, subject_name, conditions,
	       effect, required_role, granted_scope, precedence, enabled, explanation,
	       is_fallback, created_at, updated_at
	FROM policies
`

func scanPolicy(row rowScanner) (model.Policy, error) {
	var p model.Policy
	var subjectType, effect, conditionsJSON string
	var grantedScope sql.NullString

	err := row.Scan(
		&p.PolicyID, &p.Scope.TenantID, &p.Scope.WorkspaceID, &subjectType, &p.Subject.Name, &conditionsJSON,
		&effect, &p.Effect.RequiredRole, &grantedScope, &p.Precedence, &p.Enabled, &p.Explanation,
		&p.IsFallback, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Policy{}, ErrNotFound
		}
		return model.Policy{}, fmt.Errorf("scan policy: %w", err)
	}

	p.Subject.Type = model.SubjectType(subjectType)
	p.Effect.Decision = model.Effect(effect)

	if err := json.Unmarshal([]byte(conditionsJSON), &p.Conditions); err != nil {
		return model.Policy{}, fmt.Errorf("unmarshal conditions: %w", err)
	}
	if grantedScope.Valid {
		var gs model.GrantedScope
		if err := json.Unmarshal([]byte(grantedScope.String), &gs); err != nil {
			return model.Policy{}, fmt.Errorf("unmarshal granted scope: %w", err)
		}
		p.Effect.GrantedScope = &gs
	}
	return p, nil
}

func nullableBytes(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}
