package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/clasper-run/clasper/internal/model"
)

// InsertDecision persists a newly created decision.
func (s *Store) InsertDecision(d model.Decision) error {
	enc, err := encodeDecision(d)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO decisions (
			decision_id, execution_id, tenant_id, workspace_id, adapter_id, effect,
			granted_scope, matched_policies, policy_fallback_hit, decision_trace,
			blocked_reason, required_role, approval_mode, status, request_snapshot,
			resolution, auto_allowed_in_core, approval_source, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.DecisionID, d.ExecutionID, d.TenantID, d.WorkspaceID, d.AdapterID, string(d.Effect),
		enc.grantedScope, enc.matchedPolicies, d.PolicyFallbackHit, enc.decisionTrace,
		d.BlockedReason, d.RequiredRole, string(d.ApprovalMode), string(d.Status), enc.requestSnapshot,
		enc.resolution, d.AutoAllowedInCore, d.ApprovalSource, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// UpdateDecisionResolution transitions a pending decision to approved or
// denied, recording the resolution.
func (s *Store) UpdateDecisionResolution(executionID string, status model.Status, resolution model.Resolution, updatedAt interface{}) error {
	res, err := json.Marshal(resolution)
	if err != nil {
		return fmt.Errorf("marshal resolution: %w", err)
	}

	result, err := s.db.Exec(`
		UPDATE decisions SET status = ?, resolution = ?, updated_at = ?
		WHERE execution_id = ?
	`, string(status), string(res), updatedAt, executionID)
	if err != nil {
		return fmt.Errorf("update decision resolution: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetDecisionByExecutionID looks up the decision for one execution.
func (s *Store) GetDecisionByExecutionID(executionID string) (model.Decision, error) {
	row := s.db.QueryRow(decisionSelect+" WHERE execution_id = ?", executionID)
	return scanDecision(row)
}

// GetDecisionByID looks up a decision by its own id, for the operator
// resolve endpoint (spec §4.4, §6).
func (s *Store) GetDecisionByID(decisionID string) (model.Decision, error) {
	row := s.db.QueryRow(decisionSelect+" WHERE decision_id = ?", decisionID)
	return scanDecision(row)
}

// ListPendingDecisions returns every decision still awaiting resolution,
// for reconciliation sweeps (spec §4.4 reconcilePending).
func (s *Store) ListPendingDecisions(tenantID string) ([]model.Decision, error) {
	rows, err := s.db.Query(decisionSelect+" WHERE tenant_id = ? AND status = ? ORDER BY created_at", tenantID, string(model.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("list pending decisions: %w", err)
	}
	defer rows.Close()

	var out []model.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const decisionSelect = `
	SELECT decision_id, execution_id, tenant_id, workspace_id, adapter_id, effect,
	       granted_scope, matched_policies, policy_fallback_hit, decision_trace,
	       blocked_reason, required_role, approval_mode, status, request_snapshot,
	       resolution, auto_allowed_in_core, approval_source, created_at, updated_at
	FROM decisions
`

type encodedDecision struct {
	grantedScope    interface{}
	matchedPolicies string
	decisionTrace   string
	requestSnapshot string
	resolution      interface{}
}

func encodeDecision(d model.Decision) (encodedDecision, error) {
	var enc encodedDecision

	if d.GrantedScope != nil {
		b, err := json.Marshal(d.GrantedScope)
		if err != nil {
			return enc, fmt.Errorf("marshal granted scope: %w", err)
		}
		enc.grantedScope = string(b)
	}

	matched, err := json.Marshal(d.MatchedPolicies)
	if err != nil {
		return enc, fmt.Errorf("marshal matched policies: %w", err)
	}
	enc.matchedPolicies = string(matched)

	trace, err := json.Marshal(d.DecisionTrace)
	if err != nil {
		return enc, fmt.Errorf("marshal decision trace: %w", err)
	}
	enc.decisionTrace = string(trace)

	snapshot, err := json.Marshal(d.RequestSnapshot)
	if err != nil {
		return enc, fmt.Errorf("marshal request snapshot: %w", err)
	}
	enc.requestSnapshot = string(snapshot)

	if d.Resolution != nil {
		res, err := json.Marshal(d.Resolution)
		if err != nil {
			return enc, fmt.Errorf("marshal resolution: %w", err)
		}
		enc.resolution = string(res)
	}

	return enc, nil
}

func scanDecision(row rowScanner) (model.Decision, error) {
	var d model.Decision
	var effect, approvalMode, status string
	var grantedScope, resolution sql.NullString
	var matchedPolicies, decisionTrace, requestSnapshot string

	err := row.Scan(
		&d.DecisionID, &d.ExecutionID, &d.TenantID, &d.WorkspaceID, &d.AdapterID, &effect,
		&grantedScope, &matchedPolicies, &d.PolicyFallbackHit, &decisionTrace,
		&d.BlockedReason, &d.RequiredRole, &approvalMode, &status, &requestSnapshot,
		&resolution, &d.AutoAllowedInCore, &d.ApprovalSource, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Decision{}, ErrNotFound
		}
		return model.Decision{}, fmt.Errorf("scan decision: %w", err)
	}

	d.Effect = model.Effect(effect)
	d.ApprovalMode = model.ApprovalMode(approvalMode)
	d.Status = model.Status(status)

	if err := json.Unmarshal([]byte(matchedPolicies), &d.MatchedPolicies); err != nil {
		return model.Decision{}, fmt.Errorf("unmarshal matched policies: %w", err)
	}
	if err := json.Unmarshal([]byte(decisionTrace), &d.DecisionTrace); err != nil {
		return model.Decision{}, fmt.Errorf("unmarshal decision trace: %w", err)
	}
	if err := json.Unmarshal([]byte(requestSnapshot), &d.RequestSnapshot); err != nil {
		return model.Decision{}, fmt.Errorf("unmarshal request snapshot: %w", err)
	}
	if grantedScope.Valid {
		var gs model.GrantedScope
		if err := json.Unmarshal([]byte(grantedScope.String), &gs); err != nil {
			return model.Decision{}, fmt.Errorf("unmarshal granted scope: %w", err)
		}
		d.GrantedScope = &gs
	}
	if resolution.Valid {
		var r model.Resolution
		if err := json.Unmarshal([]byte(resolution.String), &r); err != nil {
			return model.Decision{}, fmt.Errorf("unmarshal resolution: %w", err)
		}
		d.Resolution = &r
	}

	return d, nil
}
