package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/clasper-run/clasper/internal/model"
)

// InsertTrace persists a post-execution trace.
func (s *Store) InsertTrace(t model.Trace) error {
	steps, err := json.Marshal(t.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	violations, err := json.Marshal(t.Violations)
	if err != nil {
		return fmt.Errorf("marshal violations: %w", err)
	}

	var grantedScope, usedScope interface{}
	if t.GrantedScope != nil {
		b, err := json.Marshal(t.GrantedScope)
		if err != nil {
			return fmt.Errorf("marshal granted scope: %w", err)
		}
		grantedScope = string(b)
	}
	if t.UsedScope != nil {
		b, err := json.Marshal(t.UsedScope)
		if err != nil {
			return fmt.Errorf("marshal used scope: %w", err)
		}
		usedScope = string(b)
	}

	_, err = s.db.Exec(`
		INSERT INTO traces (trace_id, execution_id, adapter_id, steps, granted_scope, used_scope, violations, integrity_status, trust_status, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.TraceID, t.ExecutionID, t.AdapterID, string(steps), grantedScope, usedScope, string(violations), string(t.IntegrityStatus), string(t.TrustStatus), t.IngestedAt)
	if err != nil {
		return fmt.Errorf("insert trace: %w", err)
	}
	return nil
}

// GetTraceByExecutionID looks up the trace for one execution.
func (s *Store) GetTraceByExecutionID(executionID string) (model.Trace, error) {
	row := s.db.QueryRow(`
		SELECT trace_id, execution_id, adapter_id, steps, granted_scope, used_scope, violations, integrity_status, trust_status, ingested_at
		FROM traces WHERE execution_id = ?
	`, executionID)

	var t model.Trace
	var steps, violations string
	var grantedScope, usedScope sql.NullString
	var integrityStatus, trustStatus string

	err := row.Scan(&t.TraceID, &t.ExecutionID, &t.AdapterID, &steps, &grantedScope, &usedScope, &violations, &integrityStatus, &trustStatus, &t.IngestedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Trace{}, ErrNotFound
		}
		return model.Trace{}, fmt.Errorf("scan trace: %w", err)
	}

	t.IntegrityStatus = model.IntegrityStatus(integrityStatus)
	t.TrustStatus = model.TrustStatus(trustStatus)

	if err := json.Unmarshal([]byte(steps), &t.Steps); err != nil {
		return model.Trace{}, fmt.Errorf("unmarshal steps: %w", err)
	}
	if err := json.Unmarshal([]byte(violations), &t.Violations); err != nil {
		return model.Trace{}, fmt.Errorf("unmarshal violations: %w", err)
	}
	if grantedScope.Valid {
		var gs model.GrantedScope
		if err := json.Unmarshal([]byte(grantedScope.String), &gs); err != nil {
			return model.Trace{}, fmt.Errorf("unmarshal granted scope: %w", err)
		}
		t.GrantedScope = &gs
	}
	if usedScope.Valid {
		var us model.GrantedScope
		if err := json.Unmarshal([]byte(usedScope.String), &us); err != nil {
			return model.Trace{}, fmt.Errorf("unmarshal used scope: %w", err)
		}
		t.UsedScope = &us
	}

	return t, nil
}
