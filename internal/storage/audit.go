package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/clasper-run/clasper/internal/model"
)

// NextAuditSeq returns the next sequence number for a tenant's audit chain
// (1 if no entries exist yet).
func (s *Store) NextAuditSeq(tenantID string) (int64, error) {
	var max sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(seq) FROM audit_log WHERE tenant_id = ?", tenantID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max audit seq: %w", err)
	}
	if !max.Valid {
		return 1, nil
	}
	return max.Int64 + 1, nil
}

// LastAuditEntry returns the most recent entry in a tenant's chain, or
// ErrNotFound if the chain is empty.
func (s *Store) LastAuditEntry(tenantID string) (model.AuditEntry, error) {
	row := s.db.QueryRow(auditSelect+" WHERE tenant_id = ? ORDER BY seq DESC LIMIT 1", tenantID)
	return scanAuditEntry(row)
}

// AppendAuditEntry inserts the next entry in a tenant's hash chain. Callers
// must hold whatever external lock serializes writers for this tenant; the
// seq/prev-hash linkage is not itself transactionally safe against
// concurrent appenders.
func (s *Store) AppendAuditEntry(e model.AuditEntry) error {
	data, err := json.Marshal(e.EventData)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO audit_log (tenant_id, seq, event_type, event_data, prev_event_hash, event_hash, execution_id, trace_id, workspace_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.TenantID, e.Seq, e.EventType, string(data), e.PrevEventHash, e.EventHash, e.Linkage.ExecutionID, e.Linkage.TraceID, e.Linkage.WorkspaceID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListAuditChain returns a tenant's full audit chain in sequence order, for
// verification and the ops inspection surface.
func (s *Store) ListAuditChain(tenantID string) ([]model.AuditEntry, error) {
	rows, err := s.db.Query(auditSelect+" WHERE tenant_id = ? ORDER BY seq", tenantID)
	if err != nil {
		return nil, fmt.Errorf("list audit chain: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const auditSelect = `
	SELECT tenant_id, seq, event_type, event_data, prev_event_hash, event_hash, execution_id, trace_id, workspace_id, created_at
	FROM audit_log
`

func scanAuditEntry(row rowScanner) (model.AuditEntry, error) {
	var e model.AuditEntry
	var eventData string

	err := row.Scan(&e.TenantID, &e.Seq, &e.EventType, &eventData, &e.PrevEventHash, &e.EventHash, &e.Linkage.ExecutionID, &e.Linkage.TraceID, &e.Linkage.WorkspaceID, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.AuditEntry{}, ErrNotFound
		}
		return model.AuditEntry{}, fmt.Errorf("scan audit entry: %w", err)
	}

	if err := json.Unmarshal([]byte(eventData), &e.EventData); err != nil {
		return model.AuditEntry{}, fmt.Errorf("unmarshal event data: %w", err)
	}
	return e, nil
}
