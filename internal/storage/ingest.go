package storage

import (
	"fmt"
	"strings"
)

// ClaimIngestEvent records (executionID, eventKind) as seen and reports
// whether this call was the first to do so, implementing the telemetry
// endpoints' idempotent-dedup invariant (spec §4.6).
func (s *Store) ClaimIngestEvent(executionID, eventKind string, seenAt interface{}) (firstSeen bool, err error) {
	_, err = s.db.Exec(`
		INSERT INTO ingest_dedup (execution_id, event_kind, created_at) VALUES (?, ?, ?)
	`, executionID, eventKind, seenAt)
	if err == nil {
		return true, nil
	}
	if isUniqueConstraintErr(err) {
		return false, nil
	}
	return false, fmt.Errorf("claim ingest event: %w", err)
}

// isUniqueConstraintErr matches on message since modernc.org/sqlite does not
// export a typed constraint-violation error.
func isUniqueConstraintErr(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
