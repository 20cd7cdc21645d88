package storage

import "fmt"

// CostMetric is one recorded cost observation for an execution.
type CostMetric struct {
	ExecutionID string
	AdapterID   string
	Amount      float64
	Unit        string
	RecordedAt  interface{}
}

// InsertCostMetric records a cost observation ingested via the telemetry
// surface (spec §4.6).
func (s *Store) InsertCostMetric(m CostMetric) error {
	unit := m.Unit
	if unit == "" {
		unit = "usd"
	}
	_, err := s.db.Exec(`
		INSERT INTO cost_metrics (execution_id, adapter_id, amount, unit, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.ExecutionID, m.AdapterID, m.Amount, unit, m.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert cost metric: %w", err)
	}
	return nil
}

// TotalCostForAdapter sums every recorded cost for an adapter.
func (s *Store) TotalCostForAdapter(adapterID string) (float64, error) {
	var total float64
	err := s.db.QueryRow("SELECT COALESCE(SUM(amount), 0) FROM cost_metrics WHERE adapter_id = ?", adapterID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total cost for adapter: %w", err)
	}
	return total, nil
}
