package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clasper-run/clasper/internal/model"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("storage: not found")

// UpsertAdapter inserts or updates an adapter's registration.
func (s *Store) UpsertAdapter(a model.Adapter) error {
	caps, err := json.Marshal(a.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO adapters (tenant_id, adapter_id, version, display_name, risk_class, capabilities, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, adapter_id) DO UPDATE SET
			version = excluded.version,
			display_name = excluded.display_name,
			risk_class = excluded.risk_class,
			capabilities = excluded.capabilities,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`, a.TenantID, a.AdapterID, a.Version, a.DisplayName, string(a.RiskClass), string(caps), a.Enabled, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert adapter: %w", err)
	}
	return nil
}

// GetAdapter looks up a single adapter by tenant and ID.
func (s *Store) GetAdapter(tenantID, adapterID string) (model.Adapter, error) {
	row := s.db.QueryRow(`
		SELECT tenant_id, adapter_id, version, display_name, risk_class, capabilities, enabled, created_at, updated_at
		FROM adapters WHERE tenant_id = ? AND adapter_id = ?
	`, tenantID, adapterID)
	return scanAdapter(row)
}

// ListAdapters returns every adapter registered for a tenant.
func (s *Store) ListAdapters(tenantID string) ([]model.Adapter, error) {
	rows, err := s.db.Query(`
		SELECT tenant_id, adapter_id, version, display_name, risk_class, capabilities, enabled, created_at, updated_at
		FROM adapters WHERE tenant_id = ? ORDER BY adapter_id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list adapters: %w", err)
	}
	defer rows.Close()

	var out []model.Adapter
	for rows.Next() {
		a, err := scanAdapter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAdapter(row rowScanner) (model.Adapter, error) {
	var a model.Adapter
	var riskClass, capsJSON string

	err := row.Scan(&a.TenantID, &a.AdapterID, &a.Version, &a.DisplayName, &riskClass, &capsJSON, &a.Enabled, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Adapter{}, ErrNotFound
		}
		return model.Adapter{}, fmt.Errorf("scan adapter: %w", err)
	}

	a.RiskClass = model.RiskClass(riskClass)
	if err := json.Unmarshal([]byte(capsJSON), &a.Capabilities); err != nil {
		return model.Adapter{}, fmt.Errorf("unmarshal capabilities: %w", err)
	}
	return a, nil
}

// now exists so callers in this package get a single, mockable time source
// mirroring the teacher's convention of not scattering time.Now() calls.
func now() time.Time { return time.Now().UTC() }
