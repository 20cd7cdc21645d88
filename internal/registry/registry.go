// Package registry manages adapter registration: the set of adapters known
// to a tenant, their declared capabilities, and drift when an adapter
// re-registers with fewer capabilities than it declared before (spec §4.1,
// §4.2).
package registry

import (
	"fmt"
	"time"

	"github.com/clasper-run/clasper/internal/logging"
	"github.com/clasper-run/clasper/internal/model"
)

var logger = logging.GetLogger("registry")

// Store is the persistence surface the registry needs.
type Store interface {
	UpsertAdapter(model.Adapter) error
	GetAdapter(tenantID, adapterID string) (model.Adapter, error)
	ListAdapters(tenantID string) ([]model.Adapter, error)
}

// AuditSink records registry-relevant events to the audit chain.
type AuditSink interface {
	Append(tenantID, eventType string, eventData map[string]interface{}, linkage model.AuditLinkage) (model.AuditEntry, error)
}

// Registry manages adapter registration for a tenant.
type Registry struct {
	store Store
	audit AuditSink
}

// New builds a [Registry].
func New(store Store, audit AuditSink) *Registry {
	return &Registry{store: store, audit: audit}
}

// Register creates or updates an adapter's registration, auditing both
// first registration and capability changes on subsequent calls.
func (r *Registry) Register(tenantID string, reg model.AdapterRegistration) (model.Adapter, error) {
	now := time.Now().UTC()

	existing, err := r.store.GetAdapter(tenantID, reg.AdapterID)
	isNew := err != nil

	a := model.Adapter{
		TenantID: tenantID, AdapterID: reg.AdapterID, Version: reg.Version,
		DisplayName: reg.DisplayName, RiskClass: reg.RiskClass, Capabilities: reg.Capabilities,
		Enabled: true, CreatedAt: now, UpdatedAt: now,
	}
	if !isNew {
		a.CreatedAt = existing.CreatedAt
	}

	if err := r.store.UpsertAdapter(a); err != nil {
		return model.Adapter{}, fmt.Errorf("upsert adapter: %w", err)
	}

	eventType := "adapter_registered"
	if !isNew {
		eventType = "adapter_updated"
	}
	if _, err := r.audit.Append(tenantID, eventType, map[string]interface{}{
		"adapter_id": a.AdapterID, "version": a.Version, "risk_class": string(a.RiskClass), "capabilities": a.Capabilities,
	}, model.AuditLinkage{}); err != nil {
		logger.SysErrorf("failed to audit %s for adapter %s: %+v", eventType, a.AdapterID, err)
	}

	if !isNew {
		r.detectCapabilityDrift(tenantID, existing, a)
	}

	return a, nil
}

// Get looks up a single adapter.
func (r *Registry) Get(tenantID, adapterID string) (model.Adapter, error) {
	return r.store.GetAdapter(tenantID, adapterID)
}

// List returns every adapter registered for a tenant.
func (r *Registry) List(tenantID string) ([]model.Adapter, error) {
	return r.store.ListAdapters(tenantID)
}

// detectCapabilityDrift records an audit entry, never a denial, when a
// re-registering adapter declares fewer capabilities than it previously
// had — bookkeeping only, per the supplemented adapter-capability-drift
// feature: narrower capabilities never revoke grants already issued, they
// only surface for operator visibility.
func (r *Registry) detectCapabilityDrift(tenantID string, previous, current model.Adapter) {
	had := make(map[string]bool, len(previous.Capabilities))
	for _, c := range previous.Capabilities {
		had[c] = true
	}

	var dropped []string
	for _, c := range current.Capabilities {
		delete(had, c)
	}
	for c := range had {
		dropped = append(dropped, c)
	}
	if len(dropped) == 0 {
		return
	}

	if _, err := r.audit.Append(tenantID, "adapter_capability_narrowed", map[string]interface{}{
		"adapter_id":        current.AdapterID,
		"dropped_capabilities": dropped,
	}, model.AuditLinkage{}); err != nil {
		logger.SysErrorf("failed to audit capability drift for adapter %s: %+v", current.AdapterID, err)
	}
}
