package policy

import (
	"time"

	"github.com/clasper-run/clasper/internal/model"
	"github.com/google/uuid"
)

// Store is the persistence surface the policy package needs beyond
// [PolicySource] scope queries: full CRUD for the ops inspection endpoints
// and for seeding policies at startup.
type Store interface {
	PolicySource
	UpsertPolicy(model.Policy) error
	GetPolicy(policyID string) (model.Policy, error)
	ListAllPolicies(tenantID string) ([]model.Policy, error)
}

// Manager exposes policy CRUD on top of a [Store], independent of
// evaluation.
type Manager struct {
	store Store
}

// NewManager builds a [Manager].
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Create assigns a policy ID and timestamps, then persists it.
func (m *Manager) Create(p model.Policy) (model.Policy, error) {
	now := time.Now().UTC()
	if p.PolicyID == "" {
		p.PolicyID = uuid.NewString()
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := m.store.UpsertPolicy(p); err != nil {
		return model.Policy{}, err
	}
	return p, nil
}

// Get returns a single policy by ID.
func (m *Manager) Get(policyID string) (model.Policy, error) {
	return m.store.GetPolicy(policyID)
}

// List returns every policy registered for a tenant.
func (m *Manager) List(tenantID string) ([]model.Policy, error) {
	return m.store.ListAllPolicies(tenantID)
}
