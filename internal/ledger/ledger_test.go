package ledger

import (
	"testing"

	"github.com/clasper-run/clasper/internal/audit"
	"github.com/clasper-run/clasper/internal/model"
	"github.com/clasper-run/clasper/internal/policy"
	"github.com/clasper-run/clasper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, mode model.ApprovalMode) (*Ledger, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	chain := audit.NewChain(store)
	engine := policy.NewEngine(store)
	return New(store, chain, engine, mode), store
}

func TestDecideAllowsByDefaultWithNoMatchingPolicy(t *testing.T) {
	l, _ := newTestLedger(t, model.ModeEnforce)

	d, err := l.Decide(model.ExecutionRequest{ExecutionID: "e1", TenantID: "t1", AdapterID: "a1", Tool: "shell.exec"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, d.Status)
	assert.Equal(t, model.EffectAllow, d.Effect)

	tas, err := l.ListToolAuthorizations("e1")
	require.NoError(t, err)
	require.Len(t, tas, 1)
	assert.Equal(t, model.EffectAllow, tas[0].Decision)
}

func TestDecideRequireApprovalPendsInEnforceMode(t *testing.T) {
	l, store := newTestLedger(t, model.ModeEnforce)

	require.NoError(t, store.UpsertPolicy(model.Policy{
		PolicyID: "p1", Scope: model.Scope{TenantID: "t1"},
		Subject: model.Subject{Type: model.SubjectTool, Name: "shell.exec"},
		Effect:  model.PolicyEffect{Decision: model.EffectRequireApproval},
		Enabled: true, Precedence: 1,
	}))

	d, err := l.Decide(model.ExecutionRequest{ExecutionID: "e2", TenantID: "t1", AdapterID: "a1", Tool: "shell.exec"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, d.Status)
	assert.False(t, d.AutoAllowedInCore)
}

func TestDecideRequireApprovalAutoAllowsInSimulateMode(t *testing.T) {
	l, store := newTestLedger(t, model.ModeSimulate)

	require.NoError(t, store.UpsertPolicy(model.Policy{
		PolicyID: "p1", Scope: model.Scope{TenantID: "t1"},
		Subject: model.Subject{Type: model.SubjectTool, Name: "shell.exec"},
		Effect:  model.PolicyEffect{Decision: model.EffectRequireApproval},
		Enabled: true, Precedence: 1,
	}))

	d, err := l.Decide(model.ExecutionRequest{ExecutionID: "e3", TenantID: "t1", AdapterID: "a1", Tool: "shell.exec"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, d.Status)
	assert.True(t, d.AutoAllowedInCore)
}

func TestResolvePendingDecision(t *testing.T) {
	l, store := newTestLedger(t, model.ModeEnforce)

	require.NoError(t, store.UpsertPolicy(model.Policy{
		PolicyID: "p1", Scope: model.Scope{TenantID: "t1"},
		Subject: model.Subject{Type: model.SubjectTool, Name: "shell.exec"},
		Effect:  model.PolicyEffect{Decision: model.EffectRequireApproval},
		Enabled: true, Precedence: 1,
	}))

	created, err := l.Decide(model.ExecutionRequest{ExecutionID: "e4", TenantID: "t1", AdapterID: "a1", Tool: "shell.exec"})
	require.NoError(t, err)

	resolved, err := l.Resolve(created.DecisionID, "approve", "looks fine", "operator-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, resolved.Status)
	require.NotNil(t, resolved.Resolution)
	assert.Equal(t, "operator-1", resolved.Resolution.ResolverID)

	// Re-resolving a terminal decision is an idempotent no-op (invariant I4).
	again, err := l.Resolve(created.DecisionID, "approve", "again", "operator-1")
	require.NoError(t, err)
	assert.Equal(t, "operator-1", again.Resolution.ResolverID)
	assert.NotEqual(t, "again", again.Resolution.Justification)
}

func TestReconcilePendingResolvesAfterPolicyTightens(t *testing.T) {
	l, store := newTestLedger(t, model.ModeEnforce)

	require.NoError(t, store.UpsertPolicy(model.Policy{
		PolicyID: "p1", Scope: model.Scope{TenantID: "t1"},
		Subject: model.Subject{Type: model.SubjectTool, Name: "shell.exec"},
		Effect:  model.PolicyEffect{Decision: model.EffectRequireApproval},
		Enabled: true, Precedence: 1,
	}))

	_, err := l.Decide(model.ExecutionRequest{ExecutionID: "e5", TenantID: "t1", AdapterID: "a1", Tool: "shell.exec"})
	require.NoError(t, err)

	require.NoError(t, store.UpsertPolicy(model.Policy{
		PolicyID: "p2", Scope: model.Scope{TenantID: "t1"},
		Subject: model.Subject{Type: model.SubjectTool, Name: "shell.exec"},
		Effect:  model.PolicyEffect{Decision: model.EffectDeny},
		Enabled: true, Precedence: 10,
	}))

	resolved, err := l.ReconcilePending("t1")
	require.NoError(t, err)
	assert.Len(t, resolved, 1)

	d, err := l.GetByExecutionID("e5")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDenied, d.Status)
}
