package audit

import (
	"testing"

	"github.com/clasper-run/clasper/internal/model"
	"github.com/clasper-run/clasper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendBuildsLinkedChain(t *testing.T) {
	store := openTestStore(t)
	chain := NewChain(store)

	first, err := chain.Append("t1", "adapter_registered", map[string]interface{}{"adapter_id": "a1"}, model.AuditLinkage{})
	require.NoError(t, err)
	assert.Equal(t, genesisHash, first.PrevEventHash)
	assert.NotEmpty(t, first.EventHash)

	second, err := chain.Append("t1", "decision_created", map[string]interface{}{"execution_id": "e1"}, model.AuditLinkage{ExecutionID: "e1"})
	require.NoError(t, err)
	assert.Equal(t, first.EventHash, second.PrevEventHash)
	assert.NotEqual(t, first.EventHash, second.EventHash)
}

func TestVerifyDetectsHealthyChain(t *testing.T) {
	store := openTestStore(t)
	chain := NewChain(store)

	_, err := chain.Append("t1", "adapter_registered", map[string]interface{}{"adapter_id": "a1"}, model.AuditLinkage{})
	require.NoError(t, err)
	_, err = chain.Append("t1", "decision_created", map[string]interface{}{"execution_id": "e1"}, model.AuditLinkage{})
	require.NoError(t, err)

	status, err := Verify(store, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.IntegrityVerified, status)
}

func TestVerifyUnsignedForEmptyChain(t *testing.T) {
	store := openTestStore(t)
	status, err := Verify(store, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.IntegrityUnsigned, status)
}

func TestVerifyDetectsTamperedHash(t *testing.T) {
	store := openTestStore(t)
	chain := NewChain(store)

	_, err := chain.Append("t1", "adapter_registered", map[string]interface{}{"adapter_id": "a1"}, model.AuditLinkage{})
	require.NoError(t, err)

	entries, err := store.ListAuditChain("t1")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = store.DB().Exec("UPDATE audit_log SET event_hash = 'tampered' WHERE tenant_id = ? AND seq = ?", "t1", entries[0].Seq)
	require.NoError(t, err)

	status, err := Verify(store, "t1")
	require.Error(t, err)
	assert.Equal(t, model.IntegrityCompromised, status)
}

func TestHashIsDeterministicAcrossKeyOrder(t *testing.T) {
	a := model.AuditEntry{TenantID: "t1", Seq: 1, EventType: "x", EventData: map[string]interface{}{"b": 1, "a": 2}}
	b := model.AuditEntry{TenantID: "t1", Seq: 1, EventType: "x", EventData: map[string]interface{}{"a": 2, "b": 1}}

	ha, err := computeHash(a)
	require.NoError(t, err)
	hb, err := computeHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}
