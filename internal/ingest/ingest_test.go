package ingest

import (
	"testing"

	"github.com/clasper-run/clasper/internal/audit"
	"github.com/clasper-run/clasper/internal/model"
	"github.com/clasper-run/clasper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIngest(t *testing.T) (*Ingest, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, audit.NewChain(store)), store
}

func TestSubmitTraceUnsignedWithoutStepHashes(t *testing.T) {
	ig, _ := newTestIngest(t)

	trace, _, err := ig.SubmitTrace("t1", model.Trace{ExecutionID: "e1", AdapterID: "a1", Steps: []model.TraceStep{{Index: 0, Name: "open"}}})
	require.NoError(t, err)
	assert.Equal(t, model.IntegrityUnsigned, trace.IntegrityStatus)
	assert.Equal(t, model.TrustUnverified, trace.TrustStatus)
}

func TestSubmitTraceVerifiedWithValidStepChain(t *testing.T) {
	ig, _ := newTestIngest(t)

	step0 := model.TraceStep{Index: 0, Name: "open", Data: map[string]interface{}{"path": "/tmp/a"}}
	step0.Hash = hashStep(step0, "")
	step1 := model.TraceStep{Index: 1, Name: "write", Data: map[string]interface{}{"bytes": float64(12)}}
	step1.Hash = hashStep(step1, step0.Hash)

	trace, _, err := ig.SubmitTrace("t1", model.Trace{ExecutionID: "e2", AdapterID: "a1", Steps: []model.TraceStep{step0, step1}})
	require.NoError(t, err)
	assert.Equal(t, model.IntegrityVerified, trace.IntegrityStatus)
	assert.Equal(t, model.TrustVerified, trace.TrustStatus)
}

func TestSubmitTraceCompromisedOnTamperedHash(t *testing.T) {
	ig, _ := newTestIngest(t)

	step0 := model.TraceStep{Index: 0, Name: "open"}
	step0.Hash = hashStep(step0, "")
	step1 := model.TraceStep{Index: 1, Name: "write"}
	step1.Hash = "tampered"

	trace, _, err := ig.SubmitTrace("t1", model.Trace{ExecutionID: "e3", AdapterID: "a1", Steps: []model.TraceStep{step0, step1}})
	require.NoError(t, err)
	assert.Equal(t, model.IntegrityCompromised, trace.IntegrityStatus)
	assert.Equal(t, model.TrustCompromised, trace.TrustStatus)
}

func TestSubmitTraceVerifiedWithViolationsWhenViolationsReported(t *testing.T) {
	ig, _ := newTestIngest(t)

	step0 := model.TraceStep{Index: 0, Name: "open"}
	step0.Hash = hashStep(step0, "")

	trace, _, err := ig.SubmitTrace("t1", model.Trace{
		ExecutionID: "e4", AdapterID: "a1", Steps: []model.TraceStep{step0},
		Violations: []model.Violation{{Type: "scope_exceeded", Description: "wrote outside granted path"}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.TrustVerifiedWithViolations, trace.TrustStatus)
}

func TestSubmitTraceIsIdempotent(t *testing.T) {
	ig, _ := newTestIngest(t)

	first, firstSeen, err := ig.SubmitTrace("t1", model.Trace{ExecutionID: "e5", AdapterID: "a1"})
	require.NoError(t, err)

	second, secondSeen, err := ig.SubmitTrace("t1", model.Trace{ExecutionID: "e5", AdapterID: "a1", Violations: []model.Violation{{Type: "x"}}})
	require.NoError(t, err)

	assert.True(t, firstSeen)
	assert.False(t, secondSeen)
	assert.Equal(t, first.TraceID, second.TraceID)
	assert.Empty(t, second.Violations)
}

func TestSubmitCostIsIdempotent(t *testing.T) {
	ig, store := newTestIngest(t)

	first, err := ig.SubmitCost("e6", "a1", 0.25, "usd")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := ig.SubmitCost("e6", "a1", 0.25, "usd")
	require.NoError(t, err)
	assert.False(t, second)

	total, err := store.TotalCostForAdapter("a1")
	require.NoError(t, err)
	assert.Equal(t, 0.25, total)
}
