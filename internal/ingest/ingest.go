// Package ingest handles the telemetry adapters submit after execution:
// traces, cost observations, and audit/metrics/violation envelopes, all
// idempotent on (execution_id, event_kind) (spec §4.6).
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clasper-run/clasper/internal/logging"
	"github.com/clasper-run/clasper/internal/model"
	"github.com/clasper-run/clasper/internal/storage"
	"github.com/google/uuid"
)

var logger = logging.GetLogger("ingest")
var agent = "ingest"

// Store is the persistence surface ingest needs.
type Store interface {
	ClaimIngestEvent(executionID, eventKind string, seenAt interface{}) (firstSeen bool, err error)
	InsertTrace(model.Trace) error
	GetTraceByExecutionID(executionID string) (model.Trace, error)
	InsertCostMetric(storage.CostMetric) error
}

// AuditSink records ingest events to the audit chain.
type AuditSink interface {
	Append(tenantID, eventType string, eventData map[string]interface{}, linkage model.AuditLinkage) (model.AuditEntry, error)
}

// Ingest processes post-execution telemetry.
type Ingest struct {
	store Store
	audit AuditSink
}

// New builds an [Ingest].
func New(store Store, audit AuditSink) *Ingest {
	return &Ingest{store: store, audit: audit}
}

// eventKindTrace is the dedup key for trace submissions.
const eventKindTrace = "trace_submitted"

// SubmitTrace records a post-execution trace, verifying its step hash
// chain to derive integrity and trust status (spec §4.7, invariant I7:
// trust status is always derived, never independently settable by the
// adapter). Resubmission of an already-seen execution is a no-op that
// returns the previously stored trace with firstSeen=false.
func (i *Ingest) SubmitTrace(tenantID string, t model.Trace) (trace model.Trace, firstSeen bool, err error) {
	if t.TraceID == "" {
		t.TraceID = uuid.NewString()
	}
	t.IngestedAt = time.Now().UTC()

	first, err := i.store.ClaimIngestEvent(t.ExecutionID, eventKindTrace, t.IngestedAt)
	if err != nil {
		return model.Trace{}, false, fmt.Errorf("claim ingest event: %w", err)
	}
	if !first {
		existing, err := i.store.GetTraceByExecutionID(t.ExecutionID)
		if err != nil {
			return model.Trace{}, false, fmt.Errorf("load existing trace: %w", err)
		}
		logger.Debugf(agent, "SubmitTrace", "duplicate submission for execution %s ignored", t.ExecutionID)
		return existing, false, nil
	}

	t.IntegrityStatus = verifyStepChain(t.Steps)
	t.TrustStatus = model.DeriveTrustStatus(t.IntegrityStatus, len(t.Violations))

	if err := i.store.InsertTrace(t); err != nil {
		return model.Trace{}, false, fmt.Errorf("insert trace: %w", err)
	}

	if _, err := i.audit.Append(tenantID, "trace_ingested", map[string]interface{}{
		"execution_id": t.ExecutionID, "trace_id": t.TraceID,
		"integrity_status": string(t.IntegrityStatus), "trust_status": string(t.TrustStatus),
		"violation_count": len(t.Violations),
	}, model.AuditLinkage{ExecutionID: t.ExecutionID, TraceID: t.TraceID}); err != nil {
		logger.SysErrorf("failed to audit trace ingest for execution %s: %+v", t.ExecutionID, err)
	}

	return t, true, nil
}

// verifyStepChain recomputes each step's hash over its index, name, data,
// and the previous step's hash (internal/audit instead hashes a canonical
// JSON object per entry). A trace with no step hashes at all is
// "unsigned" (adapter didn't sign); any computed mismatch is
// "compromised"; a clean chain is "verified".
func verifyStepChain(steps []model.TraceStep) model.IntegrityStatus {
	if len(steps) == 0 {
		return model.IntegrityUnsigned
	}

	anySigned := false
	prevHash := ""
	for _, step := range steps {
		if step.Hash == "" {
			continue
		}
		anySigned = true

		expected := hashStep(step, prevHash)
		if expected != step.Hash {
			return model.IntegrityCompromised
		}
		prevHash = step.Hash
	}

	if !anySigned {
		return model.IntegrityUnsigned
	}
	return model.IntegrityVerified
}

func hashStep(step model.TraceStep, prevHash string) string {
	data, _ := json.Marshal(step.Data)
	input := fmt.Sprintf("%d|%s|%s|%s", step.Index, step.Name, string(data), prevHash)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// SubmitEnvelope handles the audit/metrics/violation telemetry kinds, which
// carry no dedicated storage table of their own: it dedupes on
// (execution_id, event_kind) and, on first sight, appends the envelope to
// the audit chain. Trace and cost envelopes use [Ingest.SubmitTrace] and
// [Ingest.SubmitCost] instead, which persist into their own tables.
func (i *Ingest) SubmitEnvelope(tenantID, executionID, kind string, payload map[string]interface{}) (bool, error) {
	first, err := i.store.ClaimIngestEvent(executionID, kind, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim ingest event: %w", err)
	}
	if !first {
		return false, nil
	}

	if _, err := i.audit.Append(tenantID, kind+"_ingested", payload, model.AuditLinkage{ExecutionID: executionID}); err != nil {
		logger.SysErrorf("failed to audit %s ingest for execution %s: %+v", kind, executionID, err)
	}
	return true, nil
}

// GetTrace returns the trace recorded for one execution.
func (i *Ingest) GetTrace(executionID string) (model.Trace, error) {
	return i.store.GetTraceByExecutionID(executionID)
}

// SubmitCost records a cost observation, idempotent per (execution_id,
// "cost_reported").
func (i *Ingest) SubmitCost(executionID, adapterID string, amount float64, unit string) (bool, error) {
	first, err := i.store.ClaimIngestEvent(executionID, "cost_reported", time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim ingest event: %w", err)
	}
	if !first {
		return false, nil
	}

	err = i.store.InsertCostMetric(storage.CostMetric{
		ExecutionID: executionID, AdapterID: adapterID, Amount: amount, Unit: unit, RecordedAt: time.Now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("insert cost metric: %w", err)
	}
	return true, nil
}
