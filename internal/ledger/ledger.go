// Package ledger owns the decision lifecycle: turning a policy [Outcome]
// into a persisted, audited [model.Decision], resolving pending decisions,
// and reconciling the pending set (spec §4.4).
package ledger

import (
	"fmt"
	"time"

	"github.com/clasper-run/clasper/internal/accesslog"
	"github.com/clasper-run/clasper/internal/logging"
	"github.com/clasper-run/clasper/internal/model"
	"github.com/clasper-run/clasper/internal/policy"
	"github.com/google/uuid"
)

var logger = logging.GetLogger("ledger")
var agent = "ledger"

// Store is the persistence surface the ledger needs.
type Store interface {
	InsertDecision(model.Decision) error
	GetDecisionByExecutionID(executionID string) (model.Decision, error)
	GetDecisionByID(decisionID string) (model.Decision, error)
	UpdateDecisionResolution(executionID string, status model.Status, resolution model.Resolution, updatedAt interface{}) error
	ListPendingDecisions(tenantID string) ([]model.Decision, error)
	InsertToolAuthorization(model.ToolAuthorization) error
	ListToolAuthorizations(executionID string) ([]model.ToolAuthorization, error)
}

// AuditSink records ledger events to the audit chain.
type AuditSink interface {
	Append(tenantID, eventType string, eventData map[string]interface{}, linkage model.AuditLinkage) (model.AuditEntry, error)
}

// Ledger evaluates execution requests and records their decisions.
type Ledger struct {
	store     Store
	audit     AuditSink
	engine    *policy.Engine
	approval  model.ApprovalMode
	accessLog accesslog.Stream
}

// New builds a [Ledger]. mode is the process-wide approval mode: "simulate"
// turns require_approval outcomes into allow decisions with approval_source
// "config_override" and auto_allowed_in_core set, which the audit entry
// records; "enforce" actually blocks on them (spec §4.3).
// The access log defaults to a no-op stream; use [Ledger.SetAccessLog] to
// wire a real one.
func New(store Store, auditSink AuditSink, engine *policy.Engine, mode model.ApprovalMode) *Ledger {
	stream, _ := accesslog.NewNullFactory().NewStream()
	return &Ledger{store: store, audit: auditSink, engine: engine, approval: mode, accessLog: stream}
}

// SetAccessLog replaces the ledger's observability stream.
func (l *Ledger) SetAccessLog(stream accesslog.Stream) {
	l.accessLog = stream
}

// Decide evaluates req, persists the resulting decision, records one tool
// authorization for it (carrying the first matched policy), and audits the
// outcome. If a decision for req.ExecutionID already exists, the stored
// decision is returned instead.
func (l *Ledger) Decide(req model.ExecutionRequest) (model.Decision, error) {
	logger.Debug(agent, "Decide", "enter")
	defer logger.Debug(agent, "Decide", "exit")

	outcome, err := l.engine.Evaluate(req)
	if err != nil {
		return model.Decision{}, fmt.Errorf("evaluate policy: %w", err)
	}

	now := time.Now().UTC()
	status := model.StatusApproved
	effect := outcome.Effect
	approvalSource := ""
	autoAllowed := false

	switch outcome.Effect {
	case model.EffectDeny:
		status = model.StatusDenied
	case model.EffectRequireApproval:
		if l.approval == model.ModeSimulate {
			status = model.StatusApproved
			effect = model.EffectAllow
			approvalSource = "config_override"
			autoAllowed = true
		} else {
			status = model.StatusPending
		}
	case model.EffectAllow:
		status = model.StatusApproved
	}

	d := model.Decision{
		DecisionID:        uuid.NewString(),
		ExecutionID:       req.ExecutionID,
		TenantID:          req.TenantID,
		WorkspaceID:       req.WorkspaceID,
		AdapterID:         req.AdapterID,
		Effect:            effect,
		ApprovalSource:    approvalSource,
		GrantedScope:      outcome.GrantedScope,
		MatchedPolicies:   outcome.MatchedPolicies,
		PolicyFallbackHit: outcome.PolicyFallbackHit,
		DecisionTrace:     outcome.Trace,
		BlockedReason:     outcome.BlockedReason,
		RequiredRole:      outcome.RequiredRole,
		ApprovalMode:      l.approval,
		Status:            status,
		RequestSnapshot:   req,
		AutoAllowedInCore: autoAllowed,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := l.store.InsertDecision(d); err != nil {
		if existing, getErr := l.store.GetDecisionByExecutionID(req.ExecutionID); getErr == nil {
			return existing, nil
		}
		return model.Decision{}, fmt.Errorf("insert decision: %w", err)
	}

	if err := l.recordToolAuthorization(d); err != nil {
		logger.SysErrorf("failed to record tool authorization for execution %s: %+v", req.ExecutionID, err)
	}

	l.auditDecision(d)

	if err := l.accessLog.Send(d); err != nil {
		logger.SysWarnf("access log send failed for execution %s: %+v", req.ExecutionID, err)
	}

	return d, nil
}

func (l *Ledger) recordToolAuthorization(d model.Decision) error {
	req := d.RequestSnapshot
	ta := model.ToolAuthorization{
		ExecutionID: d.ExecutionID, AdapterID: d.AdapterID, Tool: req.Tool, ToolGroup: req.ToolGroup,
		Decision: d.Effect, Reason: d.BlockedReason, GrantedScope: d.GrantedScope, CreatedAt: d.CreatedAt,
	}
	if len(d.MatchedPolicies) > 0 {
		ta.PolicyID = d.MatchedPolicies[0]
	}
	if d.GrantedScope != nil {
		expiry := d.GrantedScope.ExpiresAt
		ta.ExpiresAt = &expiry
	}
	return l.store.InsertToolAuthorization(ta)
}

func (l *Ledger) auditDecision(d model.Decision) {
	eventType := "decision_created"
	if d.Status == model.StatusPending {
		eventType = "decision_pending"
	}
	if _, err := l.audit.Append(d.TenantID, eventType, map[string]interface{}{
		"execution_id": d.ExecutionID, "adapter_id": d.AdapterID, "effect": string(d.Effect),
		"status": string(d.Status), "matched_policies": d.MatchedPolicies, "auto_allowed_in_core": d.AutoAllowedInCore,
	}, model.AuditLinkage{ExecutionID: d.ExecutionID, WorkspaceID: d.WorkspaceID}); err != nil {
		logger.SysErrorf("failed to audit decision for execution %s: %+v", d.ExecutionID, err)
	}
}

// GetByExecutionID returns the decision recorded for one execution.
func (l *Ledger) GetByExecutionID(executionID string) (model.Decision, error) {
	return l.store.GetDecisionByExecutionID(executionID)
}

// ListToolAuthorizations returns every per-tool ruling recorded for one
// execution.
func (l *Ledger) ListToolAuthorizations(executionID string) ([]model.ToolAuthorization, error) {
	return l.store.ListToolAuthorizations(executionID)
}

// Resolve transitions a pending decision to approved or denied, recording a
// local self-attested approval (spec §4.4; approvalType is always "local" —
// external/cloud attestation is an explicit Non-goal). A terminal decision is
// an idempotent no-op returning the current state, never a re-resolution
// (invariant I4, property P5).
func (l *Ledger) Resolve(decisionID, action, justification, resolverID string) (model.Decision, error) {
	d, err := l.store.GetDecisionByID(decisionID)
	if err != nil {
		return model.Decision{}, err
	}
	if d.Status != model.StatusPending {
		return d, nil
	}

	now := time.Now().UTC()
	status := model.StatusDenied
	if action == "approve" {
		status = model.StatusApproved
	}

	resolution := model.Resolution{
		Action: action, Justification: justification, ApprovalType: model.ApprovalLocal,
		ResolvedAt: now, ResolverID: resolverID,
	}

	if err := l.store.UpdateDecisionResolution(d.ExecutionID, status, resolution, now); err != nil {
		return model.Decision{}, fmt.Errorf("update decision resolution: %w", err)
	}

	d.Status = status
	d.Resolution = &resolution
	d.UpdatedAt = now

	if _, err := l.audit.Append(d.TenantID, "decision_resolved", map[string]interface{}{
		"execution_id": d.ExecutionID, "decision_id": decisionID, "action": action, "status": string(status), "resolver_id": resolverID,
	}, model.AuditLinkage{ExecutionID: d.ExecutionID, WorkspaceID: d.WorkspaceID}); err != nil {
		logger.SysErrorf("failed to audit resolution for decision %s: %+v", decisionID, err)
	}

	return d, nil
}

// ResolveIfNowAllowed re-evaluates one pending decision and, if the current
// policy set now resolves it to allow, auto-resolves it with justification.
// Used by the policy-wizard create/update path (spec §6: "_source_trace_id
// references a pending decision and the new policy resolves it to allow").
// It is a no-op (returns false, nil) if the decision is not pending or the
// outcome is not allow.
func (l *Ledger) ResolveIfNowAllowed(executionID, justification string) (bool, error) {
	d, err := l.store.GetDecisionByExecutionID(executionID)
	if err != nil {
		return false, err
	}
	if d.Status != model.StatusPending {
		return false, nil
	}

	outcome, err := l.engine.Evaluate(d.RequestSnapshot)
	if err != nil {
		return false, fmt.Errorf("evaluate policy: %w", err)
	}
	if outcome.Effect != model.EffectAllow {
		return false, nil
	}

	now := time.Now().UTC()
	resolution := model.Resolution{
		Action: "approve", Justification: justification,
		ApprovalType: model.ApprovalLocal, ResolvedAt: now, ResolverID: "policy_exception",
	}
	if err := l.store.UpdateDecisionResolution(d.ExecutionID, model.StatusApproved, resolution, now); err != nil {
		return false, fmt.Errorf("update decision resolution: %w", err)
	}

	if _, err := l.audit.Append(d.TenantID, "decision_resolved", map[string]interface{}{
		"execution_id": d.ExecutionID, "action": "approve", "status": string(model.StatusApproved), "resolver_id": "policy_exception",
	}, model.AuditLinkage{ExecutionID: d.ExecutionID, WorkspaceID: d.WorkspaceID}); err != nil {
		logger.SysErrorf("failed to audit policy-exception resolution for execution %s: %+v", d.ExecutionID, err)
	}

	return true, nil
}

// ReconcilePending re-evaluates every pending decision for a tenant against
// current policy, auto-resolving any whose outcome has since changed (a
// policy was tightened to a hard deny, or loosened to an outright allow).
// Decisions still landing on require_approval are left pending. This keeps
// the pending queue honest when policy changes underneath it instead of
// stranding requests that no longer make sense to approve.
func (l *Ledger) ReconcilePending(tenantID string) ([]string, error) {
	pending, err := l.store.ListPendingDecisions(tenantID)
	if err != nil {
		return nil, fmt.Errorf("list pending decisions: %w", err)
	}

	var resolved []string
	for _, d := range pending {
		outcome, err := l.engine.Evaluate(d.RequestSnapshot)
		if err != nil {
			logger.SysErrorf("reconcile: failed to evaluate execution %s: %+v", d.ExecutionID, err)
			continue
		}
		if outcome.Effect == model.EffectRequireApproval {
			continue
		}

		status := model.StatusApproved
		action := "approve"
		justification := "policy_exception_created"
		if outcome.Effect == model.EffectDeny {
			status = model.StatusDenied
			action = "deny"
			justification = "reconciled against updated policy"
		}

		resolution := model.Resolution{
			Action: action, Justification: justification,
			ApprovalType: model.ApprovalLocal, ResolvedAt: time.Now().UTC(), ResolverID: "reconcile",
		}
		if err := l.store.UpdateDecisionResolution(d.ExecutionID, status, resolution, time.Now().UTC()); err != nil {
			logger.SysErrorf("reconcile: failed to update execution %s: %+v", d.ExecutionID, err)
			continue
		}

		if _, err := l.audit.Append(tenantID, "decision_reconciled", map[string]interface{}{
			"execution_id": d.ExecutionID, "new_status": string(status),
		}, model.AuditLinkage{ExecutionID: d.ExecutionID}); err != nil {
			logger.SysErrorf("failed to audit reconciliation for execution %s: %+v", d.ExecutionID, err)
		}

		resolved = append(resolved, d.DecisionID)
	}

	return resolved, nil
}
