package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/clasper-run/clasper/internal/common"
	"github.com/clasper-run/clasper/internal/model"
	"github.com/labstack/echo/v4"
)

// wizardMeta is the create/update request's acknowledgement block: allow
// policies authored by the wizard must explicitly confirm the operator
// understood they are opening an allow (spec §6).
type wizardMeta struct {
	WizardAcknowledgedAllow bool `json:"wizard_acknowledged_allow,omitempty"`
}

type upsertPolicyRequest struct {
	model.Policy
	WizardMeta    *wizardMeta `json:"_wizard_meta,omitempty"`
	SourceTraceID string      `json:"_source_trace_id,omitempty"`
}

// handleCreatePolicy implements POST /ops/api/policies (spec §6). Wizard-
// authored allow policies without an explicit acknowledgement are rejected
// with no side effects. Successful writes produce exactly one audit entry
// carrying stable hashes of the before/after policy summary, and — if
// `_source_trace_id` names an execution with a pending decision the new
// policy now resolves to allow — auto-resolve that decision.
func (s *Server) handleCreatePolicy(c echo.Context) error {
	var body upsertPolicyRequest
	if err := c.Bind(&body); err != nil {
		return common.NewError(common.CodeValidation, "malformed policy: %v", err)
	}
	if body.Scope.TenantID == "" {
		body.Scope.TenantID = s.cfg.LocalTenantID
	}

	if body.Effect.Decision == model.EffectAllow {
		if body.WizardMeta == nil || !body.WizardMeta.WizardAcknowledgedAllow {
			return common.NewError(common.CodeWizardAllowAckRequired, "wizard-created allow policies require _wizard_meta.wizard_acknowledged_allow")
		}
	}

	var before *model.Policy
	if body.PolicyID != "" {
		if existing, err := s.policies.Get(body.PolicyID); err == nil {
			before = &existing
		}
	}

	created, err := s.policies.Create(body.Policy)
	if err != nil {
		return common.NewError(common.CodeInternal, "create policy: %v", err)
	}

	eventType := "policy_created_via_wizard"
	if before != nil {
		eventType = "policy_updated_via_wizard"
	}
	if _, err := s.audit.Append(created.Scope.TenantID, eventType, map[string]interface{}{
		"policy_id":   created.PolicyID,
		"before_hash": stableHash(before),
		"after_hash":  stableHash(&created),
	}, model.AuditLinkage{}); err != nil {
		logger.SysErrorf("failed to audit %s for policy %s: %+v", eventType, created.PolicyID, err)
	}

	if body.SourceTraceID != "" {
		if _, err := s.ledger.ResolveIfNowAllowed(body.SourceTraceID, "policy_exception_created"); err != nil {
			logger.SysErrorf("failed to auto-resolve execution %s after policy %s: %+v", body.SourceTraceID, created.PolicyID, err)
		}
	}

	return c.JSON(http.StatusOK, created)
}

// handleListPolicies implements GET /ops/api/policies, the read-back
// complement to the wizard's write-only create/update path (spec
// SPEC_FULL.md §6).
func (s *Server) handleListPolicies(c echo.Context) error {
	tenantID := c.QueryParam("tenant_id")
	if tenantID == "" {
		tenantID = s.cfg.LocalTenantID
	}

	policies, err := s.policies.List(tenantID)
	if err != nil {
		return common.NewError(common.CodeInternal, "list policies: %v", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"policies": policies})
}

// handleGetPolicy implements GET /ops/api/policies/:policy_id.
func (s *Server) handleGetPolicy(c echo.Context) error {
	policyID := c.Param("policy_id")

	p, err := s.policies.Get(policyID)
	if err != nil {
		return common.NewError(common.CodeNotFound, "no policy %s", policyID)
	}
	return c.JSON(http.StatusOK, p)
}

// stableHash hashes p's JSON encoding, treating a nil p (no "before" state
// on a first create) as an explicit empty summary.
func stableHash(p *model.Policy) string {
	b, _ := json.Marshal(p)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
