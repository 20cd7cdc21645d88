package httpapi

import (
	"net/http"

	"github.com/clasper-run/clasper/internal/common"
	"github.com/labstack/echo/v4"
)

type resolveDecisionRequest struct {
	Action        string `json:"action"`
	Justification string `json:"justification"`
	ApprovalType  string `json:"approval_type,omitempty"`
}

// handleResolveDecision implements POST /api/decisions/:decision_id/resolve
// (spec §4.4, §6). Local approvals require a justification of at least ten
// characters; a re-resolution of an already-terminal decision is an
// idempotent no-op (invariant I4).
func (s *Server) handleResolveDecision(c echo.Context) error {
	decisionID := c.Param("decision_id")

	var body resolveDecisionRequest
	if err := c.Bind(&body); err != nil {
		return common.NewError(common.CodeValidation, "malformed resolve request: %v", err)
	}
	if body.Action != "approve" && body.Action != "deny" {
		return common.NewError(common.CodeValidation, "action must be \"approve\" or \"deny\"")
	}
	if len(body.Justification) < 10 {
		return common.NewError(common.CodeValidation, "justification must be at least 10 characters")
	}

	resolverID := c.Request().Header.Get(headerOpsAPIKey)
	if resolverID == "" {
		resolverID = "local-operator"
	}

	d, err := s.ledger.Resolve(decisionID, body.Action, body.Justification, resolverID)
	if err != nil {
		return common.NewError(common.CodeNotFound, "no decision %s: %v", decisionID, err)
	}
	return c.JSON(http.StatusOK, d)
}

type reconcileRequest struct {
	TenantID    string `json:"tenant_id"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// handleReconcile implements POST /ops/api/decisions/reconcile (spec §4.4,
// §6).
func (s *Server) handleReconcile(c echo.Context) error {
	var body reconcileRequest
	if err := c.Bind(&body); err != nil {
		return common.NewError(common.CodeValidation, "malformed reconcile request: %v", err)
	}
	tenantID := body.TenantID
	if tenantID == "" {
		tenantID = s.cfg.LocalTenantID
	}

	resolved, err := s.ledger.ReconcilePending(tenantID)
	if err != nil {
		return common.NewError(common.CodeInternal, "reconcile pending decisions: %v", err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"resolved_count":       len(resolved),
		"resolved_decision_ids": resolved,
	})
}
