package httpapi

import (
	"net/http"

	"github.com/clasper-run/clasper/internal/common"
	"github.com/clasper-run/clasper/internal/model"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// handleExecutionRequest implements POST /api/execution/request (spec
// §4.3, §6). The adapter/tenant/workspace identity is taken from the
// verified token, never the request body, so a caller cannot forge another
// adapter's decision.
func (s *Server) handleExecutionRequest(c echo.Context) error {
	claims := claimsFromEcho(c)

	var req model.ExecutionRequest
	if err := c.Bind(&req); err != nil {
		return common.NewError(common.CodeValidation, "malformed execution request: %v", err)
	}

	if req.ExecutionID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return common.NewError(common.CodeInternal, "mint execution id: %v", err)
		}
		req.ExecutionID = id.String()
	}
	req.TenantID = claims.TenantID
	req.AdapterID = claims.AdapterID
	req.WorkspaceID = claims.WorkspaceID

	decision, err := s.ledger.Decide(req)
	if err != nil {
		return common.NewError(common.CodeInternal, "evaluate execution request: %v", err)
	}
	return c.JSON(http.StatusOK, decision)
}

// handleGetExecution implements GET /api/execution/:execution_id (spec §6).
func (s *Server) handleGetExecution(c echo.Context) error {
	executionID := c.Param("execution_id")

	d, err := s.ledger.GetByExecutionID(executionID)
	if err != nil {
		return common.NewError(common.CodeNotFound, "no decision recorded for execution %s", executionID)
	}

	var approvalType *string
	if d.Resolution != nil {
		at := string(d.Resolution.ApprovalType)
		approvalType = &at
	}

	// A resolved decision reports the effect its resolution produced, so a
	// polling adapter sees allow or deny once an operator has ruled.
	effect := d.Effect
	switch d.Status {
	case model.StatusApproved:
		effect = model.EffectAllow
	case model.StatusDenied, model.StatusRejected:
		effect = model.EffectDeny
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"execution_id":  d.ExecutionID,
		"effect":        effect,
		"decision_id":   d.DecisionID,
		"approval_type": approvalType,
	})
}

// handleListToolAuthorizations implements GET
// /api/executions/:execution_id/tool-authorizations, the carried-over
// endpoint backing tool-registry/tool-usage views (spec SPEC_FULL.md §6).
func (s *Server) handleListToolAuthorizations(c echo.Context) error {
	executionID := c.Param("execution_id")

	tas, err := s.ledger.ListToolAuthorizations(executionID)
	if err != nil {
		return common.NewError(common.CodeInternal, "list tool authorizations: %v", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"tool_authorizations": tas})
}
