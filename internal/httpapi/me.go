package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// handleMe implements GET /ops/api/me (spec §6): resolves the local
// operator identity. This single-tenant instance presents exactly one
// operator with full policy-management permission — there is no
// cross-operator RBAC (spec Non-goals).
func (s *Server) handleMe(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"operator_id": "local-operator",
		"tenant_id":   s.cfg.LocalTenantID,
		"permissions": []string{"policy:manage", "decision:resolve", "adapter:manage"},
	})
}
