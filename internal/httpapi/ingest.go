package httpapi

import (
	"net/http"

	"github.com/clasper-run/clasper/internal/common"
	"github.com/clasper-run/clasper/internal/model"
	"github.com/labstack/echo/v4"
)

// handleIngest implements POST /api/ingest/{trace|audit|cost|metrics|violation}
// (spec §4.7, §6). Every kind dedupes on (execution_id, event_kind); a
// duplicate returns {"status": "duplicate"} with no side effects (P2).
func (s *Server) handleIngest(c echo.Context) error {
	claims := claimsFromEcho(c)
	kind := c.Param("kind")

	switch kind {
	case "trace":
		return s.ingestTrace(c, claims.TenantID)
	case "cost":
		return s.ingestCost(c)
	case "audit", "metrics", "violation":
		return s.ingestEnvelope(c, claims.TenantID, kind)
	default:
		return common.NewError(common.CodeValidation, "unknown ingest kind %q", kind)
	}
}

func (s *Server) ingestTrace(c echo.Context, tenantID string) error {
	var t model.Trace
	if err := c.Bind(&t); err != nil {
		return common.NewError(common.CodeValidation, "malformed trace envelope: %v", err)
	}

	stored, firstSeen, err := s.ingest.SubmitTrace(tenantID, t)
	if err != nil {
		return common.NewError(common.CodeInternal, "ingest trace: %v", err)
	}
	if !firstSeen {
		return c.JSON(http.StatusOK, map[string]interface{}{"status": "duplicate"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"status": "ok", "trace_id": stored.TraceID})
}

type costEnvelope struct {
	ExecutionID string  `json:"execution_id"`
	AdapterID   string  `json:"adapter_id"`
	Amount      float64 `json:"amount"`
	Unit        string  `json:"unit,omitempty"`
}

func (s *Server) ingestCost(c echo.Context) error {
	var env costEnvelope
	if err := c.Bind(&env); err != nil {
		return common.NewError(common.CodeValidation, "malformed cost envelope: %v", err)
	}

	first, err := s.ingest.SubmitCost(env.ExecutionID, env.AdapterID, env.Amount, env.Unit)
	if err != nil {
		return common.NewError(common.CodeInternal, "ingest cost: %v", err)
	}
	if !first {
		return c.JSON(http.StatusOK, map[string]interface{}{"status": "duplicate"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (s *Server) ingestEnvelope(c echo.Context, tenantID, kind string) error {
	var payload map[string]interface{}
	if err := c.Bind(&payload); err != nil {
		return common.NewError(common.CodeValidation, "malformed %s envelope: %v", kind, err)
	}

	executionID, _ := payload["execution_id"].(string)
	if executionID == "" {
		return common.NewError(common.CodeValidation, "%s envelope requires execution_id", kind)
	}

	first, err := s.ingest.SubmitEnvelope(tenantID, executionID, kind, payload)
	if err != nil {
		return common.NewError(common.CodeInternal, "ingest %s: %v", kind, err)
	}
	if !first {
		return c.JSON(http.StatusOK, map[string]interface{}{"status": "duplicate"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"status": "ok"})
}
