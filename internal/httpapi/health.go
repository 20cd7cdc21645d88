package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// handleHealth implements GET /health (spec §6).
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"components": map[string]interface{}{
			"storage": "ok",
			"policy":  "ok",
			"audit":   "ok",
		},
	})
}
