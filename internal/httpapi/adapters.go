package httpapi

import (
	"net/http"

	"github.com/clasper-run/clasper/internal/common"
	"github.com/clasper-run/clasper/internal/model"
	"github.com/labstack/echo/v4"
)

// handleRegisterAdapter implements POST /adapters/register (spec §4.2,
// §6). A caller authenticates with either a still-valid adapter token
// (re-registration) or the shared bootstrap secret (first registration).
func (s *Server) handleRegisterAdapter(c echo.Context) error {
	var reg model.AdapterRegistration
	if err := c.Bind(&reg); err != nil {
		return common.NewError(common.CodeValidation, "malformed adapter registration: %v", err)
	}
	if reg.AdapterID == "" {
		return common.NewError(common.CodeValidation, "adapter_id is required")
	}

	if err := s.authorizeRegistration(c); err != nil {
		return err
	}

	adapter, err := s.registry.Register(s.cfg.LocalTenantID, reg)
	if err != nil {
		return common.NewError(common.CodeInternal, "register adapter: %v", err)
	}

	token, err := s.tokens.Mint(s.cfg.LocalTenantID, adapter.AdapterID, s.cfg.LocalWorkspaceID, adapter.Capabilities, adapterTokenTTL)
	if err != nil {
		return common.NewError(common.CodeInternal, "mint adapter token: %v", err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"adapter_id":   adapter.AdapterID,
		"version":      adapter.Version,
		"display_name": adapter.DisplayName,
		"risk_class":   adapter.RiskClass,
		"capabilities": adapter.Capabilities,
		"enabled":      adapter.Enabled,
		"token":        token,
	})
}

// authorizeRegistration accepts either a currently-valid adapter token or
// the configured bootstrap secret, which is how a brand-new adapter
// bootstraps its first token (spec §6: "Requires either a valid adapter
// token ... or a bootstrap token minted from the shared secret").
func (s *Server) authorizeRegistration(c echo.Context) *common.GovernanceError {
	if tok := c.Request().Header.Get(headerAdapterToken); tok != "" {
		if _, err := s.tokens.Verify(tok); err == nil {
			return nil
		}
	}
	if s.cfg.BootstrapSecret != "" && c.Request().Header.Get("X-Bootstrap-Secret") == s.cfg.BootstrapSecret {
		return nil
	}
	return common.NewError(common.CodeMissingToken, "registration requires a valid adapter token or bootstrap secret")
}
