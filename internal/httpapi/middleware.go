package httpapi

import (
	"github.com/clasper-run/clasper/internal/auth"
	"github.com/clasper-run/clasper/internal/common"
	"github.com/labstack/echo/v4"
)

const (
	headerAdapterToken = "X-Adapter-Token"
	headerOpsAPIKey    = "X-Ops-Api-Key"

	claimsContextKey = "clasper_claims"
)

// adapterAuthMiddleware verifies X-Adapter-Token and attaches the resulting
// claims to the echo context for handlers to read (spec §4.1, §6).
func (s *Server) adapterAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := s.tokens.Verify(c.Request().Header.Get(headerAdapterToken))
			if err != nil {
				return mapAuthError(err)
			}
			c.Set(claimsContextKey, claims)
			return next(c)
		}
	}
}

// opsAuthMiddleware gates the operator surface behind X-Ops-Api-Key. An
// empty configured key disables operator auth (single-operator dev mode,
// spec §6).
func (s *Server) opsAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s.cfg.OpsAPIKey == "" {
				return next(c)
			}
			if c.Request().Header.Get(headerOpsAPIKey) != s.cfg.OpsAPIKey {
				return common.NewError(common.CodeInvalidToken, "invalid or missing ops api key")
			}
			return next(c)
		}
	}
}

// claimsFromEcho extracts the claims [adapterAuthMiddleware] attached.
func claimsFromEcho(c echo.Context) *auth.Claims {
	claims, _ := c.Get(claimsContextKey).(*auth.Claims)
	return claims
}
