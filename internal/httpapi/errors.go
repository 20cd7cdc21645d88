package httpapi

import (
	"errors"
	"net/http"

	"github.com/clasper-run/clasper/internal/auth"
	"github.com/clasper-run/clasper/internal/common"
	"github.com/labstack/echo/v4"
)

// governanceErrorResponse writes gerr as the documented {error, code} body
// (spec §6, §7) at its mapped HTTP status.
func governanceErrorResponse(c echo.Context, gerr *common.GovernanceError) error {
	body := map[string]interface{}{"error": gerr.Message, "code": string(gerr.Code)}
	if gerr.BlockedReason != "" {
		body["blocked_reason"] = gerr.BlockedReason
	}
	return c.JSON(gerr.Code.HTTPStatus(), body)
}

// mapAuthError translates an [auth.TokenManager] verification failure into
// the taxonomy spec §4.1/§7 documents.
func mapAuthError(err error) *common.GovernanceError {
	switch {
	case errors.Is(err, auth.ErrNoToken):
		return common.NewError(common.CodeMissingToken, "no adapter token provided")
	case errors.Is(err, auth.ErrExpiredToken):
		return common.NewError(common.CodeInvalidToken, "adapter token has expired")
	case errors.Is(err, auth.ErrRevokedToken):
		return common.NewError(common.CodeInvalidToken, "adapter token has been revoked")
	case errors.Is(err, auth.ErrMissingClaim):
		return common.NewError(common.CodeMissingClaim, "adapter token is missing a required claim")
	case errors.Is(err, auth.ErrLocalTenantUnset):
		return common.NewError(common.CodeConfigError, "local tenant is not configured")
	case errors.Is(err, auth.ErrWrongTenant), errors.Is(err, auth.ErrWrongWorkspace):
		return common.NewError(common.CodeInvalidToken, "adapter token was not minted for this tenant/workspace")
	default:
		return common.NewError(common.CodeInvalidToken, "invalid adapter token")
	}
}

// errorHandler is installed as echo's HTTPErrorHandler so that handlers can
// return a plain error (or *common.GovernanceError) and still get the
// documented JSON error shape.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var gerr *common.GovernanceError
	if errors.As(err, &gerr) {
		_ = governanceErrorResponse(c, gerr)
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		_ = c.JSON(httpErr.Code, map[string]interface{}{"error": httpErr.Message})
		return
	}

	logger.SysErrorf("unhandled handler error: %+v", err)
	_ = c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": "internal error", "code": string(common.CodeInternal)})
}
