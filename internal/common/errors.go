// Package common provides shared error types used across the control plane.
//
// # Error Handling
//
// [GovernanceError] carries a machine-readable reason code alongside a
// human-readable message so every governance-relevant failure (auth,
// validation, decision-denied) can be surfaced to callers and recorded in
// the audit chain without losing structure.
package common

import "fmt"

// Code is the machine-readable error classification from spec §7.
type Code string

// Error taxonomy. HTTP handlers map these to the documented status codes.
const (
	CodeMissingToken             Code = "missing_token"
	CodeInvalidToken             Code = "invalid_token"
	CodeMissingClaim             Code = "missing_claim"
	CodeConfigError              Code = "config_error"
	CodeValidation               Code = "validation_error"
	CodeWizardAllowAckRequired   Code = "wizard_allow_ack_required"
	CodePolicyDenied             Code = "policy_denied"
	CodeApprovalTimeout          Code = "approval_timeout"
	CodeUnreachableControlPlane  Code = "control_plane_unreachable"
	CodeUnknownEffect            Code = "unknown_effect"
	CodeNotFound                 Code = "not_found"
	CodeAuditChainCompromised    Code = "audit_chain_compromised"
	CodeInternal                 Code = "internal_error"
)

// GovernanceError is returned instead of a bare error anywhere the failure
// needs to be both reported to a caller and preserved in an audit trail.
type GovernanceError struct {
	Code    Code
	Message string
	// BlockedReason carries the policy-denial explanation for CodePolicyDenied.
	BlockedReason string
}

// Error implements the error interface.
func (e *GovernanceError) Error() string {
	if e.BlockedReason != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.BlockedReason)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds a [GovernanceError] with the given code and message.
func NewError(code Code, format string, args ...interface{}) *GovernanceError {
	return &GovernanceError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewDeniedError builds a CodePolicyDenied error carrying the decision's
// blocked reason, for propagation from the decision engine to the shim.
func NewDeniedError(blockedReason string) *GovernanceError {
	return &GovernanceError{
		Code:          CodePolicyDenied,
		Message:       "request denied by policy",
		BlockedReason: blockedReason,
	}
}

// HTTPStatus maps a Code to the status code documented in spec §6/§7.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeMissingToken, CodeInvalidToken, CodeMissingClaim:
		return 401
	case CodeConfigError:
		return 500
	case CodeValidation, CodeWizardAllowAckRequired:
		return 400
	case CodePolicyDenied:
		return 403
	case CodeNotFound:
		return 404
	default:
		return 500
	}
}
