// Package model defines the control plane's core data types: adapters,
// policies, execution requests, decisions, tool authorizations, audit
// entries, and traces (spec §3).
package model

import "time"

// RiskClass classifies an adapter's blast radius.
type RiskClass string

// Risk classes, lowest to highest.
const (
	RiskLow      RiskClass = "low"
	RiskMedium   RiskClass = "medium"
	RiskHigh     RiskClass = "high"
	RiskCritical RiskClass = "critical"
)

// Adapter is a registered dispatcher process (spec §3, Adapter).
type Adapter struct {
	TenantID     string    `json:"tenant_id"`
	AdapterID    string    `json:"adapter_id"`
	Version      string    `json:"version"`
	DisplayName  string    `json:"display_name"`
	RiskClass    RiskClass `json:"risk_class"`
	Capabilities []string  `json:"capabilities"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AdapterRegistration is the body of POST /adapters/register.
type AdapterRegistration struct {
	AdapterID    string    `json:"adapter_id"`
	Version      string    `json:"version"`
	DisplayName  string    `json:"display_name"`
	RiskClass    RiskClass `json:"risk_class"`
	Capabilities []string  `json:"capabilities"`
}

// Effect is the outcome class a policy (or decision) may produce.
type Effect string

// Effect values, in the deny > require_approval > allow precedence order
// used to break ties between matched policies (spec §4.3).
const (
	EffectAllow           Effect = "allow"
	EffectDeny            Effect = "deny"
	EffectRequireApproval Effect = "require_approval"
	EffectPending         Effect = "pending"
)

// classRank orders effects for tie-breaking: deny > require_approval > allow.
var classRank = map[Effect]int{
	EffectDeny:            3,
	EffectRequireApproval: 2,
	EffectPending:         2,
	EffectAllow:           1,
}

// Outranks reports whether e should win a tie against other under the
// deny > require_approval > allow total order.
func (e Effect) Outranks(other Effect) bool {
	return classRank[e] > classRank[other]
}

// SubjectType names what a policy's subject predicate is matched against.
type SubjectType string

// Subject types supported by policies.
const (
	SubjectTool       SubjectType = "tool"
	SubjectCapability SubjectType = "capability"
	SubjectSkill      SubjectType = "skill"
	SubjectAdapter    SubjectType = "adapter"
)

// Subject identifies what a Policy applies to.
type Subject struct {
	Type SubjectType `json:"type"`
	Name string      `json:"name,omitempty"`
}

// Scope bounds where a Policy applies.
type Scope struct {
	TenantID    string `json:"tenant_id"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// ConditionOp names the comparison an evaluated [Condition] performs
// (spec §4.3).
type ConditionOp string

// Condition operators.
const (
	OpEquals  ConditionOp = "equals"
	OpIn      ConditionOp = "in"
	OpPrefix  ConditionOp = "prefix"
	OpAllUnder ConditionOp = "all_under"
	OpAnyUnder ConditionOp = "any_under"
	OpExists  ConditionOp = "exists"
	OpRego    ConditionOp = "rego"
)

// Condition is one field-level predicate within a Policy's condition map.
// The map key under which it appears is the dotted path into the
// ExecutionRequest the operator is evaluated against (e.g.
// "context.targets.paths").
type Condition struct {
	Op     ConditionOp `json:"op"`
	Value  interface{} `json:"value,omitempty"`
	Values []string    `json:"values,omitempty"`
}

// PolicyEffect is the outcome a matched policy produces.
type PolicyEffect struct {
	Decision     Effect        `json:"decision"`
	RequiredRole string        `json:"required_role,omitempty"`
	GrantedScope *GrantedScope `json:"granted_scope,omitempty"`
}

// Policy is a declarative rule evaluated over an ExecutionRequest (spec §4.3).
type Policy struct {
	PolicyID    string            `json:"policy_id"`
	Scope       Scope             `json:"scope"`
	Subject     Subject           `json:"subject"`
	Conditions  map[string]Condition `json:"conditions"`
	Effect      PolicyEffect      `json:"effect"`
	Precedence  int               `json:"precedence"`
	Enabled     bool              `json:"enabled"`
	Explanation string            `json:"explanation,omitempty"`
	IsFallback  bool              `json:"is_fallback"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Targets are the resources a requested tool invocation reaches for.
type Targets struct {
	Paths []string `json:"paths,omitempty"`
	Hosts []string `json:"hosts,omitempty"`
}

// ExecContext carries shell-exec-specific fields derived from the raw
// invocation.
type ExecContext struct {
	Argv0 string   `json:"argv0,omitempty"`
	Argv  []string `json:"argv,omitempty"`
	Cwd   string   `json:"cwd,omitempty"`
}

// SideEffects summarizes the blast radius the shim inferred for a request.
type SideEffects struct {
	WritesPossible  bool `json:"writes_possible"`
	NetworkPossible bool `json:"network_possible"`
}

// RequestContext is the context block of an ExecutionRequest (spec §3).
type RequestContext struct {
	ExternalNetwork     bool        `json:"external_network"`
	WritesFiles         bool        `json:"writes_files"`
	ElevatedPrivileges  bool        `json:"elevated_privileges"`
	PackageManager      string      `json:"package_manager,omitempty"`
	Targets             Targets     `json:"targets"`
	Exec                ExecContext `json:"exec"`
	SideEffects         SideEffects `json:"side_effects"`
}

// Provenance records where an execution request originated.
type Provenance struct {
	Source string `json:"source,omitempty"`
}

// ExecutionRequest is one side-effect request from an adapter (spec §3).
type ExecutionRequest struct {
	ExecutionID           string         `json:"execution_id"`
	AdapterID              string         `json:"adapter_id"`
	TenantID               string         `json:"tenant_id"`
	WorkspaceID            string         `json:"workspace_id,omitempty"`
	RequestedCapabilities  []string       `json:"requested_capabilities,omitempty"`
	Tool                   string         `json:"tool,omitempty"`
	ToolGroup              string         `json:"tool_group,omitempty"`
	Skill                  string         `json:"skill,omitempty"`
	Intent                 string         `json:"intent,omitempty"`
	Context                RequestContext `json:"context"`
	Provenance             *Provenance    `json:"provenance,omitempty"`
}

// GrantedScope bounds what an allow decision actually permits (spec §3, I2).
type GrantedScope struct {
	Capabilities []string  `json:"capabilities"`
	MaxSteps     int       `json:"max_steps,omitempty"`
	MaxCost      float64   `json:"max_cost,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// TraceResult is whether a policy matched or was skipped during evaluation.
type TraceResult string

// Trace results.
const (
	TraceMatched TraceResult = "matched"
	TraceSkipped TraceResult = "skipped"
)

// DecisionTraceEntry is one policy's evaluation outcome (spec §3, §4.3).
type DecisionTraceEntry struct {
	PolicyID    string       `json:"policy_id"`
	Result      TraceResult  `json:"result"`
	Decision    Effect       `json:"decision,omitempty"`
	Explanation string       `json:"explanation,omitempty"`
}

// Status is the lifecycle state of a Decision (spec §3).
type Status string

// Decision statuses.
const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusRejected Status = "rejected"
)

// ApprovalType distinguishes self-attested local approvals from any future
// externally-verifiable ones (spec: "Non-goals", no external attestation).
type ApprovalType string

// Approval types.
const (
	ApprovalLocal ApprovalType = "local"
	ApprovalCloud ApprovalType = "cloud"
)

// Resolution records how a pending Decision was resolved (spec §4.4).
type Resolution struct {
	Action       string       `json:"action"` // approve | deny
	Justification string      `json:"justification"`
	ApprovalType ApprovalType `json:"approval_type"`
	ResolvedAt   time.Time    `json:"resolved_at"`
	ResolverID   string       `json:"resolver_id,omitempty"`
}

// ApprovalMode is the process-wide switch between auditable simulation and
// real blocking approval (spec §4.3).
type ApprovalMode string

// Approval modes.
const (
	ModeSimulate ApprovalMode = "simulate"
	ModeEnforce  ApprovalMode = "enforce"
)

// Decision is the authoritative outcome of evaluating an ExecutionRequest
// (spec §3, §4.3).
type Decision struct {
	DecisionID         string               `json:"decision_id"`
	ExecutionID        string               `json:"execution_id"`
	TenantID           string               `json:"tenant_id"`
	WorkspaceID        string               `json:"workspace_id,omitempty"`
	AdapterID          string               `json:"adapter_id"`
	Effect             Effect               `json:"effect"`
	GrantedScope       *GrantedScope        `json:"granted_scope,omitempty"`
	MatchedPolicies    []string             `json:"matched_policies"`
	PolicyFallbackHit  bool                 `json:"policy_fallback_hit"`
	DecisionTrace      []DecisionTraceEntry `json:"decision_trace"`
	BlockedReason      string               `json:"blocked_reason,omitempty"`
	RequiredRole       string               `json:"required_role,omitempty"`
	ApprovalMode       ApprovalMode         `json:"approval_mode"`
	Status             Status               `json:"status"`
	RequestSnapshot    ExecutionRequest     `json:"request_snapshot"`
	Resolution         *Resolution          `json:"resolution,omitempty"`
	AutoAllowedInCore  bool                 `json:"auto_allowed_in_core,omitempty"`
	ApprovalSource     string               `json:"approval_source,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// ToolAuthorization is a per-request record of one tool ruling (spec §3,
// §4.5).
type ToolAuthorization struct {
	ExecutionID  string        `json:"execution_id"`
	AdapterID    string        `json:"adapter_id"`
	Tool         string        `json:"tool"`
	ToolGroup    string        `json:"tool_group,omitempty"`
	Decision     Effect        `json:"decision"`
	PolicyID     string        `json:"policy_id,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	GrantedScope *GrantedScope `json:"granted_scope,omitempty"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// AuditLinkage ties an audit entry back to the execution/trace/workspace it
// concerns, when applicable.
type AuditLinkage struct {
	ExecutionID string `json:"execution_id,omitempty"`
	TraceID     string `json:"trace_id,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// AuditEntry is one chain-linked governance event (spec §3, §4.5).
type AuditEntry struct {
	TenantID      string                 `json:"tenant_id"`
	Seq           int64                  `json:"seq"`
	EventType     string                 `json:"event_type"`
	EventData     map[string]interface{} `json:"event_data"`
	PrevEventHash string                 `json:"prev_event_hash"`
	EventHash     string                 `json:"event_hash"`
	CreatedAt     time.Time              `json:"created_at"`
	Linkage       AuditLinkage           `json:"linkage,omitempty"`
}

// IntegrityStatus is the result of verifying a trace's step hashes.
type IntegrityStatus string

// Integrity statuses (spec §3, Trace).
const (
	IntegrityVerified    IntegrityStatus = "verified"
	IntegrityUnsigned    IntegrityStatus = "unsigned"
	IntegrityCompromised IntegrityStatus = "compromised"
	IntegrityUnverified  IntegrityStatus = "unverified"
)

// TrustStatus is derived from IntegrityStatus plus any reported violations
// (spec I7: never stored independently).
type TrustStatus string

// Trust statuses.
const (
	TrustVerified                TrustStatus = "verified"
	TrustVerifiedWithViolations TrustStatus = "verified_with_violations"
	TrustUnverified              TrustStatus = "unverified"
	TrustCompromised             TrustStatus = "compromised"
)

// DeriveTrustStatus implements invariant I7.
func DeriveTrustStatus(integrity IntegrityStatus, violationCount int) TrustStatus {
	switch integrity {
	case IntegrityCompromised:
		return TrustCompromised
	case IntegrityVerified:
		if violationCount > 0 {
			return TrustVerifiedWithViolations
		}
		return TrustVerified
	default:
		return TrustUnverified
	}
}

// TraceStep is one recorded step of a post-execution trace.
type TraceStep struct {
	Index     int                    `json:"index"`
	Name      string                 `json:"name"`
	Hash      string                 `json:"hash"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Violation is one reported scope/policy violation observed during or after
// execution.
type Violation struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Trace is the post-execution narrative ingested for one execution (spec
// §3, §4.7).
type Trace struct {
	TraceID         string          `json:"trace_id"`
	ExecutionID     string          `json:"execution_id"`
	AdapterID       string          `json:"adapter_id"`
	Steps           []TraceStep     `json:"steps"`
	GrantedScope    *GrantedScope   `json:"granted_scope,omitempty"`
	UsedScope       *GrantedScope   `json:"used_scope,omitempty"`
	Violations      []Violation     `json:"violations,omitempty"`
	IntegrityStatus IntegrityStatus `json:"integrity_status"`
	TrustStatus     TrustStatus     `json:"trust_status"`
	IngestedAt      time.Time       `json:"ingested_at"`
}
