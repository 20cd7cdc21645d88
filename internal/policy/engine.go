package policy

import (
	"sort"
	"time"

	"github.com/clasper-run/clasper/internal/logging"
	"github.com/clasper-run/clasper/internal/model"
)

var logger = logging.GetLogger("policy")
var agent = "policy"

// Subject is a single (type, name) predicate a request is evaluated
// against. A request is checked against its tool, its tool group (if any),
// each requested capability, its skill, and the adapter itself; the
// policies matched across all of these subjects are combined into one
// outcome (spec §4.3).
type Subject = model.Subject

// PolicySource looks up the policies applicable to one subject in scope,
// ordered by precedence descending. Implemented by internal/storage-backed
// stores and by tests with an in-memory fixture.
type PolicySource interface {
	ListPoliciesInScope(tenantID, workspaceID string, subjectType model.SubjectType, subjectName string) ([]model.Policy, error)
}

// Engine evaluates execution requests against a [PolicySource].
type Engine struct {
	policies PolicySource
}

// NewEngine builds an [Engine] backed by policies.
func NewEngine(policies PolicySource) *Engine {
	return &Engine{policies: policies}
}

// Outcome is the engine's verdict before it is wrapped into a full
// [model.Decision] by the ledger.
type Outcome struct {
	Effect            model.Effect
	GrantedScope      *model.GrantedScope
	MatchedPolicies   []string
	PolicyFallbackHit bool
	Trace             []model.DecisionTraceEntry
	BlockedReason     string
	RequiredRole      string
}

// subjectsFor returns, in priority order, the subjects a request is
// evaluated against.
func subjectsFor(req model.ExecutionRequest) []model.Subject {
	var subjects []model.Subject
	if req.Tool != "" {
		subjects = append(subjects, model.Subject{Type: model.SubjectTool, Name: req.Tool})
	}
	if req.ToolGroup != "" {
		subjects = append(subjects, model.Subject{Type: model.SubjectTool, Name: req.ToolGroup})
	}
	for _, cap := range req.RequestedCapabilities {
		subjects = append(subjects, model.Subject{Type: model.SubjectCapability, Name: cap})
	}
	if req.Skill != "" {
		subjects = append(subjects, model.Subject{Type: model.SubjectSkill, Name: req.Skill})
	}
	subjects = append(subjects, model.Subject{Type: model.SubjectAdapter, Name: req.AdapterID})
	return subjects
}

// Evaluate runs req through every applicable policy and produces an
// [Outcome]. Among all matched policies the effect class decides,
// deny > require_approval > allow, whatever their precedence; precedence
// only orders the policies of one subject (spec §4.3, I1).
// If no policy matches at all, the default is allow. PolicyFallbackHit is
// set only when every policy that won at the decided effect is an
// operator-installed is_fallback policy, never merely because nothing
// else matched.
func (e *Engine) Evaluate(req model.ExecutionRequest) (Outcome, error) {
	logger.Debug(agent, "Evaluate", "enter")
	defer logger.Debug(agent, "Evaluate", "exit")

	var out Outcome
	var allMatched []model.Policy
	seen := make(map[string]bool)

	for _, subject := range subjectsFor(req) {
		policies, err := e.policies.ListPoliciesInScope(req.TenantID, req.WorkspaceID, subject.Type, subject.Name)
		if err != nil {
			return Outcome{}, err
		}
		if len(policies) == 0 {
			continue
		}

		sort.SliceStable(policies, func(i, j int) bool { return policies[i].Precedence > policies[j].Precedence })

		for _, p := range policies {
			if seen[p.PolicyID] {
				continue
			}

			matched, explanation, err := matchConditions(p, req)
			if err != nil {
				return Outcome{}, err
			}

			if !matched {
				out.Trace = append(out.Trace, model.DecisionTraceEntry{PolicyID: p.PolicyID, Result: model.TraceSkipped, Explanation: explanation})
				continue
			}

			seen[p.PolicyID] = true
			allMatched = append(allMatched, p)
			out.Trace = append(out.Trace, model.DecisionTraceEntry{PolicyID: p.PolicyID, Result: model.TraceMatched, Decision: p.Effect.Decision, Explanation: p.Explanation})

			if out.Effect == "" || p.Effect.Decision.Outranks(out.Effect) {
				out.Effect = p.Effect.Decision
				out.RequiredRole = p.Effect.RequiredRole
				out.BlockedReason = p.Explanation
				if p.Effect.GrantedScope != nil {
					scope := *p.Effect.GrantedScope
					if scope.ExpiresAt.IsZero() {
						scope.ExpiresAt = time.Now().UTC().Add(time.Hour)
					}
					out.GrantedScope = &scope
				}
			}
			out.MatchedPolicies = append(out.MatchedPolicies, p.PolicyID)
		}
	}

	if out.Effect == "" {
		out.Effect = model.EffectAllow
		return out, nil
	}

	allFallback := true
	for _, p := range allMatched {
		if p.Effect.Decision == out.Effect && !p.IsFallback {
			allFallback = false
			break
		}
	}
	out.PolicyFallbackHit = allFallback

	return out, nil
}

// matchConditions reports whether every condition attached to p holds
// against req.
func matchConditions(p model.Policy, req model.ExecutionRequest) (bool, string, error) {
	for field, cond := range p.Conditions {
		ok, err := Evaluate(field, cond, req)
		if err != nil {
			return false, "", err
		}
		if !ok {
			return false, "condition " + field + " did not match", nil
		}
	}
	return true, "", nil
}
