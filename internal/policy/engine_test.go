package policy

import (
	"testing"
	"time"

	"github.com/clasper-run/clasper/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	policies []model.Policy
}

func (f *fakeSource) ListPoliciesInScope(tenantID, workspaceID string, subjectType model.SubjectType, subjectName string) ([]model.Policy, error) {
	var out []model.Policy
	for _, p := range f.policies {
		if p.Scope.TenantID != tenantID {
			continue
		}
		if p.Subject.Type != subjectType {
			continue
		}
		if p.Subject.Name != "" && p.Subject.Name != subjectName {
			continue
		}
		if !p.Enabled {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func baseRequest() model.ExecutionRequest {
	return model.ExecutionRequest{
		ExecutionID: "e1", TenantID: "t1", AdapterID: "a1", Tool: "shell.exec",
		Context: model.RequestContext{Targets: model.Targets{Paths: []string{"/home/user/project/file.txt"}}},
	}
}

func TestEvaluateDefaultAllowsWithNoPolicies(t *testing.T) {
	e := NewEngine(&fakeSource{})
	out, err := e.Evaluate(baseRequest())
	require.NoError(t, err)
	assert.Equal(t, model.EffectAllow, out.Effect)
	assert.False(t, out.PolicyFallbackHit)
}

func TestEvaluateAllowWhenPolicyMatches(t *testing.T) {
	e := NewEngine(&fakeSource{policies: []model.Policy{
		{
			PolicyID: "p-allow", Scope: model.Scope{TenantID: "t1"},
			Subject: model.Subject{Type: model.SubjectTool, Name: "shell.exec"},
			Effect:  model.PolicyEffect{Decision: model.EffectAllow},
			Enabled: true, Precedence: 1,
		},
	}})

	out, err := e.Evaluate(baseRequest())
	require.NoError(t, err)
	assert.Equal(t, model.EffectAllow, out.Effect)
	assert.Contains(t, out.MatchedPolicies, "p-allow")
}

func TestEvaluateDenyOutranksAllowAtSamePrecedence(t *testing.T) {
	e := NewEngine(&fakeSource{policies: []model.Policy{
		{PolicyID: "p-allow", Scope: model.Scope{TenantID: "t1"}, Subject: model.Subject{Type: model.SubjectTool, Name: "shell.exec"}, Effect: model.PolicyEffect{Decision: model.EffectAllow}, Enabled: true, Precedence: 5},
		{PolicyID: "p-deny", Scope: model.Scope{TenantID: "t1"}, Subject: model.Subject{Type: model.SubjectTool, Name: "shell.exec"}, Effect: model.PolicyEffect{Decision: model.EffectDeny}, Enabled: true, Precedence: 5},
	}})

	out, err := e.Evaluate(baseRequest())
	require.NoError(t, err)
	assert.Equal(t, model.EffectDeny, out.Effect)
}

func TestEvaluateConditionGatesMatch(t *testing.T) {
	e := NewEngine(&fakeSource{policies: []model.Policy{
		{
			PolicyID: "p-scoped", Scope: model.Scope{TenantID: "t1"},
			Subject:    model.Subject{Type: model.SubjectTool, Name: "shell.exec"},
			Conditions: map[string]model.Condition{"context.targets.paths": {Op: model.OpAllUnder, Values: []string{"/tmp"}}},
			Effect:     model.PolicyEffect{Decision: model.EffectAllow},
			Enabled:    true, Precedence: 1,
		},
	}})

	out, err := e.Evaluate(baseRequest())
	require.NoError(t, err)
	assert.Equal(t, model.EffectAllow, out.Effect)
	assert.False(t, out.PolicyFallbackHit)
	assert.Empty(t, out.MatchedPolicies)
}

func TestEvaluatePolicyFallbackHitWhenOnlyMatchIsFallback(t *testing.T) {
	e := NewEngine(&fakeSource{policies: []model.Policy{
		{
			PolicyID: "p-fallback", Scope: model.Scope{TenantID: "t1"},
			Subject:    model.Subject{Type: model.SubjectAdapter, Name: "a1"},
			Effect:     model.PolicyEffect{Decision: model.EffectRequireApproval},
			Enabled:    true, Precedence: 0, IsFallback: true,
		},
	}})

	out, err := e.Evaluate(baseRequest())
	require.NoError(t, err)
	assert.Equal(t, model.EffectRequireApproval, out.Effect)
	assert.True(t, out.PolicyFallbackHit)
}

func TestEvaluatePolicyFallbackHitFalseWhenNonFallbackAlsoWinsAtEffect(t *testing.T) {
	e := NewEngine(&fakeSource{policies: []model.Policy{
		{
			PolicyID: "p-explicit", Scope: model.Scope{TenantID: "t1"},
			Subject: model.Subject{Type: model.SubjectTool, Name: "shell.exec"},
			Effect:  model.PolicyEffect{Decision: model.EffectRequireApproval},
			Enabled: true, Precedence: 5,
		},
		{
			PolicyID: "p-fallback", Scope: model.Scope{TenantID: "t1"},
			Subject:    model.Subject{Type: model.SubjectAdapter, Name: "a1"},
			Effect:     model.PolicyEffect{Decision: model.EffectRequireApproval},
			Enabled:    true, Precedence: 0, IsFallback: true,
		},
	}})

	out, err := e.Evaluate(baseRequest())
	require.NoError(t, err)
	assert.Equal(t, model.EffectRequireApproval, out.Effect)
	assert.False(t, out.PolicyFallbackHit)
}

func TestEvaluateGrantedScopeDefaultsExpiry(t *testing.T) {
	e := NewEngine(&fakeSource{policies: []model.Policy{
		{
			PolicyID: "p-allow", Scope: model.Scope{TenantID: "t1"},
			Subject: model.Subject{Type: model.SubjectTool, Name: "shell.exec"},
			Effect:  model.PolicyEffect{Decision: model.EffectAllow, GrantedScope: &model.GrantedScope{Capabilities: []string{"fs.read"}}},
			Enabled: true, Precedence: 1,
		},
	}})

	out, err := e.Evaluate(baseRequest())
	require.NoError(t, err)
	require.NotNil(t, out.GrantedScope)
	assert.True(t, out.GrantedScope.ExpiresAt.After(time.Now()))
}
