package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/clasper-run/clasper/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackPolicyRequiresApprovalForEveryAdapter(t *testing.T) {
	p := fallbackPolicy("t1")
	assert.Equal(t, "t1", p.Scope.TenantID)
	assert.Equal(t, model.SubjectAdapter, p.Subject.Type)
	assert.Equal(t, model.EffectRequireApproval, p.Effect.Decision)
	assert.True(t, p.IsFallback)
	assert.True(t, p.Enabled)
}

func TestLoadPolicyFileParsesJSONArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"scope": {"tenant_id": "t1"}, "subject": {"type": "tool", "name": "shell.exec"},
		 "effect": {"decision": "deny"}, "precedence": 10, "enabled": true}
	]`), 0o600))

	policies, err := loadPolicyFile(path)
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, model.EffectDeny, policies[0].Effect.Decision)
	assert.Equal(t, "shell.exec", policies[0].Subject.Name)
}

func TestLoadPolicyFileParsesYAMLArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- scope:
    tenant_id: t1
  subject:
    type: tool
    name: shell.exec
  effect:
    decision: deny
  precedence: 10
  enabled: true
`), 0o600))

	policies, err := loadPolicyFile(path)
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, model.EffectDeny, policies[0].Effect.Decision)
	assert.Equal(t, "shell.exec", policies[0].Subject.Name)
}

func TestLoadPolicyFileRejectsMissingFile(t *testing.T) {
	_, err := loadPolicyFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
