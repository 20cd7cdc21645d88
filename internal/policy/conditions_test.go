package policy

import (
	"testing"

	"github.com/clasper-run/clasper/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reqWithPaths(paths ...string) model.ExecutionRequest {
	return model.ExecutionRequest{Context: model.RequestContext{Targets: model.Targets{Paths: paths}}}
}

func TestEvaluateEquals(t *testing.T) {
	req := model.ExecutionRequest{Tool: "shell.exec"}
	ok, err := Evaluate("tool", model.Condition{Op: model.OpEquals, Value: "shell.exec"}, req)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Evaluate("tool", model.Condition{Op: model.OpEquals, Value: "fs.read"}, req)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateIn(t *testing.T) {
	req := model.ExecutionRequest{Tool: "fs.write"}
	ok, err := Evaluate("tool", model.Condition{Op: model.OpIn, Values: []string{"fs.read", "fs.write"}}, req)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluatePrefix(t *testing.T) {
	req := model.ExecutionRequest{Skill: "git.commit"}
	ok, err := Evaluate("skill", model.Condition{Op: model.OpPrefix, Value: "git."}, req)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateAllUnder(t *testing.T) {
	req := reqWithPaths("/home/user/repo/a.go", "/home/user/repo/b.go")
	ok, err := Evaluate("context.targets.paths", model.Condition{Op: model.OpAllUnder, Values: []string{"/home/user/repo"}}, req)
	require.NoError(t, err)
	assert.True(t, ok)

	req2 := reqWithPaths("/home/user/repo/a.go", "/etc/passwd")
	ok, err = Evaluate("context.targets.paths", model.Condition{Op: model.OpAllUnder, Values: []string{"/home/user/repo"}}, req2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateAnyUnder(t *testing.T) {
	req := reqWithPaths("/home/user/repo/a.go", "/etc/passwd")
	ok, err := Evaluate("context.targets.paths", model.Condition{Op: model.OpAnyUnder, Values: []string{"/etc"}}, req)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateExists(t *testing.T) {
	req := model.ExecutionRequest{Skill: "git.commit"}
	ok, err := Evaluate("skill", model.Condition{Op: model.OpExists, Value: true}, req)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Evaluate("intent", model.Condition{Op: model.OpExists, Value: true}, req)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateRegoDisabledByDefault(t *testing.T) {
	SetRegoOperatorsEnabled(false)
	req := model.ExecutionRequest{Tool: "shell.exec"}
	_, err := Evaluate("", model.Condition{Op: model.OpRego, Value: "data.clasper.allow"}, req)
	assert.Error(t, err)
}

func TestEvaluateUnknownOperator(t *testing.T) {
	req := model.ExecutionRequest{}
	_, err := Evaluate("tool", model.Condition{Op: "bogus"}, req)
	assert.Error(t, err)
}
