package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/clasper-run/clasper/internal/model"
	"github.com/open-policy-agent/opa/v1/rego"
)

// regoOperatorsEnabled gates the "rego:" condition operator (spec §4.3:
// disabled by default, unlocked by CLASPER_POLICY_OPERATORS=true). Kept as
// package state rather than threaded through every Evaluate call since the
// setting is process-wide and rarely toggled outside tests.
var regoOperatorsEnabled atomic.Bool

// SetRegoOperatorsEnabled toggles whether the "rego:" condition operator is
// permitted. Call once at startup from the loaded configuration.
func SetRegoOperatorsEnabled(enabled bool) {
	regoOperatorsEnabled.Store(enabled)
}

// evaluateRego runs an inline Rego expression against the execution
// request, used for conditions too irregular to express with the built-in
// operator set. cond.Value must be a string: a Rego query such as
// `data.clasper.allow`. The request is passed as `input`.
func evaluateRego(cond model.Condition, req model.ExecutionRequest) (bool, error) {
	if !regoOperatorsEnabled.Load() {
		return false, fmt.Errorf("rego condition operator is disabled (set CLASPER_POLICY_OPERATORS=true)")
	}

	query, ok := cond.Value.(string)
	if !ok || query == "" {
		return false, fmt.Errorf("rego condition requires a string query in value")
	}

	input, err := toInput(req)
	if err != nil {
		return false, err
	}

	ctx := context.Background()
	r := rego.New(
		rego.Query(query),
		rego.Input(input),
	)

	rs, err := r.Eval(ctx)
	if err != nil {
		return false, fmt.Errorf("evaluate rego query: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}

	result, _ := rs[0].Expressions[0].Value.(bool)
	return result, nil
}

func toInput(req model.ExecutionRequest) (map[string]interface{}, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal execution request for rego input: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal execution request for rego input: %w", err)
	}
	return m, nil
}
