// Package policy implements the declarative condition algebra and decision
// engine evaluated against every adapter execution request (spec §4.3).
package policy

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/clasper-run/clasper/internal/model"
)

// Evaluate reports whether a single condition holds against req. field is
// the condition map's key: a dotted path into req (e.g.
// "context.targets.paths", "context.exec.argv0", "tool").
func Evaluate(field string, cond model.Condition, req model.ExecutionRequest) (bool, error) {
	actual, found := resolveField(field, req)

	switch cond.Op {
	case model.OpExists:
		want, _ := cond.Value.(bool)
		return found == want, nil

	case model.OpEquals:
		if !found {
			return false, nil
		}
		return stringify(actual) == stringify(cond.Value), nil

	case model.OpIn:
		if !found {
			return false, nil
		}
		needle := stringify(actual)
		for _, v := range cond.Values {
			if v == needle {
				return true, nil
			}
		}
		return false, nil

	case model.OpPrefix:
		if !found {
			return false, nil
		}
		prefix := stringify(cond.Value)
		return strings.HasPrefix(stringify(actual), prefix), nil

	case model.OpAllUnder:
		paths, ok := toStringSlice(actual)
		if !found || !ok || len(paths) == 0 {
			return false, nil
		}
		for _, p := range paths {
			if !isUnder(p, cond.Values) {
				return false, nil
			}
		}
		return true, nil

	case model.OpAnyUnder:
		paths, ok := toStringSlice(actual)
		if !found || !ok {
			return false, nil
		}
		for _, p := range paths {
			if isUnder(p, cond.Values) {
				return true, nil
			}
		}
		return false, nil

	case model.OpRego:
		return evaluateRego(cond, req)

	default:
		return false, fmt.Errorf("unknown condition operator %q", cond.Op)
	}
}

// isUnder reports whether path is equal to, or a path-separated descendant
// of, one of roots.
func isUnder(path string, roots []string) bool {
	path = strings.TrimSuffix(path, "/")
	for _, root := range roots {
		root = strings.TrimSuffix(root, "/")
		if path == root || strings.HasPrefix(path, root+"/") {
			return true
		}
	}
	return false
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func toStringSlice(v interface{}) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, stringify(e))
		}
		return out, true
	default:
		return nil, false
	}
}

// resolveField walks a dotted path into req's JSON representation. Using
// the JSON encoding (rather than reflection over the Go struct) keeps this
// in lockstep with the wire field names policies are authored against.
func resolveField(field string, req model.ExecutionRequest) (interface{}, bool) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, false
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, false
	}

	parts := strings.Split(field, ".")
	var cur interface{} = doc
	for _, part := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
