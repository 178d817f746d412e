package primitives

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pentaflow/pentaflow/pkg/domain"
)

// Executor runs one primitive category. Implementations are stateless
// and safe for concurrent use; subtype selection happens through an
// internal dispatch table validated at config-validation time, so an
// unknown subtype never reaches Run.
type Executor interface {
	Type() domain.PrimitiveType

	// ValidateConfig checks a node's static config. A failure here is
	// an InvalidConfig error and the executor body is never invoked.
	ValidateConfig(config map[string]interface{}) error

	// Run executes the primitive and returns its raw output map.
	Run(ctx context.Context, config, input map[string]interface{}, execCtx *domain.ExecutionContext) (map[string]interface{}, error)
}

// subtypeFunc is one entry in an executor's dispatch table.
type subtypeFunc func(ctx context.Context, config, input map[string]interface{}, execCtx *domain.ExecutionContext) (map[string]interface{}, error)

// dispatchSubtype resolves the subtype from config and validates it
// against the table. key is the config field naming the subtype
// (e.g. "action_type"); fallback is used when the field is absent and
// may be empty to make the field mandatory.
func dispatchSubtype(primitive domain.PrimitiveType, key, fallback string, table map[string]subtypeFunc, config map[string]interface{}) (string, subtypeFunc, error) {
	subtype := configString(config, key, fallback)
	if subtype == "" {
		return "", nil, domain.NewError(domain.ErrCodeInvalidConfig, "%s: missing required field: %s", primitive, key)
	}
	fn, ok := table[subtype]
	if !ok {
		return "", nil, domain.NewError(domain.ErrCodeInvalidConfig, "%s: unsupported %s: %s", primitive, key, subtype)
	}
	return subtype, fn, nil
}

// configString reads a string field with a default.
func configString(m map[string]interface{}, key, fallback string) string {
	if m == nil {
		return fallback
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// configMap reads a nested map field.
func configMap(m map[string]interface{}, key string) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	if v, ok := m[key].(map[string]interface{}); ok {
		return v
	}
	return map[string]interface{}{}
}

// configFloat reads a numeric field, tolerating JSON decoding shapes.
func configFloat(m map[string]interface{}, key string, fallback float64) float64 {
	if m == nil {
		return fallback
	}
	v, ok := m[key]
	if !ok {
		return fallback
	}
	f, ok := toFloat(v)
	if !ok {
		return fallback
	}
	return f
}

// configInt reads an integer field.
func configInt(m map[string]interface{}, key string, fallback int) int {
	return int(configFloat(m, key, float64(fallback)))
}

// dataField extracts the conventional "data" payload from a node's
// resolved input.
func dataField(input map[string]interface{}) interface{} {
	if input == nil {
		return map[string]interface{}{}
	}
	if v, ok := input["data"]; ok {
		return v
	}
	return map[string]interface{}{}
}

// dataMap is dataField narrowed to a map payload.
func dataMap(input map[string]interface{}) map[string]interface{} {
	if v, ok := dataField(input).(map[string]interface{}); ok {
		return v
	}
	return map[string]interface{}{}
}

// dataList is dataField narrowed to a list payload; scalar payloads
// become a single-item list.
func dataList(input map[string]interface{}) []interface{} {
	switch v := dataField(input).(type) {
	case []interface{}:
		return v
	case map[string]interface{}:
		if len(v) == 0 {
			return nil
		}
		return []interface{}{v}
	default:
		return []interface{}{v}
	}
}

// toFloat converts numeric and numeric-string values.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// comparisonOperators is the fixed operator set shared by the
// condition and data primitives.
var comparisonOperators = map[string]bool{
	"==": true, "!=": true, ">": true, "<": true, ">=": true, "<=": true, "contains": true,
}

// applyComparison evaluates "a op b". Type-incompatible operands fail
// closed: the comparison is false rather than an error.
func applyComparison(a, b interface{}, operator string) bool {
	switch operator {
	case "==":
		return equalValues(a, b)
	case "!=":
		return !equalValues(a, b)
	case ">", "<", ">=", "<=":
		fa, okA := toFloat(a)
		fb, okB := toFloat(b)
		if !okA || !okB {
			return false
		}
		switch operator {
		case ">":
			return fa > fb
		case "<":
			return fa < fb
		case ">=":
			return fa >= fb
		default:
			return fa <= fb
		}
	case "contains":
		return strings.Contains(stringify(a), stringify(b))
	default:
		return false
	}
}

// equalValues compares numerically when both sides are numeric, and by
// string form otherwise.
func equalValues(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return stringify(a) == stringify(b)
}

func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// timestamp is the output time format used by all primitives.
func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
