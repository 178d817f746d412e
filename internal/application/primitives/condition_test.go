package primitives

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pentaflow/pentaflow/pkg/domain"
)

func runCondition(t *testing.T, config, input map[string]interface{}) map[string]interface{} {
	t.Helper()
	out, err := NewConditionExecutor().Run(context.Background(), config, input, testExecCtx())
	require.NoError(t, err)
	return out
}

func TestCondition_CompareOperators(t *testing.T) {
	tests := []struct {
		name     string
		operator string
		a, b     interface{}
		want     bool
	}{
		{"equal numbers", "==", 5, 5.0, true},
		{"equal across numeric types", "==", int64(3), 3, true},
		{"not equal", "!=", "x", "y", true},
		{"greater than", ">", 10, 5, true},
		{"greater than false", ">", 5, 10, false},
		{"less or equal", "<=", 5, 5, true},
		{"numeric strings compare numerically", ">", "10", "9", true},
		{"contains", "contains", "hello world", "world", true},
		{"contains miss", "contains", "hello", "world", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := runCondition(t,
				map[string]interface{}{"condition_type": "compare", "operator": tt.operator},
				map[string]interface{}{"data": map[string]interface{}{"value": tt.a, "compare_to": tt.b}})
			assert.Equal(t, tt.want, out["result"])
		})
	}
}

func TestCondition_CompareFailsClosed(t *testing.T) {
	// Ordering a non-numeric string is false, never an error.
	out := runCondition(t,
		map[string]interface{}{"condition_type": "compare", "operator": ">"},
		map[string]interface{}{"data": map[string]interface{}{"value": "abc", "compare_to": 5}})
	assert.Equal(t, false, out["result"])

	// Missing fields also fail closed.
	out = runCondition(t,
		map[string]interface{}{"condition_type": "compare", "operator": "<"},
		map[string]interface{}{"data": map[string]interface{}{}})
	assert.Equal(t, false, out["result"])
}

func TestCondition_UnsupportedOperatorRejected(t *testing.T) {
	err := NewConditionExecutor().ValidateConfig(map[string]interface{}{
		"condition_type": "compare",
		"operator":       "~=",
	})
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeInvalidConfig, domain.ErrorCodeOf(err))
}

func TestCondition_IfElseExpression(t *testing.T) {
	tests := []struct {
		name      string
		condition string
		data      map[string]interface{}
		want      bool
		branch    string
	}{
		{"literal true", "true", nil, true, "true"},
		{"literal false", "false", nil, false, "false"},
		{"field comparison true", "amount > 100", map[string]interface{}{"amount": 150}, true, "true"},
		{"field comparison false", "amount > 100", map[string]interface{}{"amount": 50}, false, "false"},
		{"string equality with quotes", `status == "active"`, map[string]interface{}{"status": "active"}, true, "true"},
		{"contains operator", "name contains oh", map[string]interface{}{"name": "john"}, true, "true"},
		{"unparseable fails closed", "what even is this", nil, false, "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := runCondition(t,
				map[string]interface{}{"condition_type": "if_else", "condition": tt.condition},
				map[string]interface{}{"data": tt.data})
			assert.Equal(t, tt.want, out["result"])
			assert.Equal(t, tt.branch, out["branch"])
		})
	}
}

func TestCondition_DefaultSubtypeIsIfElse(t *testing.T) {
	out := runCondition(t, map[string]interface{}{"condition": "true"}, nil)
	assert.Equal(t, "if_else", out["condition_type"])
	assert.Equal(t, true, out["result"])
}

func TestCondition_Regex(t *testing.T) {
	out := runCondition(t,
		map[string]interface{}{"condition_type": "regex", "pattern": `\d{3}-\d{4}`, "field": "phone"},
		map[string]interface{}{"data": map[string]interface{}{"phone": "call 555-1234 now"}})
	assert.Equal(t, true, out["result"])
	assert.Equal(t, "555-1234", out["matched_text"])

	out = runCondition(t,
		map[string]interface{}{"condition_type": "regex", "pattern": `^\d+$`, "field": "phone"},
		map[string]interface{}{"data": map[string]interface{}{"phone": "no digits here"}})
	assert.Equal(t, false, out["result"])
	assert.NotContains(t, out, "matched_text")
}

func TestCondition_InvalidRegexRejected(t *testing.T) {
	err := NewConditionExecutor().ValidateConfig(map[string]interface{}{
		"condition_type": "regex",
		"pattern":        "([unclosed",
	})
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeInvalidConfig, domain.ErrorCodeOf(err))
}

func TestCondition_Switch(t *testing.T) {
	config := map[string]interface{}{
		"condition_type": "switch",
		"switch_on":      "tier",
		"cases": map[string]interface{}{
			"gold":    "priority",
			"silver":  "standard",
			"default": "basic",
		},
	}

	out := runCondition(t, config, map[string]interface{}{"data": map[string]interface{}{"tier": "gold"}})
	assert.Equal(t, "priority", out["matched_case"])

	out = runCondition(t, config, map[string]interface{}{"data": map[string]interface{}{"tier": "bronze"}})
	assert.Equal(t, "basic", out["matched_case"])
}

func TestCondition_Filter(t *testing.T) {
	out := runCondition(t,
		map[string]interface{}{
			"condition_type": "filter",
			"criteria":       map[string]interface{}{"active": true},
		},
		map[string]interface{}{"data": []interface{}{
			map[string]interface{}{"id": 1, "active": true},
			map[string]interface{}{"id": 2, "active": false},
			"not a map",
		}})

	assert.Equal(t, true, out["result"])
	assert.Equal(t, 3, out["original_count"])
	assert.Equal(t, 1, out["filtered_count"])
}

func TestCondition_JSONPath(t *testing.T) {
	data := map[string]interface{}{"data": map[string]interface{}{
		"user": map[string]interface{}{"role": "admin"},
	}}

	out := runCondition(t,
		map[string]interface{}{"condition_type": "json_path", "json_path": "$.user.role"},
		data)
	assert.Equal(t, true, out["result"])
	assert.Equal(t, "admin", out["value"])

	out = runCondition(t,
		map[string]interface{}{"condition_type": "json_path", "json_path": "$.user.role", "expected_value": "guest"},
		data)
	assert.Equal(t, false, out["result"])

	out = runCondition(t,
		map[string]interface{}{"condition_type": "json_path", "json_path": "$.user.missing"},
		data)
	assert.Equal(t, false, out["result"])
}
