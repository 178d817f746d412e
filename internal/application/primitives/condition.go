package primitives

import (
	"context"
	"regexp"
	"strings"

	"github.com/pentaflow/pentaflow/pkg/domain"
)

// ConditionExecutor evaluates data and controls workflow branching.
// Every subtype emits a boolean "result" plus subtype-specific fields;
// type-incompatible comparisons fail closed instead of erroring.
type ConditionExecutor struct {
	subtypes map[string]subtypeFunc
}

// NewConditionExecutor creates the condition executor with its subtype
// dispatch table.
func NewConditionExecutor() *ConditionExecutor {
	e := &ConditionExecutor{}
	e.subtypes = map[string]subtypeFunc{
		"if_else":   e.runIfElse,
		"filter":    e.runFilter,
		"switch":    e.runSwitch,
		"loop":      e.runLoop,
		"compare":   e.runCompare,
		"regex":     e.runRegex,
		"json_path": e.runJSONPath,
	}
	return e
}

func (e *ConditionExecutor) Type() domain.PrimitiveType { return domain.PrimitiveCondition }

func (e *ConditionExecutor) ValidateConfig(config map[string]interface{}) error {
	subtype, _, err := dispatchSubtype(domain.PrimitiveCondition, "condition_type", "if_else", e.subtypes, config)
	if err != nil {
		return err
	}
	if subtype == "compare" {
		op := configString(config, "operator", "==")
		if !comparisonOperators[op] {
			return domain.NewError(domain.ErrCodeInvalidConfig, "condition: unsupported operator: %s", op)
		}
	}
	if subtype == "regex" {
		if _, err := regexp.Compile(configString(config, "pattern", "")); err != nil {
			return domain.NewError(domain.ErrCodeInvalidConfig, "condition: invalid regex pattern: %v", err)
		}
	}
	return nil
}

func (e *ConditionExecutor) Run(ctx context.Context, config, input map[string]interface{}, execCtx *domain.ExecutionContext) (map[string]interface{}, error) {
	_, fn, err := dispatchSubtype(domain.PrimitiveCondition, "condition_type", "if_else", e.subtypes, config)
	if err != nil {
		return nil, err
	}
	return fn(ctx, config, input, execCtx)
}

func (e *ConditionExecutor) runIfElse(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	condition := configString(config, "condition", "true")
	data := dataMap(input)

	result := evaluateCondition(condition, data)
	branch := "false"
	if result {
		branch = "true"
	}

	return map[string]interface{}{
		"condition_type": "if_else",
		"result":         result,
		"branch":         branch,
		"evaluated_data": data,
		"timestamp":      timestamp(),
	}, nil
}

func (e *ConditionExecutor) runFilter(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	criteria := configMap(config, "criteria")
	items := dataList(input)

	filtered := make([]interface{}, 0, len(items))
	for _, item := range items {
		if matchesCriteria(item, criteria) {
			filtered = append(filtered, item)
		}
	}

	return map[string]interface{}{
		"condition_type": "filter",
		"result":         len(filtered) > 0,
		"filtered_data":  filtered,
		"original_count": len(items),
		"filtered_count": len(filtered),
		"timestamp":      timestamp(),
	}, nil
}

func (e *ConditionExecutor) runSwitch(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	switchOn := configString(config, "switch_on", "value")
	cases := configMap(config, "cases")
	data := dataMap(input)

	value, ok := data[switchOn]
	if !ok {
		value = "default"
	}
	matched, ok := cases[stringify(value)]
	if !ok {
		matched = cases["default"]
		if matched == nil {
			matched = "default"
		}
	}

	caseNames := make([]string, 0, len(cases))
	for k := range cases {
		caseNames = append(caseNames, k)
	}

	return map[string]interface{}{
		"condition_type":  "switch",
		"result":          true,
		"switch_value":    value,
		"matched_case":    matched,
		"available_cases": caseNames,
		"timestamp":       timestamp(),
	}, nil
}

func (e *ConditionExecutor) runLoop(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	items := dataList(input)
	maxIterations := configInt(config, "max_iterations", 100)
	if len(items) > maxIterations {
		items = items[:maxIterations]
	}

	return map[string]interface{}{
		"condition_type":  "loop",
		"result":          len(items) > 0,
		"items":           items,
		"iteration_count": len(items),
		"max_iterations":  maxIterations,
		"timestamp":       timestamp(),
	}, nil
}

func (e *ConditionExecutor) runCompare(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	fieldA := configString(config, "field_a", "value")
	fieldB := configString(config, "field_b", "compare_to")
	operator := configString(config, "operator", "==")
	data := dataMap(input)

	valueA := data[fieldA]
	valueB := data[fieldB]
	result := applyComparison(valueA, valueB, operator)

	return map[string]interface{}{
		"condition_type": "compare",
		"result":         result,
		"comparison":     stringify(valueA) + " " + operator + " " + stringify(valueB),
		"values":         map[string]interface{}{"a": valueA, "b": valueB},
		"timestamp":      timestamp(),
	}, nil
}

func (e *ConditionExecutor) runRegex(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	pattern := configString(config, "pattern", "")
	field := configString(config, "field", "text")
	data := dataMap(input)
	text := stringify(data[field])

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, domain.NewError(domain.ErrCodeInvalidConfig, "condition: invalid regex pattern: %v", err)
	}

	match := re.FindString(text)
	matched := re.MatchString(text)

	out := map[string]interface{}{
		"condition_type": "regex",
		"result":         matched,
		"pattern":        pattern,
		"full_text":      text,
		"timestamp":      timestamp(),
	}
	if matched {
		out["matched_text"] = match
	}
	return out, nil
}

func (e *ConditionExecutor) runJSONPath(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	path := configString(config, "json_path", "$")
	expected, hasExpected := config["expected_value"]
	data := dataMap(input)

	out := map[string]interface{}{
		"condition_type": "json_path",
		"json_path":      path,
		"timestamp":      timestamp(),
	}

	// Dot notation only ($.a.b); anything else passes through.
	if !strings.HasPrefix(path, "$.") {
		out["result"] = true
		out["fallback"] = true
		return out, nil
	}

	var current interface{} = data
	for _, part := range strings.Split(path[2:], ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			current = nil
			break
		}
		current = m[part]
	}

	result := current != nil
	if hasExpected {
		result = equalValues(current, expected)
		out["expected_value"] = expected
	}
	out["result"] = result
	out["value"] = current
	return out, nil
}

// evaluateCondition handles the if_else expression grammar: the
// literals "true"/"false", or "field <op> value" with the fixed
// operator set. Unparseable expressions fail closed.
func evaluateCondition(condition string, data map[string]interface{}) bool {
	switch strings.TrimSpace(condition) {
	case "true", "":
		return strings.TrimSpace(condition) == "true"
	case "false":
		return false
	}

	for _, op := range []string{"==", "!=", ">=", "<=", ">", "<", "contains"} {
		idx := strings.Index(condition, " "+op+" ")
		if idx < 0 {
			continue
		}
		field := strings.TrimSpace(condition[:idx])
		literal := strings.TrimSpace(condition[idx+len(op)+2:])
		literal = strings.Trim(literal, `"'`)
		return applyComparison(data[field], literal, op)
	}

	return false
}

// matchesCriteria reports whether item (a map) carries every key/value
// pair in criteria. Non-map items never match.
func matchesCriteria(item interface{}, criteria map[string]interface{}) bool {
	m, ok := item.(map[string]interface{})
	if !ok {
		return false
	}
	for key, expected := range criteria {
		if !equalValues(m[key], expected) {
			return false
		}
	}
	return true
}
