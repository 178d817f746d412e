package primitives

import (
	"context"

	"dario.cat/mergo"
	"github.com/goccy/go-json"

	"github.com/pentaflow/pentaflow/pkg/domain"
)

// DataExecutor manipulates, transforms and validates data flowing
// between nodes.
type DataExecutor struct {
	subtypes map[string]subtypeFunc
}

// NewDataExecutor creates the data executor with its subtype dispatch
// table.
func NewDataExecutor() *DataExecutor {
	e := &DataExecutor{}
	e.subtypes = map[string]subtypeFunc{
		"mapping":   e.runMapping,
		"transform": e.runTransform,
		"filter":    e.runFilter,
		"merge":     e.runMerge,
		"split":     e.runSplit,
		"enrich":    e.runEnrich,
		"validate":  e.runValidate,
	}
	return e
}

func (e *DataExecutor) Type() domain.PrimitiveType { return domain.PrimitiveData }

func (e *DataExecutor) ValidateConfig(config map[string]interface{}) error {
	_, _, err := dispatchSubtype(domain.PrimitiveData, "operation_type", "", e.subtypes, config)
	return err
}

func (e *DataExecutor) Run(ctx context.Context, config, input map[string]interface{}, execCtx *domain.ExecutionContext) (map[string]interface{}, error) {
	_, fn, err := dispatchSubtype(domain.PrimitiveData, "operation_type", "", e.subtypes, config)
	if err != nil {
		return nil, err
	}
	return fn(ctx, config, input, execCtx)
}

func (e *DataExecutor) output(operationType string, result interface{}, success bool, extra map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{
		"operation_type": operationType,
		"result":         result,
		"success":        success,
		"timestamp":      timestamp(),
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func (e *DataExecutor) runMapping(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	rules := configMap(config, "mapping_rules")
	data := dataMap(input)

	mapped := make(map[string]interface{}, len(rules))
	for sourceKey, targetKey := range rules {
		target, ok := targetKey.(string)
		if !ok {
			continue
		}
		if v, ok := data[sourceKey]; ok {
			mapped[target] = v
		}
	}

	return e.output("mapping", mapped, true, map[string]interface{}{
		"metadata": map[string]interface{}{
			"rules_applied": len(rules),
			"mapped_keys":   len(mapped),
		},
	}), nil
}

func (e *DataExecutor) runTransform(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	transformType := configString(config, "transform_type", "json")
	data := dataField(input)

	switch transformType {
	case "json":
		encoded, err := json.Marshal(data)
		if err != nil {
			return e.output("transform", nil, false, map[string]interface{}{"error": err.Error()}), nil
		}
		return e.output("transform", string(encoded), true, map[string]interface{}{"transform_type": "json"}), nil
	case "flatten":
		m, ok := data.(map[string]interface{})
		if !ok {
			return e.output("transform", nil, false, map[string]interface{}{"error": "input data must be an object for flatten"}), nil
		}
		return e.output("transform", flattenMap(m, ""), true, map[string]interface{}{"transform_type": "flatten"}), nil
	case "normalize":
		return e.output("transform", normalizeData(data), true, map[string]interface{}{"transform_type": "normalize"}), nil
	default:
		return nil, domain.NewError(domain.ErrCodeInvalidConfig, "data: unsupported transform_type: %s", transformType)
	}
}

func (e *DataExecutor) runFilter(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	criteria := configMap(config, "criteria")
	items := dataList(input)

	filtered := make([]interface{}, 0, len(items))
	for _, item := range items {
		if matchesCriteria(item, criteria) {
			filtered = append(filtered, item)
		}
	}

	return e.output("filter", filtered, true, map[string]interface{}{
		"original_count": len(items),
		"filtered_count": len(filtered),
	}), nil
}

func (e *DataExecutor) runMerge(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	strategy := configString(config, "merge_strategy", "overwrite")
	sources := dataList(input)

	merged := make(map[string]interface{})
	for _, source := range sources {
		m, ok := source.(map[string]interface{})
		if !ok {
			continue
		}
		switch strategy {
		case "deep":
			if err := mergo.Merge(&merged, m, mergo.WithOverride); err != nil {
				return e.output("merge", nil, false, map[string]interface{}{"error": err.Error()}), nil
			}
		default: // overwrite
			for k, v := range m {
				merged[k] = v
			}
		}
	}

	return e.output("merge", merged, true, map[string]interface{}{
		"merge_strategy": strategy,
		"sources_merged": len(sources),
	}), nil
}

func (e *DataExecutor) runSplit(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	splitKey := configString(config, "split_key", "")
	data := dataMap(input)

	if splitKey == "" {
		// Split the object into one chunk per key.
		chunks := make([]interface{}, 0, len(data))
		for k, v := range data {
			chunks = append(chunks, map[string]interface{}{k: v})
		}
		return e.output("split", chunks, true, map[string]interface{}{"chunk_count": len(chunks)}), nil
	}

	list, _ := data[splitKey].([]interface{})
	return e.output("split", list, true, map[string]interface{}{
		"split_key":   splitKey,
		"chunk_count": len(list),
	}), nil
}

func (e *DataExecutor) runEnrich(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	enrichment := configMap(config, "enrichment")
	data := dataMap(input)

	enriched := make(map[string]interface{}, len(data)+len(enrichment))
	for k, v := range data {
		enriched[k] = v
	}
	added := 0
	for k, v := range enrichment {
		if _, exists := enriched[k]; !exists {
			enriched[k] = v
			added++
		}
	}

	return e.output("enrich", enriched, true, map[string]interface{}{
		"fields_added": added,
	}), nil
}

func (e *DataExecutor) runValidate(_ context.Context, config, input map[string]interface{}, _ *domain.ExecutionContext) (map[string]interface{}, error) {
	rules := configMap(config, "rules")
	data := dataMap(input)

	var failures []interface{}
	for field, ruleValue := range rules {
		rule, ok := ruleValue.(map[string]interface{})
		if !ok {
			continue
		}
		value, present := data[field]

		if required, _ := rule["required"].(bool); required && !present {
			failures = append(failures, map[string]interface{}{
				"field": field, "error": "required field missing",
			})
			continue
		}
		if !present {
			continue
		}
		if wantType := configString(rule, "type", ""); wantType != "" && !valueHasType(value, wantType) {
			failures = append(failures, map[string]interface{}{
				"field": field, "error": "expected type " + wantType,
			})
		}
	}

	return e.output("validate", map[string]interface{}{
		"valid":    len(failures) == 0,
		"failures": failures,
	}, len(failures) == 0, map[string]interface{}{
		"rules_checked": len(rules),
	}), nil
}

// flattenMap flattens nested objects into dotted keys.
func flattenMap(data map[string]interface{}, prefix string) map[string]interface{} {
	flat := make(map[string]interface{}, len(data))
	for k, v := range data {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok {
			for nk, nv := range flattenMap(nested, key) {
				flat[nk] = nv
			}
			continue
		}
		flat[key] = v
	}
	return flat
}

// normalizeData wraps scalar and list payloads in an object.
func normalizeData(data interface{}) map[string]interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		return v
	case []interface{}:
		return map[string]interface{}{"items": v, "count": len(v)}
	default:
		return map[string]interface{}{"value": v}
	}
}

// valueHasType checks a validation rule's type name against a value.
func valueHasType(value interface{}, typeName string) bool {
	switch typeName {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := toFloat(value)
		if _, isString := value.(string); isString {
			return false
		}
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	default:
		return true
	}
}
