package mcp

import "fmt"

// ValidateToolArguments checks args against schema per spec.md §4.2.2:
// missing required properties and type/enum violations fail with
// InvalidParams, reporting every offending property in Data["details"]
// rather than stopping at the first failure.
//
// This is a small, hand-rolled subset of JSON Schema (type + enum on each
// property, plus required) rather than a full validator: no library in the
// reference corpus validates an arbitrary map[string]any against a dynamic
// JSON-Schema-shaped object (go-playground/validator works against Go
// struct tags, not runtime schema values), so this mirrors the teacher's
// own hand-rolled parameter parsing in spirit.
func ValidateToolArguments(schema InputSchema, args map[string]any) *Error {
	var details []string

	for _, name := range schema.Required {
		if _, ok := args[name]; !ok {
			details = append(details, fmt.Sprintf("missing required argument %q", name))
		}
	}

	for name, rawPropSchema := range schema.Properties {
		value, present := args[name]
		if !present {
			continue
		}
		propSchema, ok := rawPropSchema.(map[string]any)
		if !ok {
			continue
		}
		if msg := validateProperty(name, propSchema, value); msg != "" {
			details = append(details, msg)
		}
	}

	if len(details) == 0 {
		return nil
	}
	return Errorf(KindInvalidParams, "invalid arguments").WithData(map[string]any{"details": details})
}

func validateProperty(name string, propSchema map[string]any, value any) string {
	if wantType, ok := propSchema["type"].(string); ok {
		if !valueMatchesType(value, wantType) {
			return fmt.Sprintf("argument %q: expected %s, got %s", name, wantType, jsonTypeName(value))
		}
	}
	if rawEnum, ok := propSchema["enum"].([]any); ok {
		if !valueInEnum(value, rawEnum) {
			return fmt.Sprintf("argument %q: value %v is not one of the allowed values", name, value)
		}
	}
	return ""
}

func valueMatchesType(value any, wantType string) bool {
	switch wantType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch n := value.(type) {
		case float64:
			return n == float64(int64(n))
		case int, int32, int64:
			return true
		}
		return false
	case "number":
		switch value.(type) {
		case float64, int, int32, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}

func valueInEnum(value any, enum []any) bool {
	for _, candidate := range enum {
		if fmt.Sprint(candidate) == fmt.Sprint(value) {
			return true
		}
	}
	return false
}

func jsonTypeName(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case float64, int, int32, int64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}
