package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addSchema() InputSchema {
	return InputSchema{
		Type: "object",
		Properties: map[string]any{
			"a":    map[string]any{"type": "integer"},
			"b":    map[string]any{"type": "integer"},
			"mode": map[string]any{"type": "string", "enum": []any{"sum", "diff"}},
		},
		Required: []string{"a", "b"},
	}
}

func TestValidateToolArgumentsOK(t *testing.T) {
	err := ValidateToolArguments(addSchema(), map[string]any{"a": float64(1), "b": float64(2), "mode": "sum"})
	assert.Nil(t, err)
}

func TestValidateToolArgumentsMissingRequired(t *testing.T) {
	err := ValidateToolArguments(addSchema(), map[string]any{"a": float64(1)})
	require.NotNil(t, err)
	assert.Equal(t, KindInvalidParams, err.Kind)

	details, ok := err.Data.(map[string]any)["details"].([]string)
	require.True(t, ok)
	assert.Contains(t, details, `missing required argument "b"`)
}

func TestValidateToolArgumentsReportsEveryFailure(t *testing.T) {
	err := ValidateToolArguments(addSchema(), map[string]any{"a": "not-a-number"})
	require.NotNil(t, err)

	details := err.Data.(map[string]any)["details"].([]string)
	assert.Len(t, details, 2, "missing b and wrong type for a should both be reported")
}

func TestValidateToolArgumentsTypeMismatch(t *testing.T) {
	err := ValidateToolArguments(addSchema(), map[string]any{"a": "nope", "b": float64(2)})
	require.NotNil(t, err)
	details := err.Data.(map[string]any)["details"].([]string)
	assert.Contains(t, details[0], `argument "a": expected integer`)
}

func TestValidateToolArgumentsEnumViolation(t *testing.T) {
	err := ValidateToolArguments(addSchema(), map[string]any{"a": float64(1), "b": float64(2), "mode": "multiply"})
	require.NotNil(t, err)
	details := err.Data.(map[string]any)["details"].([]string)
	assert.Contains(t, details[0], `not one of the allowed values`)
}

func TestValueMatchesTypeInteger(t *testing.T) {
	assert.True(t, valueMatchesType(float64(3), "integer"))
	assert.False(t, valueMatchesType(float64(3.5), "integer"), "non-integral float64 must fail an integer check")
	assert.True(t, valueMatchesType(3, "integer"))
}

func TestValueMatchesTypeUnknownTypePassesThrough(t *testing.T) {
	assert.True(t, valueMatchesType("anything", "unspecified-type"))
}
