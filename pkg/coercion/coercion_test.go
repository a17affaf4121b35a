package coercion

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coerce(t *testing.T, typeID string, raw any) (any, error) {
	t.Helper()
	h, ok := Default().Lookup(typeID)
	require.True(t, ok, "builtin %q missing", typeID)
	return h(raw)
}

func TestDefault_ScalarTypes(t *testing.T) {
	tests := []struct {
		typeID string
		raw    any
		want   any
	}{
		{TypeString, "Ada", "Ada"},
		{TypeString, "e\u0301", "\u00e9"},
		{TypeInt, json.Number("42"), int64(42)},
		{TypeInteger, 7, int64(7)},
		{TypeInt, float64(3), int64(3)},
		{TypeInt, json.Number("1e3"), int64(1000)},
		{TypeInt, " 12 ", int64(12)},
		{TypeNumber, json.Number("2.5"), 2.5},
		{TypeFloat, "0.25", 0.25},
		{TypeNumber, 4, float64(4)},
		{TypeBoolean, true, true},
		{TypeBool, "false", false},
		{TypeBool, "TRUE", true},
		{TypeDuration, "90s", 90 * time.Second},
	}
	for _, tt := range tests {
		got, err := coerce(t, tt.typeID, tt.raw)
		require.NoError(t, err, "%s(%v)", tt.typeID, tt.raw)
		assert.Equal(t, tt.want, got, "%s(%v)", tt.typeID, tt.raw)
	}
}

func TestDefault_RejectsMismatches(t *testing.T) {
	tests := []struct {
		typeID string
		raw    any
	}{
		{TypeString, json.Number("1")},
		{TypeString, nil},
		{TypeString, "\xff"},
		{TypeInt, "twelve"},
		{TypeInt, json.Number("1.5")},
		{TypeInt, float64(1e300)},
		{TypeInt, true},
		{TypeNumber, "NaN"},
		{TypeNumber, map[string]any{}},
		{TypeBool, "maybe"},
		{TypeBool, json.Number("1")},
		{TypeObject, []any{}},
		{TypeArray, map[string]any{}},
		{TypeUUID, "not-a-uuid"},
		{TypeSemver, "one.two"},
		{TypeTimestamp, "yesterday"},
		{TypeDate, "2024-13-01"},
		{TypeDuration, json.Number("5")},
	}
	for _, tt := range tests {
		_, err := coerce(t, tt.typeID, tt.raw)
		require.Error(t, err, "%s(%v)", tt.typeID, tt.raw)

		var cerr *Error
		require.True(t, errors.As(err, &cerr))
		assert.Equal(t, tt.typeID, cerr.TypeID)
		assert.NotEmpty(t, cerr.Reason)
	}
}

func TestDefault_StructuredTypes(t *testing.T) {
	id := uuid.New()
	got, err := coerce(t, TypeUUID, id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	got, err = coerce(t, TypeSemver, "v1.2.3")
	require.NoError(t, err)
	require.IsType(t, &semver.Version{}, got)
	assert.Equal(t, "1.2.3", got.(*semver.Version).String())

	got, err = coerce(t, TypeTimestamp, "2024-05-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), got)

	got, err = coerce(t, TypeDate, "2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), got)
}

// TestDefault_CopiesContainers verifies coerced values never alias the raw plan.
func TestDefault_CopiesContainers(t *testing.T) {
	raw := map[string]any{"tags": []any{"a", "b"}, "nested": map[string]any{"k": "v"}}

	for _, typeID := range []string{TypeObject, TypeAny} {
		got, err := coerce(t, typeID, raw)
		require.NoError(t, err)
		m := got.(map[string]any)
		m["tags"].([]any)[0] = "mutated"
		m["nested"].(map[string]any)["k"] = "mutated"
	}

	assert.Equal(t, "a", raw["tags"].([]any)[0])
	assert.Equal(t, "v", raw["nested"].(map[string]any)["k"])

	arr := []any{map[string]any{"x": 1}}
	got, err := coerce(t, TypeArray, arr)
	require.NoError(t, err)
	got.([]any)[0].(map[string]any)["x"] = 2
	assert.Equal(t, 1, arr[0].(map[string]any)["x"])
}

// TestUntypedPayloads_NumbersMustBeFinite verifies that JSON payload types
// reject numbers outside the float64 range at any depth.
func TestUntypedPayloads_NumbersMustBeFinite(t *testing.T) {
	huge := json.Number("1e400")
	for typeID, raw := range map[string]any{
		TypeAny:    huge,
		TypeObject: map[string]any{"n": []any{json.Number("1"), huge}},
		TypeArray:  []any{map[string]any{"n": huge}},
	} {
		_, err := coerce(t, typeID, raw)
		var cerr *Error
		require.ErrorAs(t, err, &cerr, typeID)
		assert.Equal(t, typeID, cerr.TypeID)
		assert.Contains(t, cerr.Reason, "1e400")
	}

	got, err := coerce(t, TypeAny, map[string]any{"n": json.Number("9007199254740993"), "f": json.Number("1e300")})
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), got.(map[string]any)["n"])

	reg, err := NewBuilder().RegisterSchema("reading", `{"type": "object", "properties": {"v": {"type": "number"}}}`).Build()
	require.NoError(t, err)
	h, _ := reg.Lookup("reading")
	_, err = h(map[string]any{"v": huge})
	assert.Error(t, err)
}

func TestCEL_DeterministicExpressions(t *testing.T) {
	got, err := coerce(t, TypeCEL, "size(name) > 3 && age >= 18")
	require.NoError(t, err)
	expr, ok := got.(*Expression)
	require.True(t, ok)
	assert.Equal(t, "size(name) > 3 && age >= 18", expr.Source())
	assert.NotNil(t, expr.AST())

	b, err := json.Marshal(expr)
	require.NoError(t, err)
	assert.JSONEq(t, `"size(name) > 3 && age >= 18"`, string(b))
}

func TestCEL_RejectsNondeterminism(t *testing.T) {
	for src, want := range map[string]string{
		"score > 0.5":             "floating point",
		"now() > deadline":        "now()",
		"keys(labels).size() > 0": "map iteration",
		"a &&":                    "parse failed",
		"   ":                     "empty expression",
	} {
		_, err := coerce(t, TypeCEL, src)
		require.Error(t, err, src)
		assert.Contains(t, err.Error(), want, src)
	}

	_, err := coerce(t, TypeCEL, 42)
	assert.Error(t, err)
}

func TestBuilder_RegisterSchema(t *testing.T) {
	reg, err := NewBuilder().
		WithBuiltins().
		RegisterSchema("address", `{
			"type": "object",
			"required": ["city"],
			"properties": {
				"city": {"type": "string", "minLength": 1},
				"zip": {"type": "string", "pattern": "^[0-9]{5}$"}
			},
			"additionalProperties": false
		}`).
		Build()
	require.NoError(t, err)

	h, ok := reg.Lookup("address")
	require.True(t, ok)

	raw := map[string]any{"city": "Berlin", "zip": "10115"}
	got, err := h(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = h(map[string]any{"zip": "10115"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address")

	_, err = h(map[string]any{"city": "Berlin", "zip": "abc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/zip")

	_, err = h("Berlin")
	assert.Error(t, err)
}

func TestBuilder_Errors(t *testing.T) {
	_, err := NewBuilder().RegisterSchema("broken", `{"type": 12}`).Build()
	assert.Error(t, err)

	_, err = NewBuilder().Register("", func(any) (any, error) { return nil, nil }).Build()
	assert.Error(t, err)

	_, err = NewBuilder().Register("x", nil).Build()
	assert.Error(t, err)

	_, err = NewBuilder().Alias("str", "string").Build()
	assert.Error(t, err)
}

func TestBuilder_AliasAndOverride(t *testing.T) {
	upper := func(raw any) (any, error) { return "OVERRIDDEN", nil }
	reg, err := NewBuilder().
		WithBuiltins().
		Alias("text", TypeString).
		Register(TypeBool, upper).
		Build()
	require.NoError(t, err)

	h, ok := reg.Lookup("text")
	require.True(t, ok)
	got, err := h("hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", got)

	h, _ = reg.Lookup(TypeBool)
	got, _ = h(true)
	assert.Equal(t, "OVERRIDDEN", got)
}

func TestRegistry_EmptyAndNil(t *testing.T) {
	_, ok := Empty().Lookup(TypeString)
	assert.False(t, ok)
	assert.Empty(t, Empty().Types())

	var nilReg *Registry
	_, ok = nilReg.Lookup(TypeString)
	assert.False(t, ok)

	types := Default().Types()
	assert.Contains(t, types, TypeString)
	assert.Contains(t, types, TypeCEL)
	assert.IsIncreasing(t, types)
}
