package coercion

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// Builtin type identifiers.
const (
	TypeString    = "string"
	TypeInt       = "int"
	TypeInteger   = "integer"
	TypeNumber    = "number"
	TypeFloat     = "float"
	TypeBoolean   = "boolean"
	TypeBool      = "bool"
	TypeObject    = "object"
	TypeArray     = "array"
	TypeAny       = "any"
	TypeUUID      = "uuid"
	TypeSemver    = "semver"
	TypeTimestamp = "timestamp"
	TypeDate      = "date"
	TypeDuration  = "duration"
	TypeCEL       = "cel"
)

func builtins() map[string]Handler {
	return map[string]Handler{
		TypeString:    coerceString,
		TypeInt:       coerceInt(TypeInt),
		TypeInteger:   coerceInt(TypeInteger),
		TypeNumber:    coerceFloat(TypeNumber),
		TypeFloat:     coerceFloat(TypeFloat),
		TypeBoolean:   coerceBool(TypeBoolean),
		TypeBool:      coerceBool(TypeBool),
		TypeObject:    coerceObject,
		TypeArray:     coerceArray,
		TypeAny:       func(raw any) (any, error) { return copyJSON(TypeAny, raw) },
		TypeUUID:      coerceUUID,
		TypeSemver:    coerceSemver,
		TypeTimestamp: coerceTimestamp,
		TypeDate:      coerceDate,
		TypeDuration:  coerceDuration,
		TypeCEL:       newCELHandler(),
	}
}

// coerceString returns the NFC normal form so that visually identical
// strings compare equal downstream.
func coerceString(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, errorf(TypeString, "expected a string, got %s", describe(raw))
	}
	if !utf8.ValidString(s) {
		return nil, errorf(TypeString, "string is not valid UTF-8")
	}
	return norm.NFC.String(s), nil
}

func coerceInt(typeID string) Handler {
	return func(raw any) (any, error) {
		switch v := raw.(type) {
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case json.Number:
			if i, err := v.Int64(); err == nil {
				return i, nil
			}
			f, err := v.Float64()
			if err != nil {
				return nil, errorf(typeID, "%q is not a number", v.String())
			}
			return floatToInt(typeID, f)
		case float64:
			return floatToInt(typeID, v)
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, errorf(typeID, "%q is not an integer", v)
			}
			return i, nil
		default:
			return nil, errorf(typeID, "expected an integer, got %s", describe(raw))
		}
	}
}

func floatToInt(typeID string, f float64) (any, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, errorf(typeID, "%v is not an integer", f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, errorf(typeID, "%v overflows int64", f)
	}
	return int64(f), nil
}

func coerceFloat(typeID string) Handler {
	return func(raw any) (any, error) {
		var f float64
		switch v := raw.(type) {
		case float64:
			f = v
		case float32:
			f = float64(v)
		case int:
			f = float64(v)
		case int64:
			f = float64(v)
		case json.Number:
			parsed, err := v.Float64()
			if err != nil {
				return nil, errorf(typeID, "%q is not a number", v.String())
			}
			f = parsed
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, errorf(typeID, "%q is not a number", v)
			}
			f = parsed
		default:
			return nil, errorf(typeID, "expected a number, got %s", describe(raw))
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errorf(typeID, "non-finite numbers are not allowed")
		}
		return f, nil
	}
}

func coerceBool(typeID string) Handler {
	return func(raw any) (any, error) {
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, errorf(typeID, "%q is not a boolean", v)
			}
			return b, nil
		default:
			return nil, errorf(typeID, "expected a boolean, got %s", describe(raw))
		}
	}
}

func coerceObject(raw any) (any, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errorf(TypeObject, "expected an object, got %s", describe(raw))
	}
	return copyJSON(TypeObject, m)
}

func coerceArray(raw any) (any, error) {
	s, ok := raw.([]any)
	if !ok {
		return nil, errorf(TypeArray, "expected an array, got %s", describe(raw))
	}
	return copyJSON(TypeArray, s)
}

func coerceUUID(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, errorf(TypeUUID, "expected a string, got %s", describe(raw))
	}
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return nil, errorf(TypeUUID, "%q is not a UUID", s)
	}
	return id, nil
}

func coerceSemver(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, errorf(TypeSemver, "expected a string, got %s", describe(raw))
	}
	v, err := semver.NewVersion(strings.TrimSpace(s))
	if err != nil {
		return nil, errorf(TypeSemver, "%q is not a semantic version", s)
	}
	return v, nil
}

func coerceTimestamp(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, errorf(TypeTimestamp, "expected an RFC 3339 string, got %s", describe(raw))
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return nil, errorf(TypeTimestamp, "%q is not an RFC 3339 timestamp", s)
	}
	return ts, nil
}

func coerceDate(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, errorf(TypeDate, "expected a YYYY-MM-DD string, got %s", describe(raw))
	}
	d, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return nil, errorf(TypeDate, "%q is not a YYYY-MM-DD date", s)
	}
	return d, nil
}

func coerceDuration(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, errorf(TypeDuration, "expected a duration string such as \"90s\", got %s", describe(raw))
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return nil, errorf(TypeDuration, "%q is not a duration", s)
	}
	return d, nil
}

// copyJSON copies nested maps and slices so coerced values never alias the
// raw plan. Numbers must be finite and within the float64 range so that
// canonical JSON can read them back.
func copyJSON(typeID string, v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			c, err := copyJSON(typeID, val)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			c, err := copyJSON(typeID, val)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case json.Number:
		if f, err := strconv.ParseFloat(t.String(), 64); err != nil || math.IsInf(f, 0) {
			return nil, errorf(typeID, "%s is not a finite number", t.String())
		}
		return t, nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, errorf(typeID, "non-finite numbers are not allowed")
		}
		return t, nil
	case float32:
		return copyJSON(typeID, float64(t))
	default:
		return v, nil
	}
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int32, int64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
