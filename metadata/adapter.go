package metadata

import (
	"fmt"
	"math"
	"strings"
)

// number is satisfied by the json.Number types of encoding/json and goccy/go-json.
type number interface {
	String() string
	Int64() (int64, error)
	Float64() (float64, error)
}

// FromAny converts a decoded Go value into a typed Value.
//
// Numbers decoded with UseNumber keep their integral or fractional nature: a literal
// without a fraction or exponent that fits in int64 becomes an Int.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case float64:
		return Float(x), nil
	case float32:
		return Float(float64(x)), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Int(int64(x)), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Value{}, fmt.Errorf("metadata uint64 out of range: %d", x)
		}
		return Int(int64(x)), nil
	case []Value:
		return Array(x), nil
	case []any:
		arr := make([]Value, len(x))
		for i := range x {
			vv, err := FromAny(x[i])
			if err != nil {
				return Value{}, err
			}
			arr[i] = vv
		}
		return Array(arr), nil
	case []string:
		arr := make([]Value, len(x))
		for i := range x {
			arr[i] = String(x[i])
		}
		return Array(arr), nil
	case number:
		return fromNumber(x)
	default:
		return Value{}, fmt.Errorf("unsupported metadata value type %T", v)
	}
}

func fromNumber(n number) (Value, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return Int(i), nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return Value{}, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return Float(f), nil
}

// Any converts a Value back into a plain Go value suitable for JSON encoding.
func (v Value) Any() any {
	switch v.Kind {
	case KindInt:
		return v.I64
	case KindFloat:
		return v.F64
	case KindString:
		return v.s.Value()
	case KindBool:
		return v.B
	case KindArray:
		out := make([]any, len(v.A))
		for i := range v.A {
			out[i] = v.A[i].Any()
		}
		return out
	default:
		return nil
	}
}
