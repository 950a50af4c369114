package metadata

import (
	"math"
	"strconv"
	"strings"
	"unique"
)

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindInvalid represents an invalid kind.
	KindInvalid Kind = iota
	// KindNull represents a null value.
	KindNull
	// KindInt represents an integer value.
	KindInt
	// KindFloat represents a float value.
	KindFloat
	// KindString represents a string value.
	KindString
	// KindBool represents a boolean value.
	KindBool
	// KindArray represents an array value.
	KindArray
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	default:
		return "invalid"
	}
}

// Value is a small typed value without reflection or fmt-based stringification.
//
// Strings are interned; query operands and document values repeat heavily.
type Value struct {
	Kind Kind
	I64  int64
	F64  float64
	s    unique.Handle[string]
	B    bool
	A    []Value
}

// Null returns a null Value.
func Null() Value { return Value{Kind: KindNull} }

// Int returns an int64 Value.
func Int(v int64) Value { return Value{Kind: KindInt, I64: v} }

// Float returns a float64 Value.
func Float(v float64) Value { return Value{Kind: KindFloat, F64: v} }

// String returns a string Value.
func String(v string) Value { return Value{Kind: KindString, s: unique.Make(v)} }

// Bool returns a boolean Value.
func Bool(v bool) Value { return Value{Kind: KindBool, B: v} }

// Array returns an array Value.
func Array(v []Value) Value { return Value{Kind: KindArray, A: v} }

// StringValue returns the string value if Kind is KindString, otherwise empty string.
func (v Value) StringValue() string {
	if v.Kind == KindString {
		return v.s.Value()
	}
	return ""
}

// AsInt64 returns the int64 value if Kind is KindInt.
func (v Value) AsInt64() (int64, bool) {
	if v.Kind != KindInt {
		return 0, false
	}
	return v.I64, true
}

// AsFloat64 returns the value as float64 if Kind is KindFloat or KindInt.
func (v Value) AsFloat64() (float64, bool) {
	switch v.Kind {
	case KindFloat:
		return v.F64, true
	case KindInt:
		return float64(v.I64), true
	default:
		return 0, false
	}
}

// AsString returns the string value if Kind is KindString.
func (v Value) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.s.Value(), true
}

// AsBool returns the boolean value if Kind is KindBool.
func (v Value) AsBool() (bool, bool) {
	if v.Kind != KindBool {
		return false, false
	}
	return v.B, true
}

// AsArray returns the array value if Kind is KindArray.
func (v Value) AsArray() ([]Value, bool) {
	if v.Kind != KindArray {
		return nil, false
	}
	return v.A, true
}

// Text renders a scalar value the way it appears in a query or document source.
// Null, arrays and invalid values render as the empty string.
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return v.s.Value()
	case KindInt:
		return strconv.FormatInt(v.I64, 10)
	case KindFloat:
		return strconv.FormatFloat(v.F64, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.B)
	default:
		return ""
	}
}

// Key returns a stable string representation for use in maps.
func (v Value) Key() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindInt:
		return "i:" + strconv.FormatInt(v.I64, 10)
	case KindFloat:
		return "f:" + strconv.FormatUint(math.Float64bits(v.F64), 16)
	case KindString:
		return "s:" + v.s.Value()
	case KindBool:
		if v.B {
			return "b:1"
		}
		return "b:0"
	case KindArray:
		if len(v.A) == 0 {
			return "a:"
		}
		parts := make([]string, len(v.A))
		for i := range v.A {
			parts[i] = v.A[i].Key()
		}
		return "a:" + strings.Join(parts, "\x1f")
	default:
		return "invalid"
	}
}

// Flatten appends the scalar values of v to dst, descending into arrays.
// Nulls are dropped.
func (v Value) Flatten(dst []Value) []Value {
	switch v.Kind {
	case KindArray:
		for i := range v.A {
			dst = v.A[i].Flatten(dst)
		}
		return dst
	case KindNull, KindInvalid:
		return dst
	default:
		return append(dst, v)
	}
}

// Document maps flattened field names (dotted paths) to their scalar values.
// A field holding an array contributes one entry per element.
type Document map[string][]Value

// Add appends values to field.
func (d Document) Add(field string, values ...Value) {
	d[field] = append(d[field], values...)
}

// Fields returns the names of fields with at least one value.
func (d Document) Fields() []string {
	fields := make([]string, 0, len(d))
	for f, vs := range d {
		if len(vs) > 0 {
			fields = append(fields, f)
		}
	}
	return fields
}

// Clone creates a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}

	clone := make(Document, len(d))
	for k, vs := range d {
		cp := make([]Value, len(vs))
		for i := range vs {
			cp[i] = vs[i].clone()
		}
		clone[k] = cp
	}
	return clone
}

func (v Value) clone() Value {
	if v.Kind != KindArray || len(v.A) == 0 {
		return v
	}

	arrayCopy := make([]Value, len(v.A))
	for i := range v.A {
		arrayCopy[i] = v.A[i].clone()
	}
	v.A = arrayCopy
	return v
}
