package mapping

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/percolate/internal/analysis"
	"github.com/hupe1980/percolate/internal/point"
	"github.com/hupe1980/percolate/metadata"
)

// ErrNotPointField is returned when a point operation is applied to a field whose
// values are not indexed as points.
var ErrNotPointField = errors.New("field is not indexed as points")

// ErrNotTermField is returned when a term operation is applied to a field whose
// values are not indexed as terms.
var ErrNotTermField = errors.New("field is not indexed as terms")

// Field is a resolved field of a mapping.
type Field struct {
	Name string
	Type Type
	// Nested is the innermost nested path that contains the field, empty for root fields.
	Nested string
}

// IsPoint reports whether the field is indexed as points.
func (f Field) IsPoint() bool { return f.Type.IsPoint() }

// IsNumeric reports whether the field holds numbers.
func (f Field) IsNumeric() bool { return f.Type.IsNumeric() }

// IsTerm reports whether the field is indexed as terms.
func (f Field) IsTerm() bool { return f.Type.IsTerm() }

// PointWidth returns the encoded width of the field's points, 0 for non-point fields.
func (f Field) PointWidth() int {
	switch f.Type {
	case Long, Date:
		return point.LongWidth
	case Integer, Short, Byte:
		return point.IntWidth
	case Double:
		return point.DoubleWidth
	case Float:
		return point.FloatWidth
	case IP:
		return point.IPWidth
	default:
		return 0
	}
}

func (f Field) integerLimits() (lo, hi int64) {
	switch f.Type {
	case Integer:
		return math.MinInt32, math.MaxInt32
	case Short:
		return math.MinInt16, math.MaxInt16
	case Byte:
		return math.MinInt8, math.MaxInt8
	default:
		return math.MinInt64, math.MaxInt64
	}
}

func (f Field) encodeInteger(i int64) []byte {
	if f.PointWidth() == point.IntWidth {
		return point.EncodeInt(int32(i))
	}
	return point.EncodeLong(i)
}

func (f Field) checkInteger(i int64) error {
	lo, hi := f.integerLimits()
	if i < lo || i > hi {
		return fmt.Errorf("value [%d] is out of range for field %q of type %s", i, f.Name, f.Type)
	}
	return nil
}

// EncodePoint encodes a document value of a point field. Fractional values of
// integer fields are truncated toward zero.
func (f Field) EncodePoint(v metadata.Value) ([]byte, error) {
	switch f.Type {
	case Date:
		ms, err := ParseDate(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		return point.EncodeLong(ms), nil
	case Long, Integer, Short, Byte:
		n, err := parseNumeric(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		i := n.i
		if !n.exact {
			t := math.Trunc(n.f)
			if t >= 0x1p63 || t < -0x1p63 {
				return nil, fmt.Errorf("value [%v] is out of range for field %q of type %s", n.f, f.Name, f.Type)
			}
			i = int64(t)
		}
		if err := f.checkInteger(i); err != nil {
			return nil, err
		}
		return f.encodeInteger(i), nil
	case Double:
		n, err := parseNumeric(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		return point.EncodeDouble(normalizeZero(n.f)), nil
	case Float:
		n, err := parseNumeric(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		return point.EncodeFloat(float32(normalizeZero(n.f))), nil
	case IP:
		addr, err := ParseIP(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		return point.EncodeIP(addr), nil
	default:
		return nil, fmt.Errorf("%w: %q is of type %s", ErrNotPointField, f.Name, f.Type)
	}
}

// TermRange encodes the operand of a term query on a point field as a closed range.
// A single value yields [v, v]; a CIDR on an ip field yields the block it covers.
// ok is false when no value of the field can equal v, such as a fractional number
// on an integer field.
func (f Field) TermRange(v metadata.Value) (min, max []byte, ok bool, err error) {
	switch f.Type {
	case IP:
		if s, isString := v.AsString(); isString {
			if p, isPrefix := parsePrefix(s); isPrefix {
				first, last := prefixBounds(p)
				return append([]byte(nil), first[:]...), append([]byte(nil), last[:]...), true, nil
			}
		}
	case Long, Integer, Short, Byte:
		n, err := parseNumeric(v)
		if err != nil {
			return nil, nil, false, fmt.Errorf("field %q: %w", f.Name, err)
		}
		if !n.exact {
			if n.f != math.Trunc(n.f) {
				return nil, nil, false, nil
			}
			if n.f >= 0x1p63 || n.f < -0x1p63 {
				return nil, nil, false, fmt.Errorf("value [%v] is out of range for field %q of type %s", n.f, f.Name, f.Type)
			}
			n.i = int64(n.f)
		}
		if err := f.checkInteger(n.i); err != nil {
			return nil, nil, false, err
		}
		enc := f.encodeInteger(n.i)
		return enc, enc, true, nil
	}

	enc, err := f.EncodePoint(v)
	if err != nil {
		return nil, nil, false, err
	}
	return enc, enc, true, nil
}

// EncodeRange encodes a range over a point field as closed encoded bounds. A Null or
// zero Value is an open bound. ok is false when the range contains no value.
func (f Field) EncodeRange(from, to metadata.Value, includeLower, includeUpper bool) (min, max []byte, ok bool, err error) {
	width := f.PointWidth()
	if width == 0 {
		return nil, nil, false, fmt.Errorf("%w: %q is of type %s", ErrNotPointField, f.Name, f.Type)
	}

	min, max = point.Min(width), point.Max(width)
	if isOpen(from) && f.Type.isInteger() {
		lo, _ := f.integerLimits()
		min = f.encodeInteger(lo)
	}
	if isOpen(to) && f.Type.isInteger() {
		_, hi := f.integerLimits()
		max = f.encodeInteger(hi)
	}

	if !isOpen(from) {
		var nonEmpty bool
		min, nonEmpty, err = f.encodeBound(from, true, includeLower)
		if err != nil || !nonEmpty {
			return nil, nil, false, err
		}
	}
	if !isOpen(to) {
		var nonEmpty bool
		max, nonEmpty, err = f.encodeBound(to, false, includeUpper)
		if err != nil || !nonEmpty {
			return nil, nil, false, err
		}
	}
	if bytes.Compare(min, max) > 0 {
		return nil, nil, false, nil
	}
	return min, max, true, nil
}

func isOpen(v metadata.Value) bool {
	return v.Kind == metadata.KindInvalid || v.Kind == metadata.KindNull
}

func (f Field) encodeBound(v metadata.Value, lower, inclusive bool) ([]byte, bool, error) {
	switch f.Type {
	case Date:
		ms, err := ParseDate(v)
		if err != nil {
			return nil, false, fmt.Errorf("field %q: %w", f.Name, err)
		}
		i, ok := integerBound(numeric{i: ms, exact: true}, lower, inclusive, math.MinInt64, math.MaxInt64)
		if !ok {
			return nil, false, nil
		}
		return point.EncodeLong(i), true, nil
	case Long, Integer, Short, Byte:
		n, err := parseNumeric(v)
		if err != nil {
			return nil, false, fmt.Errorf("field %q: %w", f.Name, err)
		}
		lo, hi := f.integerLimits()
		i, ok := integerBound(n, lower, inclusive, lo, hi)
		if !ok {
			return nil, false, nil
		}
		return f.encodeInteger(i), true, nil
	case Double:
		n, err := parseNumeric(v)
		if err != nil {
			return nil, false, fmt.Errorf("field %q: %w", f.Name, err)
		}
		d, ok := doubleBound(n.f, lower, inclusive)
		if !ok {
			return nil, false, nil
		}
		return point.EncodeDouble(d), true, nil
	case Float:
		n, err := parseNumeric(v)
		if err != nil {
			return nil, false, fmt.Errorf("field %q: %w", f.Name, err)
		}
		d, ok := floatBound(n.f, lower, inclusive)
		if !ok {
			return nil, false, nil
		}
		return point.EncodeFloat(d), true, nil
	case IP:
		addr, err := ParseIP(v)
		if err != nil {
			return nil, false, fmt.Errorf("field %q: %w", f.Name, err)
		}
		enc := point.EncodeIP(addr)
		if inclusive {
			return enc, true, nil
		}
		if lower {
			next, ok := point.Next(enc)
			return next, ok, nil
		}
		prev, ok := point.Prev(enc)
		return prev, ok, nil
	default:
		return nil, false, fmt.Errorf("%w: %q is of type %s", ErrNotPointField, f.Name, f.Type)
	}
}

// integerBound returns the tightest integer bound in [lo, hi] for n. ok is false
// when the bound excludes every value of the type.
func integerBound(n numeric, lower, inclusive bool, lo, hi int64) (int64, bool) {
	if n.exact {
		i := n.i
		if !inclusive {
			if lower {
				if i == math.MaxInt64 {
					return 0, false
				}
				i++
			} else {
				if i == math.MinInt64 {
					return 0, false
				}
				i--
			}
		}
		return clampBound(i, lower, lo, hi)
	}

	var c float64
	switch {
	case lower && inclusive:
		c = math.Ceil(n.f)
	case lower:
		c = math.Floor(n.f) + 1
	case inclusive:
		c = math.Floor(n.f)
	default:
		c = math.Ceil(n.f) - 1
	}
	switch {
	case c >= 0x1p63:
		if lower {
			return 0, false
		}
		return hi, true
	case c < -0x1p63:
		if lower {
			return lo, true
		}
		return 0, false
	}
	return clampBound(int64(c), lower, lo, hi)
}

func clampBound(i int64, lower bool, lo, hi int64) (int64, bool) {
	if i > hi {
		if lower {
			return 0, false
		}
		return hi, true
	}
	if i < lo {
		if lower {
			return lo, true
		}
		return 0, false
	}
	return i, true
}

func doubleBound(x float64, lower, inclusive bool) (float64, bool) {
	if !inclusive {
		if lower {
			if math.IsInf(x, 1) {
				return 0, false
			}
			x = math.Nextafter(x, math.Inf(1))
		} else {
			if math.IsInf(x, -1) {
				return 0, false
			}
			x = math.Nextafter(x, math.Inf(-1))
		}
	}
	return normalizeZero(x), true
}

func floatBound(x float64, lower, inclusive bool) (float32, bool) {
	f := float32(x)
	if lower {
		if float64(f) < x || (!inclusive && float64(f) == x) {
			if math.IsInf(float64(f), 1) {
				return 0, false
			}
			f = math.Nextafter32(f, float32(math.Inf(1)))
		}
	} else {
		if float64(f) > x || (!inclusive && float64(f) == x) {
			if math.IsInf(float64(f), -1) {
				return 0, false
			}
			f = math.Nextafter32(f, float32(math.Inf(-1)))
		}
	}
	if f == 0 {
		f = 0
	}
	return f, true
}

func normalizeZero(x float64) float64 {
	if x == 0 {
		return 0
	}
	return x
}

// IndexTerms returns the terms a document value contributes to a term field.
func (f Field) IndexTerms(v metadata.Value) ([]string, error) {
	switch f.Type {
	case Keyword:
		return []string{v.Text()}, nil
	case Text:
		return analysis.Terms(v.Text()), nil
	case Boolean:
		b, err := ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		return []string{boolTerm(b)}, nil
	default:
		return nil, fmt.Errorf("%w: %q is of type %s", ErrNotTermField, f.Name, f.Type)
	}
}

// TermValue normalizes the operand of a term query on a term field. Term queries are
// not analyzed, so a text field receives the operand verbatim.
func (f Field) TermValue(v metadata.Value) (string, error) {
	switch f.Type {
	case Keyword, Text:
		if v.Kind == metadata.KindNull || v.Kind == metadata.KindArray || v.Kind == metadata.KindInvalid {
			return "", fmt.Errorf("field %q: invalid term value of kind %s", f.Name, v.Kind)
		}
		return v.Text(), nil
	case Boolean:
		b, err := ParseBool(v)
		if err != nil {
			return "", fmt.Errorf("field %q: %w", f.Name, err)
		}
		return boolTerm(b), nil
	default:
		return "", fmt.Errorf("%w: %q is of type %s", ErrNotTermField, f.Name, f.Type)
	}
}

// QueryTerms applies search-time analysis to the text of a match query.
func (f Field) QueryTerms(text string) ([]string, error) {
	switch f.Type {
	case Keyword:
		return []string{text}, nil
	case Text:
		return analysis.Terms(text), nil
	case Boolean:
		b, err := ParseBool(metadata.String(text))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		return []string{boolTerm(b)}, nil
	default:
		return nil, fmt.Errorf("%w: %q is of type %s", ErrNotTermField, f.Name, f.Type)
	}
}

func boolTerm(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
