package mapping

import (
	"fmt"
	"math"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/percolate/metadata"
)

// dateLayouts are tried in order for string date values that are not epoch millis.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01",
	"2006",
}

// ParseDate converts a date value to epoch milliseconds (UTC).
// Numbers and numeric strings are taken as epoch millis.
func ParseDate(v metadata.Value) (int64, error) {
	switch v.Kind {
	case metadata.KindInt:
		return v.I64, nil
	case metadata.KindFloat:
		if math.IsNaN(v.F64) || math.IsInf(v.F64, 0) {
			return 0, fmt.Errorf("invalid date %v", v.F64)
		}
		return int64(v.F64), nil
	case metadata.KindString:
		s := strings.TrimSpace(v.StringValue())
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return ms, nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UnixMilli(), nil
			}
		}
		return 0, fmt.Errorf("failed to parse date %q", s)
	default:
		return 0, fmt.Errorf("invalid date value of kind %s", v.Kind)
	}
}

// ParseIP parses an IPv4 or IPv6 address value.
func ParseIP(v metadata.Value) (netip.Addr, error) {
	s, ok := v.AsString()
	if !ok {
		return netip.Addr{}, fmt.Errorf("invalid ip value of kind %s", v.Kind)
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("failed to parse ip: %w", err)
	}
	return addr, nil
}

// parsePrefix parses CIDR notation. The returned prefix is masked.
func parsePrefix(s string) (netip.Prefix, bool) {
	if !strings.Contains(s, "/") {
		return netip.Prefix{}, false
	}
	p, err := netip.ParsePrefix(strings.TrimSpace(s))
	if err != nil {
		return netip.Prefix{}, false
	}
	return p.Masked(), true
}

// prefixBounds returns the first and last address of p as 16-byte arrays.
func prefixBounds(p netip.Prefix) (first, last [16]byte) {
	first = p.Addr().As16()
	last = first
	bits := p.Bits()
	if p.Addr().Is4() {
		bits += 96
	}
	for i := bits; i < 128; i++ {
		last[i/8] |= 1 << (7 - uint(i%8))
	}
	return first, last
}

// ParseBool accepts booleans and the strings "true", "false" and "".
func ParseBool(v metadata.Value) (bool, error) {
	switch v.Kind {
	case metadata.KindBool:
		return v.B, nil
	case metadata.KindString:
		switch v.StringValue() {
		case "true":
			return true, nil
		case "false", "":
			return false, nil
		}
		return false, fmt.Errorf("failed to parse boolean %q", v.StringValue())
	default:
		return false, fmt.Errorf("invalid boolean value of kind %s", v.Kind)
	}
}

// numeric holds a parsed numeric operand. When exact is true, i holds the value.
type numeric struct {
	i     int64
	f     float64
	exact bool
}

func parseNumeric(v metadata.Value) (numeric, error) {
	switch v.Kind {
	case metadata.KindInt:
		return numeric{i: v.I64, f: float64(v.I64), exact: true}, nil
	case metadata.KindFloat:
		if math.IsNaN(v.F64) {
			return numeric{}, fmt.Errorf("NaN is not a valid number")
		}
		return numeric{f: v.F64}, nil
	case metadata.KindString:
		s := strings.TrimSpace(v.StringValue())
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return numeric{i: i, f: float64(i), exact: true}, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return numeric{}, fmt.Errorf("failed to parse number %q", s)
		}
		return numeric{f: f}, nil
	default:
		return numeric{}, fmt.Errorf("invalid numeric value of kind %s", v.Kind)
	}
}
