// Package point implements order-preserving fixed-width encodings of numeric,
// date and IP values.
//
// Encoded values compare with bytes.Compare in the same order as the values they
// encode, which lets every numeric type share one binary range comparator.
package point

import (
	"encoding/binary"
	"math"
	"net/netip"
)

// Encoded widths in bytes.
const (
	IntWidth    = 4
	LongWidth   = 8
	FloatWidth  = 4
	DoubleWidth = 8
	IPWidth     = 16
)

// EncodeLong encodes v as 8 sign-flipped big-endian bytes.
func EncodeLong(v int64) []byte {
	b := make([]byte, LongWidth)
	binary.BigEndian.PutUint64(b, uint64(v)^(1<<63))
	return b
}

// DecodeLong is the inverse of EncodeLong.
func DecodeLong(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b) ^ (1 << 63))
}

// EncodeInt encodes v as 4 sign-flipped big-endian bytes.
func EncodeInt(v int32) []byte {
	b := make([]byte, IntWidth)
	binary.BigEndian.PutUint32(b, uint32(v)^(1<<31))
	return b
}

// DecodeInt is the inverse of EncodeInt.
func DecodeInt(b []byte) int32 {
	return int32(binary.BigEndian.Uint32(b) ^ (1 << 31))
}

// EncodeDouble encodes v so that the byte order matches the numeric order.
// -0 and +0 encode differently; callers normalize when that matters.
func EncodeDouble(v float64) []byte {
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits ^= 1 << 63
	}
	b := make([]byte, DoubleWidth)
	binary.BigEndian.PutUint64(b, bits)
	return b
}

// DecodeDouble is the inverse of EncodeDouble.
func DecodeDouble(b []byte) float64 {
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}

// EncodeFloat is the 32-bit variant of EncodeDouble.
func EncodeFloat(v float32) []byte {
	bits := math.Float32bits(v)
	if bits&(1<<31) != 0 {
		bits = ^bits
	} else {
		bits ^= 1 << 31
	}
	b := make([]byte, FloatWidth)
	binary.BigEndian.PutUint32(b, bits)
	return b
}

// DecodeFloat is the inverse of EncodeFloat.
func DecodeFloat(b []byte) float32 {
	bits := binary.BigEndian.Uint32(b)
	if bits&(1<<31) != 0 {
		bits ^= 1 << 31
	} else {
		bits = ^bits
	}
	return math.Float32frombits(bits)
}

// EncodeIP encodes addr as 16 bytes. IPv4 addresses are IPv4-mapped.
func EncodeIP(addr netip.Addr) []byte {
	a := addr.As16()
	b := make([]byte, IPWidth)
	copy(b, a[:])
	return b
}

// DecodeIP is the inverse of EncodeIP.
func DecodeIP(b []byte) netip.Addr {
	var a [16]byte
	copy(a[:], b)
	return netip.AddrFrom16(a).Unmap()
}

// Min returns the smallest encoded value of the given width.
func Min(width int) []byte {
	return make([]byte, width)
}

// Max returns the largest encoded value of the given width.
func Max(width int) []byte {
	b := make([]byte, width)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}

// Next returns the encoded value immediately after b.
// ok is false when b is already the maximum.
func Next(b []byte) (next []byte, ok bool) {
	next = append([]byte(nil), b...)
	for i := len(next) - 1; i >= 0; i-- {
		if next[i] != 0xFF {
			next[i]++
			return next, true
		}
		next[i] = 0
	}
	return nil, false
}

// Prev returns the encoded value immediately before b.
// ok is false when b is already the minimum.
func Prev(b []byte) (prev []byte, ok bool) {
	prev = append([]byte(nil), b...)
	for i := len(prev) - 1; i >= 0; i-- {
		if prev[i] != 0 {
			prev[i]--
			return prev, true
		}
		prev[i] = 0xFF
	}
	return nil, false
}
