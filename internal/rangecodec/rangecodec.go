// Package rangecodec encodes (field, min, max) triples into the fixed-width keys
// stored in the percolator's single binary range field.
//
// Layout of an encoded range (Width = 16):
//
//	[ h1 | h2 ][ h1 | h2 ]     hash of the field name, written twice
//	[..hash..|min][..hash..|max]  min and max right-aligned into each half
//
// The untouched high-order bytes of both halves carry the field-name hash, so ranges of
// different logical fields never overlap (barring a 128-bit hash collision) while every
// field and every range type shares one intersection operator.
package rangecodec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/percolate/internal/hash"
)

// Width is the width of one encoded endpoint.
const Width = 16

// Size is the length of an encoded range.
const Size = 2 * Width

// Encode returns the encoded range for field with the given encoded endpoints.
// min and max must have the same length, at most Width. Anything else is a
// programming error and panics.
func Encode(field string, min, max []byte) []byte {
	if len(min) != len(max) {
		panic(fmt.Sprintf("rangecodec: min/max width mismatch for field %q: %d != %d", field, len(min), len(max)))
	}
	if len(min) > Width {
		panic(fmt.Sprintf("rangecodec: endpoint width %d exceeds %d for field %q", len(min), Width, field))
	}

	out := make([]byte, Size)
	h1, h2 := hash.Sum128([]byte(field))
	binary.BigEndian.PutUint64(out[0:], h1)
	binary.BigEndian.PutUint64(out[8:], h2)
	binary.BigEndian.PutUint64(out[16:], h1)
	binary.BigEndian.PutUint64(out[24:], h2)

	offset := Width - len(min)
	copy(out[offset:], min)
	copy(out[Width+offset:], max)
	return out
}

// Split returns the min and max halves of an encoded range.
func Split(encoded []byte) (min, max []byte) {
	return encoded[:Width], encoded[Width:Size]
}

// Intersects reports whether two encoded ranges overlap.
func Intersects(a, b []byte) bool {
	aMin, aMax := Split(a)
	bMin, bMax := Split(b)
	return bytes.Compare(aMin, bMax) <= 0 && bytes.Compare(bMin, aMax) <= 0
}
