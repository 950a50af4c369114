// Package codec centralizes the encoding of stored queries and snapshots.
//
// Persisted bytes are self-describing: a blob records the name of the codec and the
// compression that produced it, so changing the default codec never makes older
// stored queries unreadable.
package codec

import "fmt"

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// NumberDecoder is implemented by codecs that can decode numbers without converting
// them to float64. Integer query operands beyond 2^53 keep their exact value.
type NumberDecoder interface {
	UnmarshalUseNumber(data []byte, v any) error
}

// ByName returns a built-in codec by its stable name.
//
// Stored query blobs and snapshots record the codec name in their header; decoding
// selects the codec through this function.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// MustMarshal is a helper for internal tests/benchmarks.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}

// unmarshal decodes with number preservation when c supports it.
func unmarshal(c Codec, data []byte, v any) error {
	if nd, ok := c.(NumberDecoder); ok {
		return nd.UnmarshalUseNumber(data, v)
	}
	return c.Unmarshal(data, v)
}
