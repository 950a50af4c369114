package codec

import (
	"errors"
	"fmt"
)

// Blob layout:
//
//	[magic 'Q'][version uint8][name len uint8][codec name][compression uint8][block]
//
// The block is written by CompressBlock.
const (
	blobMagic   byte = 'Q'
	blobVersion byte = 1
)

var (
	// ErrInvalidBlob is returned for bytes that are not a blob.
	ErrInvalidBlob = errors.New("invalid blob")
	// ErrUnsupportedVersion is returned for blobs written by a newer format version.
	ErrUnsupportedVersion = errors.New("unsupported blob version")
	// ErrUnknownCodec is returned when a blob names a codec that is not available.
	ErrUnknownCodec = errors.New("unknown codec")
)

// EncodeBlob marshals v with c, compresses it and prefixes the blob header.
func EncodeBlob(c Codec, comp Compression, v any) ([]byte, error) {
	if c == nil {
		c = Default
	}
	name := c.Name()
	if name == "" || len(name) > 255 {
		return nil, fmt.Errorf("codec name %q must be 1-255 bytes", name)
	}

	payload, err := c.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec %s marshal failed: %w", name, err)
	}
	block, err := CompressBlock(payload, comp)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 4+len(name)+len(block))
	out = append(out, blobMagic, blobVersion, byte(len(name)))
	out = append(out, name...)
	out = append(out, byte(comp))
	return append(out, block...), nil
}

// DecodeBlob decodes a blob into v and returns the codec that wrote it. Codecs in
// extra are consulted by name before the built-in ones.
func DecodeBlob(data []byte, v any, extra ...Codec) (Codec, error) {
	if len(data) < 4 || data[0] != blobMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidBlob)
	}
	if data[1] != blobVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[1])
	}

	n := int(data[2])
	if len(data) < 4+n {
		return nil, fmt.Errorf("%w: truncated header", ErrInvalidBlob)
	}
	name := string(data[3 : 3+n])
	comp := Compression(data[3+n])

	c, ok := lookup(name, extra)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}

	payload, err := DecompressBlock(data[4+n:], comp)
	if err != nil {
		return nil, err
	}
	if err := unmarshal(c, payload, v); err != nil {
		return nil, fmt.Errorf("codec %s unmarshal failed: %w", name, err)
	}
	return c, nil
}

func lookup(name string, extra []Codec) (Codec, bool) {
	for _, c := range extra {
		if c != nil && c.Name() == name {
			return c, true
		}
	}
	return ByName(name)
}
