package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression defines the block compression applied to encoded payloads.
type Compression uint8

const (
	// CompressionNone stores payloads as is.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD block compression (better ratio).
	CompressionZSTD Compression = 2
)

// ErrCorruptBlock is returned when a compressed block cannot be decoded.
var ErrCorruptBlock = errors.New("corrupt block")

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression returns the compression named s.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// Block layout: [UncompressedSize uint32][CompressedSize uint32][Data...].
// CompressedSize == 0 means the data is stored uncompressed.
const blockHeaderSize = 8

// CompressBlock compresses data into a self-sized block. When compression does not
// save at least a tenth of the input, the block holds the data uncompressed.
func CompressBlock(data []byte, c Compression) ([]byte, error) {
	var (
		compressed []byte
		err        error
	)
	switch c {
	case CompressionNone:
	case CompressionLZ4:
		compressed, err = compressLZ4(data)
	case CompressionZSTD:
		compressed = compressZSTD(data)
	default:
		return nil, fmt.Errorf("unsupported compression %s", c)
	}
	if err != nil {
		return nil, err
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(out[4:], 0)
		copy(out[blockHeaderSize:], data)
		return out, nil
	}

	out := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[blockHeaderSize:], compressed)
	return out, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	buf := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, buf, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // Incompressible
	}
	return buf[:n], nil
}

func compressZSTD(data []byte) []byte {
	enc := getZstdEncoder()
	defer putZstdEncoder(enc)

	return enc.EncodeAll(data, nil)
}

// DecompressBlock decodes a block written by CompressBlock with the same compression.
func DecompressBlock(block []byte, c Compression) ([]byte, error) {
	if len(block) < blockHeaderSize {
		return nil, fmt.Errorf("%w: block too small for header", ErrCorruptBlock)
	}

	size := binary.LittleEndian.Uint32(block[0:])
	compressedSize := binary.LittleEndian.Uint32(block[4:])
	body := block[blockHeaderSize:]

	if compressedSize == 0 {
		if uint64(len(body)) != uint64(size) {
			return nil, fmt.Errorf("%w: stored size %d, have %d bytes", ErrCorruptBlock, size, len(body))
		}
		return body, nil
	}
	if uint64(len(body)) != uint64(compressedSize) {
		return nil, fmt.Errorf("%w: compressed size %d, have %d bytes", ErrCorruptBlock, compressedSize, len(body))
	}

	out := make([]byte, size)
	switch c {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptBlock, err)
		}
		if uint32(n) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorruptBlock)
		}
		return out, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)

		decoded, err := dec.DecodeAll(body, out[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptBlock, err)
		}
		if uint32(len(decoded)) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorruptBlock)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: compressed block with compression %s", ErrCorruptBlock, c)
	}
}
