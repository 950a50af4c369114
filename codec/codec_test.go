package codec

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleQuery() map[string]any {
	return map[string]any{
		"bool": map[string]any{
			"must": []any{
				map[string]any{"term": map[string]any{"status": map[string]any{"value": "ok"}}},
				map[string]any{"range": map[string]any{"age": map[string]any{"gte": int64(9007199254740993)}}},
			},
		},
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok)
		assert.Equal(t, name, c.Name())
	}
	_, ok := ByName("msgpack")
	assert.False(t, ok)
}

func TestCompressBlock(t *testing.T) {
	compressible := bytes.Repeat([]byte(`{"term":{"status":"ok"}}`), 64)
	tiny := []byte(`{}`)

	for _, comp := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(comp.String(), func(t *testing.T) {
			for _, data := range [][]byte{compressible, tiny, {}} {
				block, err := CompressBlock(data, comp)
				require.NoError(t, err)
				if comp != CompressionNone && len(data) == len(compressible) {
					assert.Less(t, len(block), len(data))
				}
				got, err := DecompressBlock(block, comp)
				require.NoError(t, err)
				assert.Equal(t, len(data), len(got))
				assert.True(t, bytes.Equal(data, got))
			}
		})
	}
}

func TestDecompressBlock_Corrupt(t *testing.T) {
	_, err := DecompressBlock([]byte{1, 2}, CompressionZSTD)
	assert.ErrorIs(t, err, ErrCorruptBlock)

	block, err := CompressBlock(bytes.Repeat([]byte("abc"), 100), CompressionZSTD)
	require.NoError(t, err)
	_, err = DecompressBlock(block[:len(block)-1], CompressionZSTD)
	assert.ErrorIs(t, err, ErrCorruptBlock)
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in   string
		want Compression
	}{
		{"", CompressionNone},
		{"none", CompressionNone},
		{"lz4", CompressionLZ4},
		{"zstd", CompressionZSTD},
	}
	for _, tt := range tests {
		got, err := ParseCompression(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := ParseCompression("snappy")
	assert.Error(t, err)
}

func TestBlob(t *testing.T) {
	for _, c := range []Codec{JSON{}, GoJSON{}} {
		for _, comp := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
			t.Run(c.Name()+"/"+comp.String(), func(t *testing.T) {
				blob, err := EncodeBlob(c, comp, sampleQuery())
				require.NoError(t, err)
				assert.Equal(t, byte('Q'), blob[0])

				var got map[string]any
				used, err := DecodeBlob(blob, &got)
				require.NoError(t, err)
				assert.Equal(t, c.Name(), used.Name())

				must := got["bool"].(map[string]any)["must"].([]any)
				gte := must[1].(map[string]any)["range"].(map[string]any)["age"].(map[string]any)["gte"]
				num, ok := gte.(json.Number)
				require.True(t, ok, "numbers are preserved, got %T", gte)
				assert.Equal(t, "9007199254740993", num.String())
			})
		}
	}
}

type upperCodec struct{ JSON }

func (upperCodec) Name() string { return "upper" }

func TestBlob_Errors(t *testing.T) {
	blob, err := EncodeBlob(nil, CompressionNone, map[string]any{"a": 1})
	require.NoError(t, err)

	var v map[string]any
	_, err = DecodeBlob([]byte("nope"), &v)
	assert.ErrorIs(t, err, ErrInvalidBlob)

	future := append([]byte(nil), blob...)
	future[1] = 99
	_, err = DecodeBlob(future, &v)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = DecodeBlob(blob[:5], &v)
	assert.Error(t, err)

	custom, err := EncodeBlob(upperCodec{}, CompressionLZ4, map[string]any{"a": 1})
	require.NoError(t, err)
	_, err = DecodeBlob(custom, &v)
	assert.ErrorIs(t, err, ErrUnknownCodec)
	used, err := DecodeBlob(custom, &v, upperCodec{})
	require.NoError(t, err)
	assert.Equal(t, "upper", used.Name())

	_, err = EncodeBlob(upperCodec{}, Compression(7), nil)
	assert.Error(t, err)
	assert.True(t, strings.Contains(Compression(7).String(), "7"))
}

func TestMustMarshal(t *testing.T) {
	assert.Equal(t, []byte(`{"a":1}`), MustMarshal(nil, map[string]int{"a": 1}))
	assert.Panics(t, func() { MustMarshal(JSON{}, make(chan int)) })
}
