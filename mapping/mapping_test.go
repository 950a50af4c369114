package mapping

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/percolate/internal/point"
	"github.com/hupe1980/percolate/metadata"
)

func testMapping(t *testing.T) *Mapping {
	t.Helper()
	m, err := NewBuilder().
		Keyword("status").
		Text("body").
		Long("age").
		Add("level", Byte).
		Double("price").
		Add("ratio", Float).
		Date("created").
		IP("addr").
		Boolean("active").
		Nested("comments").
		Text("comments.text").
		Keyword("comments.author").
		Build()
	require.NoError(t, err)
	return m
}

func TestMapping_Resolve(t *testing.T) {
	m := testMapping(t)

	f, err := m.Resolve("status", false)
	require.NoError(t, err)
	assert.Equal(t, Keyword, f.Type)
	assert.Empty(t, f.Nested)

	f, err = m.Resolve("comments.author", false)
	require.NoError(t, err)
	assert.Equal(t, "comments", f.Nested)

	_, err = m.Resolve("missing", false)
	assert.ErrorIs(t, err, ErrUnmappedField)

	f, err = m.Resolve("missing", true)
	require.NoError(t, err)
	assert.Equal(t, Text, f.Type)

	_, err = m.Resolve("comments", false)
	assert.ErrorIs(t, err, ErrUnmappedField)
}

func TestBuilder_Invalid(t *testing.T) {
	tests := []struct {
		name string
		b    *Builder
	}{
		{"UnknownType", NewBuilder().Add("x", Type("geo_shape"))},
		{"EmptyName", NewBuilder().Keyword("")},
		{"Conflict", NewBuilder().Keyword("x").Long("x")},
		{"LeafWithChildren", NewBuilder().Keyword("x").Keyword("x.y")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Build()
			assert.ErrorIs(t, err, ErrInvalidMapping)
		})
	}
}

func TestParse(t *testing.T) {
	m, err := Parse([]byte(`{"mappings": {"properties": {
		"title": {"type": "text"},
		"user": {"properties": {"name": {"type": "keyword"}}},
		"tags": {"type": "nested", "properties": {"label": {"type": "keyword"}, "score": {"type": "long"}}}
	}}}`))
	require.NoError(t, err)

	f, ok := m.Field("user.name")
	require.True(t, ok)
	assert.Equal(t, Keyword, f.Type)

	f, ok = m.Field("tags.score")
	require.True(t, ok)
	assert.Equal(t, "tags", f.Nested)
	assert.True(t, m.IsNested("tags"))
	assert.Equal(t, []string{"tags"}, m.NestedPaths())

	names := make([]string, 0)
	for _, f := range m.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"tags.label", "tags.score", "title", "user.name"}, names)
}

func TestNestedPathOf_Innermost(t *testing.T) {
	m, err := NewBuilder().Nested("a").Nested("a.b").Keyword("a.b.c").Keyword("a.d").Build()
	require.NoError(t, err)
	assert.Equal(t, "a.b", m.NestedPathOf("a.b.c"))
	assert.Equal(t, "a", m.NestedPathOf("a.d"))
	assert.Equal(t, "", m.NestedPathOf("ab.c"))
}

func TestField_EncodePoint(t *testing.T) {
	m := testMapping(t)

	age, _ := m.Field("age")
	enc, err := age.EncodePoint(metadata.String("42"))
	require.NoError(t, err)
	assert.Equal(t, point.EncodeLong(42), enc)

	enc, err = age.EncodePoint(metadata.Float(41.9))
	require.NoError(t, err)
	assert.Equal(t, point.EncodeLong(41), enc)

	level, _ := m.Field("level")
	_, err = level.EncodePoint(metadata.Int(200))
	assert.Error(t, err)

	created, _ := m.Field("created")
	enc, err = created.EncodePoint(metadata.String("1970-01-02"))
	require.NoError(t, err)
	assert.Equal(t, point.EncodeLong(86_400_000), enc)

	addr, _ := m.Field("addr")
	v4, err := addr.EncodePoint(metadata.String("10.0.0.1"))
	require.NoError(t, err)
	assert.Len(t, v4, point.IPWidth)

	status, _ := m.Field("status")
	_, err = status.EncodePoint(metadata.String("x"))
	assert.ErrorIs(t, err, ErrNotPointField)
}

func TestField_TermRange(t *testing.T) {
	m := testMapping(t)

	age, _ := m.Field("age")
	min, max, ok, err := age.TermRange(metadata.Int(7))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, min, max)

	_, _, ok, err = age.TermRange(metadata.Float(7.5))
	require.NoError(t, err)
	assert.False(t, ok)

	addr, _ := m.Field("addr")
	min, max, ok, err = addr.TermRange(metadata.String("192.168.0.0/16"))
	require.NoError(t, err)
	require.True(t, ok)
	inside, _ := addr.EncodePoint(metadata.String("192.168.44.1"))
	outside, _ := addr.EncodePoint(metadata.String("192.169.0.0"))
	assert.True(t, bytes.Compare(min, inside) <= 0 && bytes.Compare(inside, max) <= 0)
	assert.Positive(t, bytes.Compare(outside, max))
}

func TestField_EncodeRange_Integer(t *testing.T) {
	m := testMapping(t)
	age, _ := m.Field("age")

	tests := []struct {
		name     string
		from, to metadata.Value
		incL     bool
		incU     bool
		min, max int64
		ok       bool
	}{
		{"Inclusive", metadata.Int(10), metadata.Int(20), true, true, 10, 20, true},
		{"Exclusive", metadata.Int(10), metadata.Int(20), false, false, 11, 19, true},
		{"FractionalInclusive", metadata.Float(10.5), metadata.Float(19.5), true, true, 11, 19, true},
		{"FractionalExclusive", metadata.Float(10.5), metadata.Float(19.5), false, false, 11, 19, true},
		{"IntegralFloatExclusive", metadata.Float(10), metadata.Float(20), false, false, 11, 19, true},
		{"Empty", metadata.Int(5), metadata.Int(5), false, true, 0, 0, false},
		{"Inverted", metadata.Int(9), metadata.Int(3), true, true, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			min, max, ok, err := age.EncodeRange(tt.from, tt.to, tt.incL, tt.incU)
			require.NoError(t, err)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.min, point.DecodeLong(min))
				assert.Equal(t, tt.max, point.DecodeLong(max))
			}
		})
	}
}

func TestField_EncodeRange_OpenBounds(t *testing.T) {
	m := testMapping(t)

	level, _ := m.Field("level")
	min, max, ok, err := level.EncodeRange(metadata.Value{}, metadata.Int(1000), true, true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(-128), point.DecodeInt(min))
	assert.Equal(t, int32(127), point.DecodeInt(max))

	price, _ := m.Field("price")
	min, max, ok, err = price.EncodeRange(metadata.Float(1.5), metadata.Null(), false, true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, point.DecodeDouble(min), 1.5)
	assert.Equal(t, point.Max(point.DoubleWidth), max)

	_, _, ok, err = level.EncodeRange(metadata.Int(500), metadata.Value{}, true, true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestField_EncodeRange_Float32(t *testing.T) {
	m := testMapping(t)
	ratio, _ := m.Field("ratio")

	min, max, ok, err := ratio.EncodeRange(metadata.Float(0.1), metadata.Float(0.1), true, true)
	require.NoError(t, err)
	// float32(0.1) is above 0.1, so the inclusive range [0.1, 0.1] holds no float32.
	if float64(float32(0.1)) > 0.1 {
		assert.False(t, ok)
	} else {
		require.True(t, ok)
		assert.Equal(t, min, max)
	}
}

func TestField_Terms(t *testing.T) {
	m := testMapping(t)

	body, _ := m.Field("body")
	terms, err := body.IndexTerms(metadata.String("Quick brown fox"))
	require.NoError(t, err)
	assert.Equal(t, []string{"quick", "brown", "fox"}, terms)

	tv, err := body.TermValue(metadata.String("Quick"))
	require.NoError(t, err)
	assert.Equal(t, "Quick", tv)

	status, _ := m.Field("status")
	terms, err = status.IndexTerms(metadata.Int(5))
	require.NoError(t, err)
	assert.Equal(t, []string{"5"}, terms)

	active, _ := m.Field("active")
	tv, err = active.TermValue(metadata.String("true"))
	require.NoError(t, err)
	assert.Equal(t, "true", tv)
	_, err = active.TermValue(metadata.String("yes"))
	assert.Error(t, err)

	age, _ := m.Field("age")
	_, err = age.QueryTerms("1")
	assert.ErrorIs(t, err, ErrNotTermField)
}
