package metadata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny(t *testing.T) {
	tests := []struct {
		name     string
		in       any
		expected Value
	}{
		{"Nil", nil, Null()},
		{"Bool", true, Bool(true)},
		{"String", "x", String("x")},
		{"Int", 7, Int(7)},
		{"Float", 1.5, Float(1.5)},
		{"NumberInt", json.Number("42"), Int(42)},
		{"NumberFloat", json.Number("4.2"), Float(4.2)},
		{"NumberExponent", json.Number("1e3"), Float(1000)},
		{"NumberHuge", json.Number("18446744073709551616"), Float(18446744073709551616)},
		{"Array", []any{"a", json.Number("1")}, Array([]Value{String("a"), Int(1)})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromAny(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected.Key(), v.Key())
		})
	}
}

func TestFromAny_Unsupported(t *testing.T) {
	_, err := FromAny(struct{}{})
	assert.Error(t, err)

	_, err = FromAny(uint64(1 << 63))
	assert.Error(t, err)
}

func TestValue_Text(t *testing.T) {
	assert.Equal(t, "abc", String("abc").Text())
	assert.Equal(t, "-3", Int(-3).Text())
	assert.Equal(t, "2.5", Float(2.5).Text())
	assert.Equal(t, "true", Bool(true).Text())
	assert.Equal(t, "", Null().Text())
}

func TestValue_Flatten(t *testing.T) {
	v := Array([]Value{Int(1), Null(), Array([]Value{String("a"), Bool(false)})})
	flat := v.Flatten(nil)
	require.Len(t, flat, 3)
	assert.Equal(t, "i:1", flat[0].Key())
	assert.Equal(t, "s:a", flat[1].Key())
	assert.Equal(t, "b:0", flat[2].Key())
}

func TestValue_Any(t *testing.T) {
	v := Array([]Value{Int(1), String("x"), Null()})
	assert.Equal(t, []any{int64(1), "x", nil}, v.Any())
}

func TestDocument_Clone(t *testing.T) {
	doc := Document{}
	doc.Add("tags", String("a"), Array([]Value{Int(1)}))

	clone := doc.Clone()
	clone["tags"][1].A[0] = Int(2)
	clone.Add("other", Bool(true))

	assert.Equal(t, "a:i:1", doc["tags"][1].Key())
	assert.NotContains(t, doc, "other")
	assert.ElementsMatch(t, []string{"tags", "other"}, clone.Fields())
}
