package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/percolate/internal/point"
	"github.com/hupe1980/percolate/internal/rangecodec"
	"github.com/hupe1980/percolate/search"
)

func rangeOf(field string, lo, hi int64) []byte {
	return rangecodec.Encode(field, point.EncodeLong(lo), point.EncodeLong(hi))
}

func ids(t *testing.T, ix *Index, q search.Query) []string {
	t.Helper()
	bm, err := ix.Search(q)
	require.NoError(t, err)
	var out []string
	it := bm.Iterator()
	for it.HasNext() {
		id, ok := ix.ExternalID(it.Next())
		require.True(t, ok)
		out = append(out, id)
	}
	return out
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix := New()
	require.NoError(t, ix.Put("a", &Document{
		Keywords:   map[string][][]byte{"terms": {[]byte("status\x00open"), []byte("tag\x00x")}},
		DocValues:  map[string]int64{"msm": 2},
		Stored:     map[string][]byte{"blob": []byte("A")},
		FieldNames: []string{"query"},
	}))
	require.NoError(t, ix.Put("b", &Document{
		Keywords:  map[string][][]byte{"terms": {[]byte("status\x00open")}},
		Ranges:    map[string][][]byte{"ranges": {rangeOf("age", 10, 20)}},
		DocValues: map[string]int64{"msm": 1},
	}))
	require.NoError(t, ix.Put("c", &Document{
		Keywords:  map[string][][]byte{"result": {[]byte("failed")}},
		DocValues: map[string]int64{"msm": 0},
	}))
	return ix
}

func TestIndex_TermQueries(t *testing.T) {
	ix := newTestIndex(t)

	assert.ElementsMatch(t, []string{"a", "b"}, ids(t, ix, &search.TermQuery{Field: "terms", Term: []byte("status\x00open")}))
	assert.Empty(t, ids(t, ix, &search.TermQuery{Field: "terms", Term: []byte("missing")}))
	assert.Empty(t, ids(t, ix, &search.TermInSetQuery{Field: "terms"}))
	assert.ElementsMatch(t, []string{"a"}, ids(t, ix, &search.TermQuery{Field: FieldNamesField, Term: []byte("query")}))
}

func TestIndex_TermInSet(t *testing.T) {
	ix := newTestIndex(t)
	assert.ElementsMatch(t, []string{"a"}, ids(t, ix, &search.TermInSetQuery{
		Field: "terms", Terms: [][]byte{[]byte("tag\x00x"), []byte("nope")},
	}))
}

func TestIndex_RangeQuery(t *testing.T) {
	ix := newTestIndex(t)

	assert.Equal(t, []string{"b"}, ids(t, ix, &search.BinaryRangeQuery{Field: "ranges", Encoded: rangeOf("age", 15, 15)}))
	assert.Empty(t, ids(t, ix, &search.BinaryRangeQuery{Field: "ranges", Encoded: rangeOf("age", 21, 30)}))
	assert.Empty(t, ids(t, ix, &search.BinaryRangeQuery{Field: "ranges", Encoded: rangeOf("other", 15, 15)}))

	_, err := ix.Search(&search.BinaryRangeQuery{Field: "ranges", Encoded: []byte{1}})
	assert.Error(t, err)
}

func TestIndex_CoveringQuery(t *testing.T) {
	ix := newTestIndex(t)

	open := &search.TermQuery{Field: "terms", Term: []byte("status\x00open")}
	tag := &search.TermQuery{Field: "terms", Term: []byte("tag\x00x")}
	failed := &search.TermQuery{Field: "result", Term: []byte("failed")}

	// a needs 2 matching clauses, b needs 1, c has msm 0 which counts as 1.
	q := &search.CoveringQuery{Queries: []search.Query{open}, MinimumShouldMatchField: "msm"}
	assert.Equal(t, []string{"b"}, ids(t, ix, q))

	q = &search.CoveringQuery{Queries: []search.Query{open, tag, failed}, MinimumShouldMatchField: "msm"}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids(t, ix, q))

	q = &search.CoveringQuery{Queries: []search.Query{open, tag}, MinimumShouldMatchField: "missing"}
	assert.Empty(t, ids(t, ix, q))
}

func TestIndex_BooleanAndMatchNone(t *testing.T) {
	ix := newTestIndex(t)

	q := &search.BooleanQuery{Should: []search.Query{
		&search.TermQuery{Field: "result", Term: []byte("failed")},
		&search.BinaryRangeQuery{Field: "ranges", Encoded: rangeOf("age", 0, 100)},
	}}
	assert.ElementsMatch(t, []string{"b", "c"}, ids(t, ix, q))
	assert.Empty(t, ids(t, ix, &search.MatchNoDocsQuery{Reason: "test"}))
}

func TestIndex_PutReplaceDelete(t *testing.T) {
	ix := newTestIndex(t)
	require.Equal(t, 3, ix.Len())

	require.NoError(t, ix.Put("a", &Document{Keywords: map[string][][]byte{"terms": {[]byte("new")}}}))
	assert.Equal(t, 3, ix.Len())
	assert.Equal(t, []string{"b"}, ids(t, ix, &search.TermQuery{Field: "terms", Term: []byte("status\x00open")}))
	assert.Equal(t, []string{"a"}, ids(t, ix, &search.TermQuery{Field: "terms", Term: []byte("new")}))

	require.NoError(t, ix.Delete("b"))
	assert.ErrorIs(t, ix.Delete("b"), ErrNotFound)
	assert.Empty(t, ids(t, ix, &search.BinaryRangeQuery{Field: "ranges", Encoded: rangeOf("age", 15, 15)}))
	assert.Equal(t, []string{"a", "c"}, ix.IDs())

	_, ok := ix.Get("b")
	assert.False(t, ok)
	doc, ok := ix.Get("a")
	require.True(t, ok)
	assert.Nil(t, doc.Stored)
}

func TestIndex_Stored(t *testing.T) {
	ix := newTestIndex(t)
	bm, err := ix.Search(&search.TermQuery{Field: FieldNamesField, Term: []byte("query")})
	require.NoError(t, err)
	require.Equal(t, uint64(1), bm.GetCardinality())

	v, ok := ix.Stored(bm.Minimum(), "blob")
	require.True(t, ok)
	assert.Equal(t, []byte("A"), v)

	_, ok = ix.Stored(bm.Minimum(), "nope")
	assert.False(t, ok)
}

func TestIndex_PutRejectsBadRange(t *testing.T) {
	ix := New()
	err := ix.Put("x", &Document{Ranges: map[string][][]byte{"r": {[]byte("short")}}})
	assert.Error(t, err)
	assert.Equal(t, 0, ix.Len())
}
