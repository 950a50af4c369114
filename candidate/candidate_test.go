package candidate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/percolate/internal/memindex"
	"github.com/hupe1980/percolate/internal/point"
	"github.com/hupe1980/percolate/internal/rangecodec"
	"github.com/hupe1980/percolate/mapping"
	"github.com/hupe1980/percolate/search"
)

var testFields = Fields{
	ExtractedTerms:     "query.extracted_terms",
	ExtractionResult:   "query.extraction_result",
	Range:              "query.range_field",
	MinimumShouldMatch: "query.minimum_should_match_field",
}

func extraction(terms, ranges int) Extraction {
	var e Extraction
	for i := 0; i < terms; i++ {
		e.Terms = append(e.Terms, JoinTerm("f", []byte(fmt.Sprint(i))))
	}
	for i := 0; i < ranges; i++ {
		e.Ranges = append(e.Ranges, Range{Field: fmt.Sprintf("r%d", i), Min: point.EncodeLong(1), Max: point.EncodeLong(2)})
	}
	return e
}

func TestJoinSplitTerm(t *testing.T) {
	b := JoinTerm("status", []byte("ok"))
	assert.Equal(t, []byte("status\x00ok"), b)

	field, term, ok := SplitTerm(b)
	require.True(t, ok)
	assert.Equal(t, "status", field)
	assert.Equal(t, []byte("ok"), term)

	_, _, ok = SplitTerm([]byte("nosep"))
	assert.False(t, ok)
}

func TestExtractTermsAndRanges(t *testing.T) {
	m, err := mapping.NewBuilder().Keyword("status").Long("age").Text("body").Build()
	require.NoError(t, err)

	ix, err := memindex.Build(m, [][]byte{
		[]byte(`{"status": "ok", "age": 7, "body": "Hi there"}`),
		[]byte(`{"age": 3}`),
	}, memindex.Options{})
	require.NoError(t, err)

	e := ExtractTermsAndRanges(ix)

	var terms []string
	for _, b := range e.Terms {
		terms = append(terms, string(b))
	}
	assert.Equal(t, []string{
		"_field_names\x00age",
		"_field_names\x00body",
		"_field_names\x00status",
		"body\x00hi",
		"body\x00there",
		"status\x00ok",
	}, terms)

	require.Len(t, e.Ranges, 1)
	assert.Equal(t, "age", e.Ranges[0].Field)
	assert.Equal(t, int64(3), point.DecodeLong(e.Ranges[0].Min))
	assert.Equal(t, int64(7), point.DecodeLong(e.Ranges[0].Max))
}

func TestBuilder_Mode(t *testing.T) {
	tests := []struct {
		name   string
		budget int
		terms  int
		ranges int
		want   Mode
	}{
		{"BelowBudget", 10, 7, 1, ModeCovering},
		{"AtBudget", 10, 8, 1, ModeCovering},
		{"AboveBudget", 10, 9, 1, ModeTermInSet},
		{"Empty", 1, 0, 0, ModeCovering},
		{"DefaultBudget", 0, DefaultMaxClauseCount - 1, 0, ModeCovering},
		{"DefaultBudgetExceeded", 0, DefaultMaxClauseCount, 0, ModeTermInSet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Builder{Fields: testFields, MaxClauseCount: tt.budget}
			e := extraction(tt.terms, tt.ranges)
			assert.Equal(t, tt.want, b.Mode(e))
			_, mode := b.Build(e)
			assert.Equal(t, tt.want, mode)
		})
	}
}

func TestBuilder_Build(t *testing.T) {
	failed := &search.TermQuery{Field: testFields.ExtractionResult, Term: []byte(ExtractionFailed)}

	t.Run("Covering", func(t *testing.T) {
		e := extraction(2, 1)
		q, mode := Builder{Fields: testFields, MaxClauseCount: 4}.Build(e)
		require.Equal(t, ModeCovering, mode)

		bq, ok := q.(*search.BooleanQuery)
		require.True(t, ok)
		require.Len(t, bq.Should, 2)
		assert.Equal(t, failed, bq.Should[1])

		cq, ok := bq.Should[0].(*search.CoveringQuery)
		require.True(t, ok)
		assert.Equal(t, testFields.MinimumShouldMatch, cq.MinimumShouldMatchField)
		require.Len(t, cq.Queries, 3)

		rq, ok := cq.Queries[0].(*search.BinaryRangeQuery)
		require.True(t, ok)
		assert.Equal(t, testFields.Range, rq.Field)
		assert.Equal(t, rangecodec.Encode("r0", point.EncodeLong(1), point.EncodeLong(2)), rq.Encoded)
		assert.Equal(t, &search.TermQuery{Field: testFields.ExtractedTerms, Term: e.Terms[0]}, cq.Queries[1])
	})

	t.Run("TermInSet", func(t *testing.T) {
		e := extraction(2, 1)
		q, mode := Builder{Fields: testFields, MaxClauseCount: 3}.Build(e)
		require.Equal(t, ModeTermInSet, mode)

		bq, ok := q.(*search.BooleanQuery)
		require.True(t, ok)
		require.Len(t, bq.Should, 3)
		assert.Equal(t, &search.TermInSetQuery{Field: testFields.ExtractedTerms, Terms: e.Terms}, bq.Should[0])
		assert.IsType(t, &search.BinaryRangeQuery{}, bq.Should[1])
		assert.Equal(t, failed, bq.Should[2])
	})
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "covering", ModeCovering.String())
	assert.Equal(t, "term_in_set", ModeTermInSet.String())
	assert.Equal(t, "unknown", Mode(0).String())
}
