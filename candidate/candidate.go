// Package candidate builds the query that selects, from the stored-query index, every
// stored query that might match a batch of percolated documents.
//
// The builder never drops a stored query that matches: queries whose extraction
// failed are always selected, and the covering mode only requires as many
// extractions as the stored query itself declared necessary.
package candidate

import (
	"bytes"
	"sort"

	"github.com/hupe1980/percolate/internal/rangecodec"
	"github.com/hupe1980/percolate/search"
)

// DefaultMaxClauseCount is the default clause budget of a candidate query.
const DefaultMaxClauseCount = 1024

// FieldValueSeparator joins a field name and a term into one extracted term.
const FieldValueSeparator byte = 0

// ExtractionFailed is the extraction-result tag of stored queries without a usable
// extraction.
const ExtractionFailed = "failed"

// Mode tells how the candidate query was built.
type Mode int

const (
	// ModeTermInSet ORs every extracted term and range. Per-query minimum-should-match
	// counts are ignored, so no candidate is a verified match.
	ModeTermInSet Mode = iota + 1
	// ModeCovering requires each stored query's own minimum-should-match count of
	// extractions to be present.
	ModeCovering
)

func (m Mode) String() string {
	switch m {
	case ModeTermInSet:
		return "term_in_set"
	case ModeCovering:
		return "covering"
	default:
		return "unknown"
	}
}

// Source enumerates the terms and points of the percolated documents.
type Source interface {
	TermFields() []string
	IterTerms(field string, fn func(term []byte) bool)
	PointFields() []string
	PointRange(field string) (min, max []byte, ok bool)
}

// Range is the [Min, Max] hull of one field's encoded points.
type Range struct {
	Field    string
	Min, Max []byte
}

// Extraction holds the terms and ranges present in the percolated documents. It
// has no verification semantics.
type Extraction struct {
	// Terms are encoded as field, FieldValueSeparator, term.
	Terms  [][]byte
	Ranges []Range
}

// JoinTerm encodes field and term the way extracted terms are stored.
func JoinTerm(field string, term []byte) []byte {
	b := make([]byte, 0, len(field)+1+len(term))
	b = append(b, field...)
	b = append(b, FieldValueSeparator)
	return append(b, term...)
}

// SplitTerm is the inverse of JoinTerm.
func SplitTerm(b []byte) (field string, term []byte, ok bool) {
	i := bytes.IndexByte(b, FieldValueSeparator)
	if i < 0 {
		return "", nil, false
	}
	return string(b[:i]), b[i+1:], true
}

// ExtractTermsAndRanges enumerates every term of every field and the point hull of
// every point field in src.
func ExtractTermsAndRanges(src Source) Extraction {
	var e Extraction
	for _, field := range src.TermFields() {
		src.IterTerms(field, func(term []byte) bool {
			e.Terms = append(e.Terms, JoinTerm(field, term))
			return true
		})
	}
	for _, field := range src.PointFields() {
		min, max, ok := src.PointRange(field)
		if !ok {
			continue
		}
		e.Ranges = append(e.Ranges, Range{Field: field, Min: min, Max: max})
	}
	sort.Slice(e.Ranges, func(i, j int) bool { return e.Ranges[i].Field < e.Ranges[j].Field })
	return e
}

// Fields names the stored-query index fields a candidate query targets.
type Fields struct {
	ExtractedTerms     string
	ExtractionResult   string
	Range              string
	MinimumShouldMatch string
}

// Builder builds candidate queries. MaxClauseCount is the clause budget; zero means
// DefaultMaxClauseCount.
type Builder struct {
	Fields         Fields
	MaxClauseCount int
}

// Mode returns the mode Build uses for e. One clause is reserved for the catch-all
// selecting failed extractions.
func (b Builder) Mode(e Extraction) Mode {
	budget := b.MaxClauseCount
	if budget <= 0 {
		budget = DefaultMaxClauseCount
	}
	if 1+len(e.Terms)+len(e.Ranges) <= budget {
		return ModeCovering
	}
	return ModeTermInSet
}

// Build returns the candidate query for e and the mode it was built in.
func (b Builder) Build(e Extraction) (search.Query, Mode) {
	mode := b.Mode(e)

	ranges := make([]search.Query, 0, len(e.Ranges))
	for _, r := range e.Ranges {
		ranges = append(ranges, &search.BinaryRangeQuery{
			Field:   b.Fields.Range,
			Encoded: rangecodec.Encode(r.Field, r.Min, r.Max),
		})
	}

	var should []search.Query
	if mode == ModeCovering {
		sub := ranges
		for _, t := range e.Terms {
			sub = append(sub, &search.TermQuery{Field: b.Fields.ExtractedTerms, Term: t})
		}
		should = append(should, &search.CoveringQuery{
			Queries:                 sub,
			MinimumShouldMatchField: b.Fields.MinimumShouldMatch,
		})
	} else {
		should = append(should, &search.TermInSetQuery{Field: b.Fields.ExtractedTerms, Terms: e.Terms})
		should = append(should, ranges...)
	}

	// Stored queries without extractions hold no terms and must always be selected.
	should = append(should, &search.TermQuery{
		Field: b.Fields.ExtractionResult,
		Term:  []byte(ExtractionFailed),
	})
	return &search.BooleanQuery{Should: should}, mode
}
