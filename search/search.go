// Package search defines the queries the percolator runs against its stored-query
// index: the candidate query built from the documents being percolated, and the
// shortcut query selecting verified matches.
//
// Query is a closed sum type; the index evaluates each variant directly.
package search

import (
	"strconv"
	"strings"
)

// Query is a query against the stored-query index.
type Query interface {
	searchQuery()
	String() string
}

// TermQuery matches documents holding Term in the keyword field Field.
type TermQuery struct {
	Field string
	Term  []byte
}

// TermInSetQuery matches documents holding any of Terms in Field.
type TermInSetQuery struct {
	Field string
	Terms [][]byte
}

// BinaryRangeQuery matches documents with an encoded range in Field that
// intersects Encoded.
type BinaryRangeQuery struct {
	Field   string
	Encoded []byte
}

// CoveringQuery matches documents for which at least max(1, v) of Queries match,
// where v is the document's value in the numeric doc-values field
// MinimumShouldMatchField. Documents without a value never match.
type CoveringQuery struct {
	Queries                 []Query
	MinimumShouldMatchField string
}

// BooleanQuery matches documents matching any of Should.
type BooleanQuery struct {
	Should []Query
}

// MatchNoDocsQuery matches nothing. Reason explains why.
type MatchNoDocsQuery struct {
	Reason string
}

func (*TermQuery) searchQuery()        {}
func (*TermInSetQuery) searchQuery()   {}
func (*BinaryRangeQuery) searchQuery() {}
func (*CoveringQuery) searchQuery()    {}
func (*BooleanQuery) searchQuery()     {}
func (*MatchNoDocsQuery) searchQuery() {}

func quote(b []byte) string {
	s := strconv.Quote(string(b))
	return s[1 : len(s)-1]
}

func (q *TermQuery) String() string {
	return q.Field + ":" + quote(q.Term)
}

func (q *TermInSetQuery) String() string {
	parts := make([]string, len(q.Terms))
	for i, t := range q.Terms {
		parts[i] = quote(t)
	}
	return q.Field + ":(" + strings.Join(parts, " ") + ")"
}

func (q *BinaryRangeQuery) String() string {
	return q.Field + ":<intersects " + strconv.Itoa(len(q.Encoded)) + " bytes>"
}

func (q *CoveringQuery) String() string {
	parts := make([]string, len(q.Queries))
	for i, sub := range q.Queries {
		parts[i] = sub.String()
	}
	return "CoveringQuery(queries=[" + strings.Join(parts, ", ") + "], minimumShouldMatch=" + q.MinimumShouldMatchField + ")"
}

func (q *BooleanQuery) String() string {
	parts := make([]string, len(q.Should))
	for i, sub := range q.Should {
		parts[i] = sub.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func (q *MatchNoDocsQuery) String() string {
	return "MatchNoDocsQuery(\"" + q.Reason + "\")"
}
