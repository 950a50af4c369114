package extract

import (
	"bytes"
	"fmt"
	"strconv"
)

// Extraction is a term or a range a document needs for a query to match.
type Extraction struct {
	Field string
	// Term is set for term extractions.
	Term []byte
	// Min and Max are set for range extractions. Both are point-encoded and of equal width.
	Min, Max []byte
}

// TermExtraction returns a term extraction.
func TermExtraction(field string, term []byte) Extraction {
	return Extraction{Field: field, Term: term}
}

// RangeExtraction returns a range extraction.
func RangeExtraction(field string, min, max []byte) Extraction {
	return Extraction{Field: field, Min: min, Max: max}
}

// IsRange reports whether e is a range extraction.
func (e Extraction) IsRange() bool { return e.Min != nil }

// unit identifies what e counts as when matched by a candidate query.
func (e Extraction) unit() string {
	if e.IsRange() {
		return "r" + e.Field
	}
	return "t" + e.Field + "\x00" + string(e.Term)
}

// key identifies e exactly.
func (e Extraction) key() string {
	if e.IsRange() {
		return "r" + e.Field + "\x00" + string(e.Min) + string(e.Max)
	}
	return e.unit()
}

// Equal reports whether e and o are the same extraction.
func (e Extraction) Equal(o Extraction) bool {
	return e.Field == o.Field && bytes.Equal(e.Term, o.Term) && bytes.Equal(e.Min, o.Min) && bytes.Equal(e.Max, o.Max)
}

func (e Extraction) String() string {
	if e.IsRange() {
		return fmt.Sprintf("%s:[%x TO %x]", e.Field, e.Min, e.Max)
	}
	return e.Field + ":" + strconv.Quote(string(e.Term))
}

// Result is the verdict of analyzing one query.
type Result struct {
	// Unknown means no sound extraction exists; the query must always be a candidate.
	Unknown bool
	// MatchAll means the query may match any document.
	MatchAll bool
	// Verified means the extractions decide matching exactly: a single document
	// matches iff at least MinimumShouldMatch extraction units are present in it.
	// With MatchAll it means the query matches every document.
	Verified bool
	// MinimumShouldMatch is a lower bound on the extraction units a matching
	// document contains.
	MinimumShouldMatch int
	// Extractions are unique.
	Extractions []Extraction
}

// IsMatchNone reports whether the query provably matches no document.
func (r Result) IsMatchNone() bool {
	return !r.Unknown && !r.MatchAll && len(r.Extractions) == 0
}

func (r Result) units() map[string]struct{} {
	out := make(map[string]struct{}, len(r.Extractions))
	for _, e := range r.Extractions {
		out[e.unit()] = struct{}{}
	}
	return out
}

func unknown() Result { return Result{Unknown: true} }

func matchAll(verified bool) Result { return Result{MatchAll: true, Verified: verified} }

func matchNone() Result { return Result{Verified: true} }

func single(e Extraction, verified bool) Result {
	return Result{Verified: verified, MinimumShouldMatch: 1, Extractions: []Extraction{e}}
}
