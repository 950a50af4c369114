package extract

import (
	"errors"
	"fmt"

	"github.com/hupe1980/percolate/mapping"
	"github.com/hupe1980/percolate/metadata"
	"github.com/hupe1980/percolate/query"
)

// ErrNotNested is returned for a nested query whose path is not a nested object.
var ErrNotNested = errors.New("path is not a nested object")

// Analyzer derives extractions from queries. It is safe for concurrent use.
type Analyzer struct {
	mapping        *mapping.Mapping
	unmappedAsText bool
}

// NewAnalyzer creates an analyzer that resolves query fields against m. With
// unmappedAsText, fields missing from m are treated as text fields instead of
// failing the analysis.
func NewAnalyzer(m *mapping.Mapping, unmappedAsText bool) *Analyzer {
	return &Analyzer{mapping: m, unmappedAsText: unmappedAsText}
}

// Analyze returns the extraction verdict for q. Errors report queries that cannot be
// stored at all, such as references to unmapped fields or malformed values. A query
// that merely cannot be analyzed yields an Unknown result, not an error.
func (a *Analyzer) Analyze(q query.Query) (Result, error) {
	return a.analyze(q)
}

func (a *Analyzer) field(name string) (mapping.Field, error) {
	return a.mapping.Resolve(name, a.unmappedAsText)
}

func (a *Analyzer) analyze(q query.Query) (Result, error) {
	switch q := q.(type) {
	case *query.MatchAll:
		return matchAll(true), nil
	case *query.MatchNone:
		return matchNone(), nil
	case *query.Term:
		return a.term(q.Field, q.Value)
	case *query.Terms:
		return a.terms(q)
	case *query.Match:
		return a.match(q)
	case *query.MatchPhrase:
		return a.matchPhrase(q)
	case *query.Range:
		return a.rangeQuery(q)
	case *query.Exists:
		return single(TermExtraction(mapping.FieldNamesField, []byte(q.Field)), true), nil
	case *query.Prefix:
		if _, err := a.field(q.Field); err != nil {
			return Result{}, err
		}
		return unknown(), nil
	case *query.Wildcard:
		if _, err := a.field(q.Field); err != nil {
			return Result{}, err
		}
		return unknown(), nil
	case *query.Bool:
		return a.boolQuery(q)
	case *query.ConstantScore:
		return a.analyze(q.Filter)
	case *query.FunctionScore:
		return a.functionScore(q)
	case *query.Boosting:
		// The negative clause only demotes; it never removes matches.
		if _, err := a.analyze(q.Negative); err != nil {
			return Result{}, err
		}
		return a.analyze(q.Positive)
	case *query.DisMax:
		parts, err := a.analyzeAll(q.Queries)
		if err != nil {
			return Result{}, err
		}
		return disjunction(parts, 1), nil
	case *query.Nested:
		if !a.mapping.IsNested(q.Path) {
			return Result{}, fmt.Errorf("%w: [%s]", ErrNotNested, q.Path)
		}
		r, err := a.analyze(q.Query)
		if err != nil {
			return Result{}, err
		}
		// Extractions of different nested objects end up in one candidate.
		r.Verified = false
		return r, nil
	case *query.Script:
		return unknown(), nil
	case *query.HasChild, *query.HasParent:
		return Result{}, fmt.Errorf("%w: [%s]", query.ErrJoinQuery, q.Name())
	case *query.Unknown:
		return unknown(), nil
	default:
		return unknown(), nil
	}
}

func (a *Analyzer) analyzeAll(qs []query.Query) ([]Result, error) {
	out := make([]Result, 0, len(qs))
	for _, q := range qs {
		r, err := a.analyze(q)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (a *Analyzer) term(name string, v metadata.Value) (Result, error) {
	f, err := a.field(name)
	if err != nil {
		return Result{}, err
	}

	if f.IsPoint() {
		min, max, ok, err := f.TermRange(v)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return matchNone(), nil
		}
		// A multi-valued field presents its whole [min, max] hull to the candidate
		// query, so point matches are never exact.
		return single(RangeExtraction(f.Name, min, max), false), nil
	}

	t, err := f.TermValue(v)
	if err != nil {
		return Result{}, err
	}
	return single(TermExtraction(f.Name, []byte(t)), true), nil
}

func (a *Analyzer) terms(q *query.Terms) (Result, error) {
	if q.Lookup != nil {
		return Result{}, fmt.Errorf("%w: terms lookup on [%s] was not rewritten", query.ErrUnresolvedLookup, q.Field)
	}
	if len(q.Values) == 0 {
		if _, err := a.field(q.Field); err != nil {
			return Result{}, err
		}
		return matchNone(), nil
	}
	parts := make([]Result, 0, len(q.Values))
	for _, v := range q.Values {
		r, err := a.term(q.Field, v)
		if err != nil {
			return Result{}, err
		}
		parts = append(parts, r)
	}
	return disjunction(parts, 1), nil
}

func (a *Analyzer) match(q *query.Match) (Result, error) {
	f, err := a.field(q.Field)
	if err != nil {
		return Result{}, err
	}
	if f.IsPoint() {
		return a.term(q.Field, metadata.String(q.Query))
	}

	tokens, err := f.QueryTerms(q.Query)
	if err != nil {
		return Result{}, err
	}
	if len(tokens) == 0 {
		return matchNone(), nil
	}

	parts := make([]Result, len(tokens))
	for i, t := range tokens {
		parts[i] = single(TermExtraction(f.Name, []byte(t)), true)
	}
	if q.Operator == query.OperatorAnd {
		return conjunction(parts), nil
	}
	required, err := q.RequiredTerms(len(tokens))
	if err != nil {
		return Result{}, err
	}
	return disjunction(parts, required), nil
}

func (a *Analyzer) matchPhrase(q *query.MatchPhrase) (Result, error) {
	f, err := a.field(q.Field)
	if err != nil {
		return Result{}, err
	}
	if f.IsPoint() {
		return a.term(q.Field, metadata.String(q.Query))
	}

	tokens, err := f.QueryTerms(q.Query)
	if err != nil {
		return Result{}, err
	}
	switch len(tokens) {
	case 0:
		return matchNone(), nil
	case 1:
		return single(TermExtraction(f.Name, []byte(tokens[0])), true), nil
	}

	parts := make([]Result, len(tokens))
	for i, t := range tokens {
		parts[i] = single(TermExtraction(f.Name, []byte(t)), true)
	}
	// All terms are needed, but their positions are not checked by candidates.
	r := conjunction(parts)
	r.Verified = false
	return r, nil
}

func (a *Analyzer) rangeQuery(q *query.Range) (Result, error) {
	f, err := a.field(q.Field)
	if err != nil {
		return Result{}, err
	}
	if !f.IsPoint() {
		return unknown(), nil
	}
	min, max, ok, err := f.EncodeRange(q.From, q.To, q.IncludeLower, q.IncludeUpper)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return matchNone(), nil
	}
	return single(RangeExtraction(f.Name, min, max), false), nil
}

func (a *Analyzer) functionScore(q *query.FunctionScore) (Result, error) {
	r, err := a.analyze(q.Query)
	if err != nil {
		return Result{}, err
	}
	if q.MinScore == nil {
		return r, nil
	}
	// With min_score, scoring decides matching. Script scores are opaque.
	if q.HasScriptScore() {
		return unknown(), nil
	}
	r.Verified = false
	return r, nil
}

func (a *Analyzer) boolQuery(q *query.Bool) (Result, error) {
	requiredShould, err := q.RequiredShould()
	if err != nil {
		return Result{}, err
	}

	required := make([]query.Query, 0, len(q.Must)+len(q.Filter))
	required = append(required, q.Must...)
	required = append(required, q.Filter...)

	parts, err := a.analyzeAll(required)
	if err != nil {
		return Result{}, err
	}
	should, err := a.analyzeAll(q.Should)
	if err != nil {
		return Result{}, err
	}
	// Negated clauses contribute no extractions but must still be storable.
	negated, err := a.analyzeAll(q.MustNot)
	if err != nil {
		return Result{}, err
	}
	// An unanalyzable clause anywhere fails the whole bool, even one that only scores.
	if anyUnknown(parts) || anyUnknown(should) || anyUnknown(negated) {
		return unknown(), nil
	}

	// Should clauses only restrict matching when required, or when nothing else is.
	if len(should) > 0 && (len(parts) == 0 || requiredShould > 0) {
		parts = append(parts, disjunction(should, requiredShould))
	}

	var r Result
	if len(parts) == 0 {
		r = matchAll(true)
	} else {
		r = conjunction(parts)
	}
	if len(q.MustNot) > 0 {
		r.Verified = false
	}
	return r, nil
}
