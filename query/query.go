package query

import "github.com/hupe1980/percolate/metadata"

// Query is a node of a stored query.
type Query interface {
	query()
	// Name returns the DSL name of the query, e.g. "term" or "bool".
	Name() string
}

// Operator combines the analyzed terms of a match query.
type Operator string

const (
	OperatorOr  Operator = "or"
	OperatorAnd Operator = "and"
)

// MatchAll matches every document.
type MatchAll struct{}

// MatchNone matches no document.
type MatchNone struct{}

// Term matches documents whose field contains the exact, unanalyzed value.
type Term struct {
	Field string
	Value metadata.Value
}

// TermsLookup references terms stored in another document. It is resolved by Rewrite.
type TermsLookup struct {
	Index string
	ID    string
	Path  string
}

// Terms matches documents whose field contains any of the values.
// Either Values or Lookup is set.
type Terms struct {
	Field  string
	Values []metadata.Value
	Lookup *TermsLookup
}

// Match analyzes Query with the field's analysis and matches the resulting terms.
type Match struct {
	Field    string
	Query    string
	Operator Operator
	// MinimumShouldMatch applies to OperatorOr, in bool syntax ("2", "75%").
	MinimumShouldMatch string
}

// MatchPhrase matches the analyzed terms of Query at consecutive positions.
type MatchPhrase struct {
	Field string
	Query string
}

// Range matches point values between From and To. A zero Value is an open bound.
type Range struct {
	Field        string
	From         metadata.Value
	To           metadata.Value
	IncludeLower bool
	IncludeUpper bool
}

// Exists matches documents that have at least one value for Field.
type Exists struct {
	Field string
}

// Prefix matches terms starting with Value.
type Prefix struct {
	Field string
	Value string
}

// Wildcard matches terms against a pattern with * and ? wildcards.
type Wildcard struct {
	Field string
	Value string
}

// Bool combines clauses.
type Bool struct {
	Must    []Query
	Filter  []Query
	Should  []Query
	MustNot []Query
	// MinimumShouldMatch is an integer or percentage, possibly negative. Empty means unset.
	MinimumShouldMatch string
}

// ConstantScore wraps a filter.
type ConstantScore struct {
	Filter Query
}

// ScoreFunction is one scoring function of a function_score query.
type ScoreFunction struct {
	// Kind is the function name, e.g. "script_score", "weight", "field_value_factor".
	Kind string
	// Body is the function definition as decoded from JSON, including any filter.
	Body map[string]any
}

// FunctionScore rescores Query. With MinScore set, documents scoring below it are
// dropped, so scoring affects matching.
type FunctionScore struct {
	Query     Query
	Functions []ScoreFunction
	MinScore  *float64
}

// Boosting matches Positive and demotes documents matching Negative.
type Boosting struct {
	Positive      Query
	Negative      Query
	NegativeBoost float64
}

// DisMax matches documents matching any of Queries.
type DisMax struct {
	Queries    []Query
	TieBreaker float64
}

// Nested matches root documents having a nested object at Path that matches Query.
type Nested struct {
	Path      string
	Query     Query
	ScoreMode string
}

// Script matches documents for which the script returns true.
type Script struct {
	Source string
	Lang   string
	Params map[string]any
}

// HasChild is a parent/child join clause. Stored queries may not contain it.
type HasChild struct {
	Type  string
	Query Query
}

// HasParent is a parent/child join clause. Stored queries may not contain it.
type HasParent struct {
	ParentType string
	Query      Query
}

// Unknown is a query whose name is not recognized. Body is kept verbatim.
type Unknown struct {
	Kind string
	Body any
}

func (*MatchAll) query()      {}
func (*MatchNone) query()     {}
func (*Term) query()          {}
func (*Terms) query()         {}
func (*Match) query()         {}
func (*MatchPhrase) query()   {}
func (*Range) query()         {}
func (*Exists) query()        {}
func (*Prefix) query()        {}
func (*Wildcard) query()      {}
func (*Bool) query()          {}
func (*ConstantScore) query() {}
func (*FunctionScore) query() {}
func (*Boosting) query()      {}
func (*DisMax) query()        {}
func (*Nested) query()        {}
func (*Script) query()        {}
func (*HasChild) query()      {}
func (*HasParent) query()     {}
func (*Unknown) query()       {}

func (*MatchAll) Name() string      { return "match_all" }
func (*MatchNone) Name() string     { return "match_none" }
func (*Term) Name() string          { return "term" }
func (*Terms) Name() string         { return "terms" }
func (*Match) Name() string         { return "match" }
func (*MatchPhrase) Name() string   { return "match_phrase" }
func (*Range) Name() string         { return "range" }
func (*Exists) Name() string        { return "exists" }
func (*Prefix) Name() string        { return "prefix" }
func (*Wildcard) Name() string      { return "wildcard" }
func (*Bool) Name() string          { return "bool" }
func (*ConstantScore) Name() string { return "constant_score" }
func (*FunctionScore) Name() string { return "function_score" }
func (*Boosting) Name() string      { return "boosting" }
func (*DisMax) Name() string        { return "dis_max" }
func (*Nested) Name() string        { return "nested" }
func (*Script) Name() string        { return "script" }
func (*HasChild) Name() string      { return "has_child" }
func (*HasParent) Name() string     { return "has_parent" }
func (u *Unknown) Name() string     { return u.Kind }

// HasScriptScore reports whether any function is a script_score function.
func (q *FunctionScore) HasScriptScore() bool {
	for _, f := range q.Functions {
		if f.Kind == "script_score" {
			return true
		}
	}
	return false
}

// RequiredShould returns how many should clauses must match, following the
// minimum_should_match rules of bool queries. When the bool has no required clauses
// and MinimumShouldMatch is unset, at least one should clause must match. The result
// may exceed len(Should), in which case the bool matches nothing.
func (q *Bool) RequiredShould() (int, error) {
	n, err := ResolveMinimumShouldMatch(q.MinimumShouldMatch, len(q.Should))
	if err != nil {
		return 0, err
	}
	if n == 0 && len(q.Must) == 0 && len(q.Filter) == 0 && len(q.Should) > 0 {
		return 1, nil
	}
	return n, nil
}

// RequiredTerms returns how many of n analyzed terms must match.
func (q *Match) RequiredTerms(n int) (int, error) {
	if q.Operator == OperatorAnd {
		return n, nil
	}
	m, err := ResolveMinimumShouldMatch(q.MinimumShouldMatch, n)
	if err != nil {
		return 0, err
	}
	if m < 1 && n > 0 {
		return 1, nil
	}
	return m, nil
}
