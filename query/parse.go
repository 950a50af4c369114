package query

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/hupe1980/percolate/metadata"
)

// Parse decodes a query from its JSON DSL form. Numbers keep their integral or
// fractional nature.
func Parse(data []byte) (Query, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after query", ErrMalformed)
	}
	return parseValue(raw)
}

// FromMap builds a query from an already decoded DSL object.
func FromMap(m map[string]any) (Query, error) {
	return parseObject(m)
}

func parseValue(v any) (Query, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected query object, got %T", ErrMalformed, v)
	}
	return parseObject(m)
}

func parseObject(m map[string]any) (Query, error) {
	if len(m) != 1 {
		return nil, fmt.Errorf("%w: query object must have exactly one key, got %d", ErrMalformed, len(m))
	}
	for name, body := range m {
		parse, ok := parsers[name]
		if !ok {
			return &Unknown{Kind: name, Body: body}, nil
		}
		q, err := parse(body)
		if err != nil {
			return nil, fmt.Errorf("[%s] %w", name, err)
		}
		return q, nil
	}
	panic("unreachable")
}

type parseFunc func(body any) (Query, error)

var parsers map[string]parseFunc

func init() {
	parsers = map[string]parseFunc{
		"match_all":      parseMatchAll,
		"match_none":     parseMatchNone,
		"term":           parseTerm,
		"terms":          parseTerms,
		"match":          parseMatch,
		"match_phrase":   parseMatchPhrase,
		"range":          parseRange,
		"exists":         parseExists,
		"prefix":         parsePrefixQuery,
		"wildcard":       parseWildcard,
		"bool":           parseBool,
		"constant_score": parseConstantScore,
		"function_score": parseFunctionScore,
		"boosting":       parseBoosting,
		"dis_max":        parseDisMax,
		"nested":         parseNested,
		"script":         parseScript,
		"has_child":      parseHasChild,
		"has_parent":     parseHasParent,
	}
}

// ignored parameters are accepted on every query and have no effect on matching.
func ignored(key string) bool {
	return key == "boost" || key == "_name"
}

func object(v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected object, got %T", ErrMalformed, v)
	}
	return m, nil
}

func unsupported(key string) error {
	return fmt.Errorf("%w: unsupported parameter [%s]", ErrMalformed, key)
}

// fieldBody splits a single-field query body such as {"user": ...}.
func fieldBody(v any) (string, any, error) {
	m, err := object(v)
	if err != nil {
		return "", nil, err
	}
	var (
		field string
		body  any
		found int
	)
	for k, b := range m {
		if ignored(k) {
			continue
		}
		field, body = k, b
		found++
	}
	if found != 1 {
		return "", nil, fmt.Errorf("%w: expected exactly one field, got %d", ErrMalformed, found)
	}
	return field, body, nil
}

func toString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		val, err := metadata.FromAny(v)
		if err != nil || val.Kind == metadata.KindArray || val.Kind == metadata.KindNull {
			return "", fmt.Errorf("%w: expected string, got %T", ErrMalformed, v)
		}
		return val.Text(), nil
	}
}

func toFloat(v any) (float64, error) {
	val, err := metadata.FromAny(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if val.Kind == metadata.KindString {
		f, err := strconv.ParseFloat(val.StringValue(), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: expected number, got %q", ErrMalformed, val.StringValue())
		}
		return f, nil
	}
	f, ok := val.AsFloat64()
	if !ok {
		return 0, fmt.Errorf("%w: expected number, got %T", ErrMalformed, v)
	}
	return f, nil
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(x)
	default:
		return false, fmt.Errorf("%w: expected boolean, got %T", ErrMalformed, v)
	}
}

func toScalar(v any) (metadata.Value, error) {
	val, err := metadata.FromAny(v)
	if err != nil {
		return metadata.Value{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if val.Kind == metadata.KindArray || val.Kind == metadata.KindNull {
		return metadata.Value{}, fmt.Errorf("%w: expected scalar value, got %s", ErrMalformed, val.Kind)
	}
	return val, nil
}

func clauses(v any) ([]Query, error) {
	switch x := v.(type) {
	case map[string]any:
		q, err := parseObject(x)
		if err != nil {
			return nil, err
		}
		return []Query{q}, nil
	case []any:
		out := make([]Query, 0, len(x))
		for _, item := range x {
			q, err := parseValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, q)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: expected query or array of queries, got %T", ErrMalformed, v)
	}
}

func parseMatchAll(body any) (Query, error) {
	m, err := object(body)
	if err != nil {
		return nil, err
	}
	for k := range m {
		if !ignored(k) {
			return nil, unsupported(k)
		}
	}
	return &MatchAll{}, nil
}

func parseMatchNone(body any) (Query, error) {
	m, err := object(body)
	if err != nil {
		return nil, err
	}
	for k := range m {
		if !ignored(k) {
			return nil, unsupported(k)
		}
	}
	return &MatchNone{}, nil
}

func parseTerm(body any) (Query, error) {
	field, b, err := fieldBody(body)
	if err != nil {
		return nil, err
	}
	m, isObject := b.(map[string]any)
	if !isObject {
		v, err := toScalar(b)
		if err != nil {
			return nil, err
		}
		return &Term{Field: field, Value: v}, nil
	}

	q := &Term{Field: field}
	for k, v := range m {
		switch {
		case k == "value":
			if q.Value, err = toScalar(v); err != nil {
				return nil, err
			}
		case k == "case_insensitive":
			ci, err := toBool(v)
			if err != nil {
				return nil, err
			}
			if ci {
				return nil, unsupported(k)
			}
		case ignored(k):
		default:
			return nil, unsupported(k)
		}
	}
	if q.Value.Kind == metadata.KindInvalid {
		return nil, fmt.Errorf("%w: missing [value] for field [%s]", ErrMalformed, field)
	}
	return q, nil
}

func parseTerms(body any) (Query, error) {
	field, b, err := fieldBody(body)
	if err != nil {
		return nil, err
	}
	switch x := b.(type) {
	case []any:
		q := &Terms{Field: field, Values: make([]metadata.Value, 0, len(x))}
		for _, item := range x {
			v, err := toScalar(item)
			if err != nil {
				return nil, err
			}
			q.Values = append(q.Values, v)
		}
		return q, nil
	case map[string]any:
		lookup := &TermsLookup{}
		for k, v := range x {
			s, err := toString(v)
			if err != nil {
				return nil, err
			}
			switch k {
			case "index":
				lookup.Index = s
			case "id":
				lookup.ID = s
			case "path":
				lookup.Path = s
			case "routing":
			default:
				return nil, unsupported(k)
			}
		}
		if lookup.ID == "" || lookup.Path == "" {
			return nil, fmt.Errorf("%w: terms lookup requires [id] and [path]", ErrMalformed)
		}
		return &Terms{Field: field, Lookup: lookup}, nil
	default:
		return nil, fmt.Errorf("%w: terms of field [%s] must be an array or lookup", ErrMalformed, field)
	}
}

func parseMatch(body any) (Query, error) {
	field, b, err := fieldBody(body)
	if err != nil {
		return nil, err
	}
	q := &Match{Field: field, Operator: OperatorOr}
	m, isObject := b.(map[string]any)
	if !isObject {
		if q.Query, err = toString(b); err != nil {
			return nil, err
		}
		return q, nil
	}

	hasQuery := false
	for k, v := range m {
		switch {
		case k == "query":
			if q.Query, err = toString(v); err != nil {
				return nil, err
			}
			hasQuery = true
		case k == "operator":
			s, err := toString(v)
			if err != nil {
				return nil, err
			}
			switch Operator(strings.ToLower(s)) {
			case OperatorOr:
				q.Operator = OperatorOr
			case OperatorAnd:
				q.Operator = OperatorAnd
			default:
				return nil, fmt.Errorf("%w: unknown operator %q", ErrMalformed, s)
			}
		case k == "minimum_should_match":
			if q.MinimumShouldMatch, err = toString(v); err != nil {
				return nil, err
			}
		case ignored(k):
		default:
			return nil, unsupported(k)
		}
	}
	if !hasQuery {
		return nil, fmt.Errorf("%w: missing [query] for field [%s]", ErrMalformed, field)
	}
	if _, err := ResolveMinimumShouldMatch(q.MinimumShouldMatch, 1); err != nil {
		return nil, err
	}
	return q, nil
}

func parseMatchPhrase(body any) (Query, error) {
	field, b, err := fieldBody(body)
	if err != nil {
		return nil, err
	}
	q := &MatchPhrase{Field: field}
	m, isObject := b.(map[string]any)
	if !isObject {
		if q.Query, err = toString(b); err != nil {
			return nil, err
		}
		return q, nil
	}

	hasQuery := false
	for k, v := range m {
		switch {
		case k == "query":
			if q.Query, err = toString(v); err != nil {
				return nil, err
			}
			hasQuery = true
		case k == "slop":
			slop, err := toFloat(v)
			if err != nil {
				return nil, err
			}
			if slop != 0 {
				return nil, unsupported(k)
			}
		case ignored(k):
		default:
			return nil, unsupported(k)
		}
	}
	if !hasQuery {
		return nil, fmt.Errorf("%w: missing [query] for field [%s]", ErrMalformed, field)
	}
	return q, nil
}

func parseRange(body any) (Query, error) {
	field, b, err := fieldBody(body)
	if err != nil {
		return nil, err
	}
	m, err := object(b)
	if err != nil {
		return nil, err
	}

	q := &Range{Field: field, IncludeLower: true, IncludeUpper: true}
	var lowerSet, upperSet bool
	setLower := func(v any, inclusive bool) error {
		if lowerSet {
			return fmt.Errorf("%w: multiple lower bounds for field [%s]", ErrMalformed, field)
		}
		lowerSet = true
		q.IncludeLower = inclusive
		if v == nil {
			return nil
		}
		val, err := toScalar(v)
		q.From = val
		return err
	}
	setUpper := func(v any, inclusive bool) error {
		if upperSet {
			return fmt.Errorf("%w: multiple upper bounds for field [%s]", ErrMalformed, field)
		}
		upperSet = true
		q.IncludeUpper = inclusive
		if v == nil {
			return nil
		}
		val, err := toScalar(v)
		q.To = val
		return err
	}

	// from/to take their inclusiveness from include_lower/include_upper.
	var (
		from, to       any
		hasFrom, hasTo bool
		incL, incU     = true, true
	)

	// Sorted keys make duplicate-bound errors deterministic.
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := m[k]
		switch {
		case k == "gt":
			err = setLower(v, false)
		case k == "gte":
			err = setLower(v, true)
		case k == "lt":
			err = setUpper(v, false)
		case k == "lte":
			err = setUpper(v, true)
		case k == "from":
			from, hasFrom = v, true
		case k == "to":
			to, hasTo = v, true
		case k == "include_lower":
			incL, err = toBool(v)
		case k == "include_upper":
			incU, err = toBool(v)
		case ignored(k):
		default:
			return nil, unsupported(k)
		}
		if err != nil {
			return nil, err
		}
	}
	if hasFrom {
		if err := setLower(from, incL); err != nil {
			return nil, err
		}
	}
	if hasTo {
		if err := setUpper(to, incU); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func parseExists(body any) (Query, error) {
	m, err := object(body)
	if err != nil {
		return nil, err
	}
	q := &Exists{}
	for k, v := range m {
		switch {
		case k == "field":
			if q.Field, err = toString(v); err != nil {
				return nil, err
			}
		case ignored(k):
		default:
			return nil, unsupported(k)
		}
	}
	if q.Field == "" {
		return nil, fmt.Errorf("%w: missing [field]", ErrMalformed)
	}
	return q, nil
}

// parsePattern handles the shared shape of prefix and wildcard queries.
func parsePattern(body any, valueKeys ...string) (string, string, error) {
	field, b, err := fieldBody(body)
	if err != nil {
		return "", "", err
	}
	m, isObject := b.(map[string]any)
	if !isObject {
		s, err := toString(b)
		return field, s, err
	}

	var value string
	found := false
	for k, v := range m {
		switch {
		case contains(valueKeys, k):
			if value, err = toString(v); err != nil {
				return "", "", err
			}
			found = true
		case k == "rewrite":
		case k == "case_insensitive":
			ci, err := toBool(v)
			if err != nil {
				return "", "", err
			}
			if ci {
				return "", "", unsupported(k)
			}
		case ignored(k):
		default:
			return "", "", unsupported(k)
		}
	}
	if !found {
		return "", "", fmt.Errorf("%w: missing [value] for field [%s]", ErrMalformed, field)
	}
	return field, value, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func parsePrefixQuery(body any) (Query, error) {
	field, value, err := parsePattern(body, "value", "prefix")
	if err != nil {
		return nil, err
	}
	return &Prefix{Field: field, Value: value}, nil
}

func parseWildcard(body any) (Query, error) {
	field, value, err := parsePattern(body, "value", "wildcard")
	if err != nil {
		return nil, err
	}
	return &Wildcard{Field: field, Value: value}, nil
}

func parseBool(body any) (Query, error) {
	m, err := object(body)
	if err != nil {
		return nil, err
	}
	q := &Bool{}
	for k, v := range m {
		switch {
		case k == "must":
			q.Must, err = clauses(v)
		case k == "filter":
			q.Filter, err = clauses(v)
		case k == "should":
			q.Should, err = clauses(v)
		case k == "must_not":
			q.MustNot, err = clauses(v)
		case k == "minimum_should_match":
			q.MinimumShouldMatch, err = toString(v)
		case k == "adjust_pure_negative":
		case ignored(k):
		default:
			return nil, unsupported(k)
		}
		if err != nil {
			return nil, err
		}
	}
	if _, err := q.RequiredShould(); err != nil {
		return nil, err
	}
	return q, nil
}

func parseConstantScore(body any) (Query, error) {
	m, err := object(body)
	if err != nil {
		return nil, err
	}
	q := &ConstantScore{}
	for k, v := range m {
		switch {
		case k == "filter":
			if q.Filter, err = parseValue(v); err != nil {
				return nil, err
			}
		case ignored(k):
		default:
			return nil, unsupported(k)
		}
	}
	if q.Filter == nil {
		return nil, fmt.Errorf("%w: missing [filter]", ErrMalformed)
	}
	return q, nil
}

// scoreFunctionKinds are the function names accepted by function_score.
var scoreFunctionKinds = []string{
	"script_score", "random_score", "field_value_factor", "gauss", "linear", "exp",
}

func parseScoreFunction(v any) (ScoreFunction, error) {
	m, err := object(v)
	if err != nil {
		return ScoreFunction{}, err
	}
	fn := ScoreFunction{Body: m}
	for k, fv := range m {
		switch {
		case contains(scoreFunctionKinds, k):
			if fn.Kind != "" {
				return ScoreFunction{}, fmt.Errorf("%w: multiple functions in one entry", ErrMalformed)
			}
			fn.Kind = k
		case k == "filter":
			if _, err := parseValue(fv); err != nil {
				return ScoreFunction{}, err
			}
		case k == "weight":
		default:
			return ScoreFunction{}, unsupported(k)
		}
	}
	if fn.Kind == "" {
		if _, ok := m["weight"]; !ok {
			return ScoreFunction{}, fmt.Errorf("%w: empty score function", ErrMalformed)
		}
		fn.Kind = "weight"
	}
	return fn, nil
}

func parseFunctionScore(body any) (Query, error) {
	m, err := object(body)
	if err != nil {
		return nil, err
	}
	q := &FunctionScore{}
	shorthand := make(map[string]any)
	for k, v := range m {
		switch {
		case k == "query":
			if q.Query, err = parseValue(v); err != nil {
				return nil, err
			}
		case k == "functions":
			items, ok := v.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: [functions] must be an array", ErrMalformed)
			}
			for _, item := range items {
				fn, err := parseScoreFunction(item)
				if err != nil {
					return nil, err
				}
				q.Functions = append(q.Functions, fn)
			}
		case k == "min_score":
			f, err := toFloat(v)
			if err != nil {
				return nil, err
			}
			q.MinScore = &f
		case contains(scoreFunctionKinds, k) || k == "weight":
			shorthand[k] = v
		case k == "boost_mode", k == "score_mode", k == "max_boost":
		case ignored(k):
		default:
			return nil, unsupported(k)
		}
	}
	if len(shorthand) > 0 {
		if len(q.Functions) > 0 {
			return nil, fmt.Errorf("%w: use either [functions] or a single function", ErrMalformed)
		}
		fn, err := parseScoreFunction(shorthand)
		if err != nil {
			return nil, err
		}
		q.Functions = []ScoreFunction{fn}
	}
	if q.Query == nil {
		q.Query = &MatchAll{}
	}
	return q, nil
}

func parseBoosting(body any) (Query, error) {
	m, err := object(body)
	if err != nil {
		return nil, err
	}
	q := &Boosting{}
	for k, v := range m {
		switch {
		case k == "positive":
			q.Positive, err = parseValue(v)
		case k == "negative":
			q.Negative, err = parseValue(v)
		case k == "negative_boost":
			q.NegativeBoost, err = toFloat(v)
		case ignored(k):
		default:
			return nil, unsupported(k)
		}
		if err != nil {
			return nil, err
		}
	}
	if q.Positive == nil || q.Negative == nil {
		return nil, fmt.Errorf("%w: [positive] and [negative] are required", ErrMalformed)
	}
	return q, nil
}

func parseDisMax(body any) (Query, error) {
	m, err := object(body)
	if err != nil {
		return nil, err
	}
	q := &DisMax{}
	for k, v := range m {
		switch {
		case k == "queries":
			q.Queries, err = clauses(v)
		case k == "tie_breaker":
			q.TieBreaker, err = toFloat(v)
		case ignored(k):
		default:
			return nil, unsupported(k)
		}
		if err != nil {
			return nil, err
		}
	}
	if len(q.Queries) == 0 {
		return nil, fmt.Errorf("%w: [queries] is required", ErrMalformed)
	}
	return q, nil
}

func parseNested(body any) (Query, error) {
	m, err := object(body)
	if err != nil {
		return nil, err
	}
	q := &Nested{}
	for k, v := range m {
		switch {
		case k == "path":
			q.Path, err = toString(v)
		case k == "query":
			q.Query, err = parseValue(v)
		case k == "score_mode":
			q.ScoreMode, err = toString(v)
		case k == "ignore_unmapped", k == "inner_hits":
		case ignored(k):
		default:
			return nil, unsupported(k)
		}
		if err != nil {
			return nil, err
		}
	}
	if q.Path == "" || q.Query == nil {
		return nil, fmt.Errorf("%w: [path] and [query] are required", ErrMalformed)
	}
	return q, nil
}

func parseScript(body any) (Query, error) {
	m, err := object(body)
	if err != nil {
		return nil, err
	}
	q := &Script{}
	for k, v := range m {
		switch {
		case k == "script":
			if err := parseScriptBody(q, v); err != nil {
				return nil, err
			}
		case ignored(k):
		default:
			return nil, unsupported(k)
		}
	}
	if q.Source == "" {
		return nil, fmt.Errorf("%w: missing script source", ErrMalformed)
	}
	return q, nil
}

func parseScriptBody(q *Script, v any) error {
	if s, ok := v.(string); ok {
		q.Source = s
		return nil
	}
	m, err := object(v)
	if err != nil {
		return err
	}
	for k, sv := range m {
		switch k {
		case "source", "inline", "id":
			if q.Source, err = toString(sv); err != nil {
				return err
			}
		case "lang":
			if q.Lang, err = toString(sv); err != nil {
				return err
			}
		case "params":
			if q.Params, err = object(sv); err != nil {
				return err
			}
		default:
			return unsupported(k)
		}
	}
	return nil
}

// Join clauses only need enough structure to be located and rejected.
func parseHasChild(body any) (Query, error) {
	m, err := object(body)
	if err != nil {
		return nil, err
	}
	q := &HasChild{}
	if t, ok := m["type"]; ok {
		if q.Type, err = toString(t); err != nil {
			return nil, err
		}
	}
	if inner, ok := m["query"]; ok {
		if q.Query, err = parseValue(inner); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func parseHasParent(body any) (Query, error) {
	m, err := object(body)
	if err != nil {
		return nil, err
	}
	q := &HasParent{}
	if t, ok := m["parent_type"]; ok {
		if q.ParentType, err = toString(t); err != nil {
			return nil, err
		}
	}
	if inner, ok := m["query"]; ok {
		if q.Query, err = parseValue(inner); err != nil {
			return nil, err
		}
	}
	return q, nil
}
