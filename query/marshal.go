package query

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/hupe1980/percolate/metadata"
)

// Marshal encodes q in its JSON DSL form. Parse(Marshal(q)) yields an equivalent query.
func Marshal(q Query) ([]byte, error) {
	m, err := ToMap(q)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// ToMap converts q to its decoded DSL form.
func ToMap(q Query) (map[string]any, error) {
	body, err := toBody(q)
	if err != nil {
		return nil, err
	}
	return map[string]any{q.Name(): body}, nil
}

func toList(qs []Query) ([]any, error) {
	out := make([]any, 0, len(qs))
	for _, q := range qs {
		m, err := ToMap(q)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func values(vs []metadata.Value) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v.Any()
	}
	return out
}

func toBody(q Query) (any, error) {
	switch q := q.(type) {
	case *MatchAll, *MatchNone:
		return map[string]any{}, nil
	case *Term:
		return map[string]any{q.Field: map[string]any{"value": q.Value.Any()}}, nil
	case *Terms:
		if q.Lookup != nil {
			lookup := map[string]any{"id": q.Lookup.ID, "path": q.Lookup.Path}
			if q.Lookup.Index != "" {
				lookup["index"] = q.Lookup.Index
			}
			return map[string]any{q.Field: lookup}, nil
		}
		return map[string]any{q.Field: values(q.Values)}, nil
	case *Match:
		body := map[string]any{"query": q.Query}
		if q.Operator != "" {
			body["operator"] = string(q.Operator)
		}
		if q.MinimumShouldMatch != "" {
			body["minimum_should_match"] = q.MinimumShouldMatch
		}
		return map[string]any{q.Field: body}, nil
	case *MatchPhrase:
		return map[string]any{q.Field: map[string]any{"query": q.Query}}, nil
	case *Range:
		body := map[string]any{}
		if !isOpen(q.From) {
			if q.IncludeLower {
				body["gte"] = q.From.Any()
			} else {
				body["gt"] = q.From.Any()
			}
		}
		if !isOpen(q.To) {
			if q.IncludeUpper {
				body["lte"] = q.To.Any()
			} else {
				body["lt"] = q.To.Any()
			}
		}
		return map[string]any{q.Field: body}, nil
	case *Exists:
		return map[string]any{"field": q.Field}, nil
	case *Prefix:
		return map[string]any{q.Field: map[string]any{"value": q.Value}}, nil
	case *Wildcard:
		return map[string]any{q.Field: map[string]any{"value": q.Value}}, nil
	case *Bool:
		body := map[string]any{}
		for _, c := range []struct {
			key string
			qs  []Query
		}{{"must", q.Must}, {"filter", q.Filter}, {"should", q.Should}, {"must_not", q.MustNot}} {
			if len(c.qs) == 0 {
				continue
			}
			list, err := toList(c.qs)
			if err != nil {
				return nil, err
			}
			body[c.key] = list
		}
		if q.MinimumShouldMatch != "" {
			body["minimum_should_match"] = q.MinimumShouldMatch
		}
		return body, nil
	case *ConstantScore:
		inner, err := ToMap(q.Filter)
		if err != nil {
			return nil, err
		}
		return map[string]any{"filter": inner}, nil
	case *FunctionScore:
		inner, err := ToMap(q.Query)
		if err != nil {
			return nil, err
		}
		body := map[string]any{"query": inner}
		if len(q.Functions) > 0 {
			fns := make([]any, len(q.Functions))
			for i, fn := range q.Functions {
				fns[i] = fn.Body
			}
			body["functions"] = fns
		}
		if q.MinScore != nil {
			body["min_score"] = *q.MinScore
		}
		return body, nil
	case *Boosting:
		pos, err := ToMap(q.Positive)
		if err != nil {
			return nil, err
		}
		neg, err := ToMap(q.Negative)
		if err != nil {
			return nil, err
		}
		return map[string]any{"positive": pos, "negative": neg, "negative_boost": q.NegativeBoost}, nil
	case *DisMax:
		list, err := toList(q.Queries)
		if err != nil {
			return nil, err
		}
		body := map[string]any{"queries": list}
		if q.TieBreaker != 0 {
			body["tie_breaker"] = q.TieBreaker
		}
		return body, nil
	case *Nested:
		inner, err := ToMap(q.Query)
		if err != nil {
			return nil, err
		}
		body := map[string]any{"path": q.Path, "query": inner}
		if q.ScoreMode != "" {
			body["score_mode"] = q.ScoreMode
		}
		return body, nil
	case *Script:
		script := map[string]any{"source": q.Source}
		if q.Lang != "" {
			script["lang"] = q.Lang
		}
		if len(q.Params) > 0 {
			script["params"] = q.Params
		}
		return map[string]any{"script": script}, nil
	case *HasChild:
		body := map[string]any{"type": q.Type}
		if q.Query != nil {
			inner, err := ToMap(q.Query)
			if err != nil {
				return nil, err
			}
			body["query"] = inner
		}
		return body, nil
	case *HasParent:
		body := map[string]any{"parent_type": q.ParentType}
		if q.Query != nil {
			inner, err := ToMap(q.Query)
			if err != nil {
				return nil, err
			}
			body["query"] = inner
		}
		return body, nil
	case *Unknown:
		return q.Body, nil
	default:
		return nil, fmt.Errorf("unsupported query type %T", q)
	}
}

func isOpen(v metadata.Value) bool {
	return v.Kind == metadata.KindInvalid || v.Kind == metadata.KindNull
}
