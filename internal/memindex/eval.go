package memindex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/percolate/mapping"
	"github.com/hupe1980/percolate/metadata"
	"github.com/hupe1980/percolate/query"
)

// ErrNotEvaluable is returned for queries whose matching cannot be decided here, such
// as join clauses, unknown query types or scoring thresholds.
var ErrNotEvaluable = errors.New("query cannot be evaluated")

// ScriptEngine evaluates script queries against a document's flattened source.
type ScriptEngine interface {
	EvalScript(ctx context.Context, s *query.Script, source metadata.Document) (bool, error)
}

// ScriptFunc adapts a function to ScriptEngine.
type ScriptFunc func(ctx context.Context, s *query.Script, source metadata.Document) (bool, error)

// EvalScript implements ScriptEngine.
func (f ScriptFunc) EvalScript(ctx context.Context, s *query.Script, source metadata.Document) (bool, error) {
	return f(ctx, s, source)
}

// Match reports whether q matches the document at slot. Unless excludeNested is set,
// nested documents of the slot are also tried as standalone documents, and a match on
// any of them counts for the slot.
func (ix *Index) Match(ctx context.Context, q query.Query, slot int, excludeNested bool) (bool, error) {
	if slot < 0 || slot >= len(ix.roots) {
		return false, fmt.Errorf("slot %d out of range [0, %d)", slot, len(ix.roots))
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	e := &evaluator{ix: ix, ctx: ctx}
	root := ix.roots[slot]

	ok, err := e.eval(q, root)
	if err != nil || ok || excludeNested {
		return ok, err
	}

	var found bool
	err = walkChildren(root, func(d *doc) (bool, error) {
		m, err := e.eval(q, d)
		if err != nil {
			return false, err
		}
		found = m
		return !m, nil
	})
	return found, err
}

// MatchingSlots returns the slots whose documents match q, in ascending order.
func (ix *Index) MatchingSlots(ctx context.Context, q query.Query, excludeNested bool) ([]int, error) {
	var slots []int
	for slot := range ix.roots {
		ok, err := ix.Match(ctx, q, slot, excludeNested)
		if err != nil {
			return nil, err
		}
		if ok {
			slots = append(slots, slot)
		}
	}
	return slots, nil
}

// walkChildren visits the descendants of d until fn returns false.
func walkChildren(d *doc, fn func(*doc) (bool, error)) error {
	var visit func(*doc) (bool, error)
	visit = func(p *doc) (bool, error) {
		for _, c := range p.children {
			cont, err := fn(c)
			if err != nil || !cont {
				return false, err
			}
			if cont, err = visit(c); err != nil || !cont {
				return false, err
			}
		}
		return true, nil
	}
	_, err := visit(d)
	return err
}

type evaluator struct {
	ix  *Index
	ctx context.Context
}

func (e *evaluator) field(name string) (mapping.Field, error) {
	return e.ix.mapping.Resolve(name, e.ix.opts.UnmappedAsText)
}

func (e *evaluator) eval(q query.Query, d *doc) (bool, error) {
	switch q := q.(type) {
	case *query.MatchAll:
		return true, nil
	case *query.MatchNone:
		return false, nil
	case *query.Term:
		return e.term(q.Field, q.Value, d)
	case *query.Terms:
		if q.Lookup != nil {
			return false, fmt.Errorf("%w: terms lookup on [%s]", query.ErrUnresolvedLookup, q.Field)
		}
		for _, v := range q.Values {
			ok, err := e.term(q.Field, v, d)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case *query.Match:
		return e.match(q, d)
	case *query.MatchPhrase:
		return e.matchPhrase(q, d)
	case *query.Range:
		return e.rangeQuery(q, d)
	case *query.Exists:
		_, ok := d.fieldNames[q.Field]
		return ok, nil
	case *query.Prefix:
		return e.anyTerm(q.Field, d, func(t string) bool { return strings.HasPrefix(t, q.Value) })
	case *query.Wildcard:
		return e.anyTerm(q.Field, d, func(t string) bool { return wildcardMatch(q.Value, t) })
	case *query.Bool:
		return e.boolQuery(q, d)
	case *query.ConstantScore:
		return e.eval(q.Filter, d)
	case *query.FunctionScore:
		if q.MinScore != nil {
			return false, fmt.Errorf("%w: function_score with min_score", ErrNotEvaluable)
		}
		return e.eval(q.Query, d)
	case *query.Boosting:
		return e.eval(q.Positive, d)
	case *query.DisMax:
		for _, c := range q.Queries {
			ok, err := e.eval(c, d)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case *query.Nested:
		return e.nested(q, d)
	case *query.Script:
		if e.ix.opts.Scripts == nil {
			return false, fmt.Errorf("%w: no script engine configured", ErrNotEvaluable)
		}
		return e.ix.opts.Scripts.EvalScript(e.ctx, q, d.source)
	case *query.HasChild, *query.HasParent:
		return false, fmt.Errorf("%w: [%s]", query.ErrJoinQuery, q.Name())
	case *query.Unknown:
		return false, fmt.Errorf("%w: unknown query [%s]", ErrNotEvaluable, q.Kind)
	default:
		return false, fmt.Errorf("%w: %T", ErrNotEvaluable, q)
	}
}

func (e *evaluator) term(name string, v metadata.Value, d *doc) (bool, error) {
	f, err := e.field(name)
	if err != nil {
		return false, err
	}
	if f.IsPoint() {
		min, max, ok, err := f.TermRange(v)
		if err != nil || !ok {
			return false, err
		}
		return d.anyPointIn(f.Name, min, max), nil
	}
	t, err := f.TermValue(v)
	if err != nil {
		return false, err
	}
	return d.hasTerm(f.Name, t), nil
}

func (e *evaluator) match(q *query.Match, d *doc) (bool, error) {
	f, err := e.field(q.Field)
	if err != nil {
		return false, err
	}
	if f.IsPoint() {
		return e.term(q.Field, metadata.String(q.Query), d)
	}

	tokens, err := f.QueryTerms(q.Query)
	if err != nil || len(tokens) == 0 {
		return false, err
	}
	required, err := q.RequiredTerms(len(tokens))
	if err != nil {
		return false, err
	}

	n := 0
	for _, t := range tokens {
		if d.hasTerm(f.Name, t) {
			n++
		}
	}
	return n >= max(1, required), nil
}

func (e *evaluator) matchPhrase(q *query.MatchPhrase, d *doc) (bool, error) {
	f, err := e.field(q.Field)
	if err != nil {
		return false, err
	}
	if f.IsPoint() {
		return e.term(q.Field, metadata.String(q.Query), d)
	}

	tokens, err := f.QueryTerms(q.Query)
	if err != nil || len(tokens) == 0 {
		return false, err
	}
	if len(tokens) == 1 || f.Type != mapping.Text {
		for _, t := range tokens {
			if !d.hasTerm(f.Name, t) {
				return false, nil
			}
		}
		return true, nil
	}

	for _, seq := range d.phrases[f.Name] {
		if containsSequence(seq, tokens) {
			return true, nil
		}
	}
	return false, nil
}

func containsSequence(seq, sub []string) bool {
	for i := 0; i+len(sub) <= len(seq); i++ {
		match := true
		for j := range sub {
			if seq[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func (e *evaluator) rangeQuery(q *query.Range, d *doc) (bool, error) {
	f, err := e.field(q.Field)
	if err != nil {
		return false, err
	}
	if f.IsPoint() {
		min, max, ok, err := f.EncodeRange(q.From, q.To, q.IncludeLower, q.IncludeUpper)
		if err != nil || !ok {
			return false, err
		}
		return d.anyPointIn(f.Name, min, max), nil
	}

	// Term fields compare terms lexicographically.
	return e.anyTerm(q.Field, d, func(t string) bool {
		if !isOpen(q.From) {
			c := strings.Compare(t, q.From.Text())
			if c < 0 || (c == 0 && !q.IncludeLower) {
				return false
			}
		}
		if !isOpen(q.To) {
			c := strings.Compare(t, q.To.Text())
			if c > 0 || (c == 0 && !q.IncludeUpper) {
				return false
			}
		}
		return true
	})
}

func isOpen(v metadata.Value) bool {
	return v.Kind == metadata.KindInvalid || v.Kind == metadata.KindNull
}

func (e *evaluator) anyTerm(name string, d *doc, pred func(string) bool) (bool, error) {
	f, err := e.field(name)
	if err != nil {
		return false, err
	}
	if !f.IsTerm() {
		return false, fmt.Errorf("%w: %q is of type %s", mapping.ErrNotTermField, f.Name, f.Type)
	}
	for t := range d.terms[f.Name] {
		if pred(t) {
			return true, nil
		}
	}
	return false, nil
}

func (d *doc) anyPointIn(field string, min, max []byte) bool {
	for _, p := range d.points[field] {
		if bytes.Compare(p, min) >= 0 && bytes.Compare(p, max) <= 0 {
			return true
		}
	}
	return false
}

func (e *evaluator) boolQuery(q *query.Bool, d *doc) (bool, error) {
	requiredShould, err := q.RequiredShould()
	if err != nil {
		return false, err
	}

	for _, group := range [][]query.Query{q.Must, q.Filter} {
		for _, c := range group {
			ok, err := e.eval(c, d)
			if err != nil || !ok {
				return false, err
			}
		}
	}
	for _, c := range q.MustNot {
		ok, err := e.eval(c, d)
		if err != nil || ok {
			return false, err
		}
	}

	if requiredShould == 0 {
		return true, nil
	}
	n := 0
	for _, c := range q.Should {
		ok, err := e.eval(c, d)
		if err != nil {
			return false, err
		}
		if ok {
			n++
			if n >= requiredShould {
				return true, nil
			}
		}
	}
	return false, nil
}

func (e *evaluator) nested(q *query.Nested, d *doc) (bool, error) {
	if !e.ix.mapping.IsNested(q.Path) {
		return false, fmt.Errorf("%w: [%s] is not a nested path", ErrNotEvaluable, q.Path)
	}

	var found bool
	err := walkChildren(d, func(c *doc) (bool, error) {
		if c.path != q.Path {
			return true, nil
		}
		ok, err := e.eval(q.Query, c)
		if err != nil {
			return false, err
		}
		found = ok
		return !ok, nil
	})
	return found, err
}

// wildcardMatch matches s against a pattern where * matches any sequence and ?
// matches one rune. A backslash escapes the next rune.
func wildcardMatch(pattern, s string) bool {
	p := []rune(pattern)
	r := []rune(s)

	var pi, si int
	star, mark := -1, 0
	for si < len(r) {
		switch {
		case pi < len(p) && p[pi] == '*':
			star, mark = pi, si
			pi++
		case pi < len(p) && p[pi] == '?':
			pi++
			si++
		case pi+1 < len(p) && p[pi] == '\\' && p[pi+1] == r[si]:
			pi += 2
			si++
		case pi < len(p) && p[pi] != '\\' && p[pi] == r[si]:
			pi++
			si++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
