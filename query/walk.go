package query

import (
	"context"
	"fmt"

	"github.com/hupe1980/percolate/metadata"
)

// Children returns the direct sub-queries of q.
func Children(q Query) []Query {
	switch q := q.(type) {
	case *Bool:
		out := make([]Query, 0, len(q.Must)+len(q.Filter)+len(q.Should)+len(q.MustNot))
		out = append(out, q.Must...)
		out = append(out, q.Filter...)
		out = append(out, q.Should...)
		return append(out, q.MustNot...)
	case *ConstantScore:
		return []Query{q.Filter}
	case *FunctionScore:
		return []Query{q.Query}
	case *Boosting:
		return []Query{q.Positive, q.Negative}
	case *DisMax:
		return q.Queries
	case *Nested:
		return []Query{q.Query}
	case *HasChild:
		if q.Query != nil {
			return []Query{q.Query}
		}
	case *HasParent:
		if q.Query != nil {
			return []Query{q.Query}
		}
	}
	return nil
}

// Walk visits q and every nested clause in pre-order. Returning false from fn skips
// the children of the visited node.
func Walk(q Query, fn func(Query) bool) {
	if q == nil || !fn(q) {
		return
	}
	for _, c := range Children(q) {
		Walk(c, fn)
	}
}

// CheckJoins rejects has_child and has_parent clauses anywhere in q.
func CheckJoins(q Query) error {
	var err error
	Walk(q, func(n Query) bool {
		if err != nil {
			return false
		}
		switch n.(type) {
		case *HasChild, *HasParent:
			err = fmt.Errorf("%w: the [%s] query is unsupported inside a percolator query", ErrJoinQuery, n.Name())
			return false
		}
		return true
	})
	return err
}

// Resolver fetches terms referenced by a terms lookup.
type Resolver interface {
	LookupTerms(ctx context.Context, lookup TermsLookup) ([]metadata.Value, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, lookup TermsLookup) ([]metadata.Value, error)

// LookupTerms calls f.
func (f ResolverFunc) LookupTerms(ctx context.Context, lookup TermsLookup) ([]metadata.Value, error) {
	return f(ctx, lookup)
}

// Rewrite returns q with every terms lookup replaced by the terms it references.
// q itself is not modified. A nil resolver fails on the first lookup.
func Rewrite(ctx context.Context, q Query, r Resolver) (Query, error) {
	return transform(q, func(n Query) (Query, error) {
		t, ok := n.(*Terms)
		if !ok || t.Lookup == nil {
			return n, nil
		}
		if r == nil {
			return nil, fmt.Errorf("%w: no resolver for lookup [%s/%s]", ErrUnresolvedLookup, t.Lookup.ID, t.Lookup.Path)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vals, err := r.LookupTerms(ctx, *t.Lookup)
		if err != nil {
			return nil, fmt.Errorf("%w: lookup [%s/%s]: %w", ErrUnresolvedLookup, t.Lookup.ID, t.Lookup.Path, err)
		}
		return &Terms{Field: t.Field, Values: vals}, nil
	})
}

// transform rebuilds q bottom-up, applying fn to every node after its children.
func transform(q Query, fn func(Query) (Query, error)) (Query, error) {
	var err error
	each := func(qs []Query) []Query {
		if len(qs) == 0 || err != nil {
			return qs
		}
		out := make([]Query, len(qs))
		for i, c := range qs {
			if out[i], err = transform(c, fn); err != nil {
				return nil
			}
		}
		return out
	}
	one := func(c Query) Query {
		if c == nil || err != nil {
			return c
		}
		var out Query
		out, err = transform(c, fn)
		return out
	}

	switch n := q.(type) {
	case *Bool:
		cp := *n
		cp.Must, cp.Filter, cp.Should, cp.MustNot = each(n.Must), each(n.Filter), each(n.Should), each(n.MustNot)
		q = &cp
	case *ConstantScore:
		q = &ConstantScore{Filter: one(n.Filter)}
	case *FunctionScore:
		cp := *n
		cp.Query = one(n.Query)
		q = &cp
	case *Boosting:
		cp := *n
		cp.Positive, cp.Negative = one(n.Positive), one(n.Negative)
		q = &cp
	case *DisMax:
		cp := *n
		cp.Queries = each(n.Queries)
		q = &cp
	case *Nested:
		cp := *n
		cp.Query = one(n.Query)
		q = &cp
	case *HasChild:
		cp := *n
		cp.Query = one(n.Query)
		q = &cp
	case *HasParent:
		cp := *n
		cp.Query = one(n.Query)
		q = &cp
	}
	if err != nil {
		return nil, err
	}
	return fn(q)
}
