// Package query models stored queries: the Elasticsearch-style JSON query DSL that
// percolator documents carry.
//
// Query is a closed sum type. Every variant is a pointer to a struct declared in
// this package, and the unexported marker method keeps other packages from adding
// variants, so a type switch over the variants here is exhaustive. Query names that
// are not recognized parse into *Unknown with the body preserved, which lets callers
// store such queries and treat them conservatively.
//
// Typical use:
//
//	q, err := query.Parse([]byte(`{"bool": {"must": [{"term": {"status": "open"}}]}}`))
//	if err != nil {
//	    return err
//	}
//	if err := query.CheckJoins(q); err != nil {
//	    return err
//	}
//	q, err = query.Rewrite(ctx, q, resolver)
package query
