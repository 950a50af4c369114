package query

import "errors"

var (
	// ErrMalformed is returned for JSON that does not describe a query.
	ErrMalformed = errors.New("malformed query")

	// ErrJoinQuery is returned by CheckJoins for has_child and has_parent clauses.
	ErrJoinQuery = errors.New("join queries are not supported")

	// ErrUnresolvedLookup is returned by Rewrite when a terms lookup cannot be resolved.
	ErrUnresolvedLookup = errors.New("unresolved terms lookup")
)
