// Package extract statically analyzes stored queries.
//
// The Analyzer walks a query tree and derives the terms and ranges a document must
// contain for the query to match, together with the minimum number of them that
// must be present at once. The derivation is sound but incomplete: a document that
// matches the query always contains at least MinimumShouldMatch of the extractions,
// while containing them does not always imply a match. When it does, the result is
// Verified.
//
// Counting happens in units: every distinct term is one unit and every range field is
// one unit, however many ranges the query holds for it. The candidate side presents
// one range per field, so two stored ranges on the same field can only ever be
// satisfied once.
package extract
