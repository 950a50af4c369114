// Package testutil provides randomized fixtures for percolator tests.
//
// This package is intended for use in tests and benchmarks only. It generates
// stored queries and documents over a small fixed schema, so random queries and
// documents overlap often enough to produce matches.
//
// # Random Fixtures
//
//	rng := testutil.NewRNG(seed)
//	m := testutil.Mapping()
//	q := rng.Query(3)       // query DSL as map[string]any
//	doc := rng.Document()   // source document as map[string]any
//
// Term choice is Zipf-skewed, so a few values are hot and most are rare.
package testutil
