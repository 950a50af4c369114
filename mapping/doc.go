// Package mapping describes the fields of candidate documents: their names, types and
// how values of each type are indexed and encoded.
//
// A Mapping is built once with a Builder (or parsed from an Elasticsearch-style
// mapping document) and is immutable afterwards, so it can be shared freely between
// the store path and the percolate path.
//
// Supported field types:
//
//   - keyword: exact-match terms
//   - text: analyzed terms (see internal/analysis)
//   - long, integer, short, byte: signed integers, indexed as points
//   - double, float: IEEE floats, indexed as points
//   - date: epoch milliseconds, indexed as long points
//   - ip: IPv4/IPv6 addresses, indexed as 16-byte points
//   - boolean: the terms "true" and "false"
//   - nested: an object path whose array elements are indexed as separate documents
package mapping
