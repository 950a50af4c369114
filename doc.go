// Package percolate provides an embedded reverse search engine for Go.
//
// Instead of searching documents with a query, percolate stores queries and finds
// the stored queries that match a document. Stored queries use the JSON query DSL
// (term, terms, match, match_phrase, range, bool, nested, dis_max, and more).
//
// # Quick Start
//
//	m, _ := mapping.NewBuilder().Keyword("status").Long("age").Build()
//	p, _ := percolate.New(m)
//
//	p.Register(ctx, "adults", []byte(`{"query":{"range":{"age":{"gte":18}}}}`))
//
//	res, _ := p.Percolate(ctx, [][]byte{[]byte(`{"age":42}`)})
//	fmt.Println(res.IDs()) // [adults]
//
// # How It Works
//
// On Register each query is analyzed into the terms and ranges a document must
// contain to match it. Each query is tagged with an extraction result:
//
//   - complete: containing the extractions proves a match
//   - partial: the extractions are necessary but not sufficient
//   - failed: nothing useful could be extracted, the query is always a candidate
//
// On Percolate the documents are indexed in memory and turned into a candidate
// query over the stored extractions. Candidates are then evaluated exactly
// against the documents. For a single document without nested objects, complete
// candidates skip evaluation.
//
// # Verification Failures
//
// A stored query that cannot be evaluated (for example a script query without a
// ScriptEngine) is reported in Result.Failures and logged. It never fails the
// request.
//
// # Persistence
//
// Snapshots hold the stored documents and are written to any blobstore.BlobStore:
//
//	store := blobstore.NewLocalStore("./data")
//	p.Snapshot(ctx, store, "queries.snap")
//	p.Restore(ctx, store, "queries.snap")
//
// Restore re-analyzes every stored query, so a snapshot stays valid when the
// analysis changes. S3 and MinIO stores live in blobstore/s3 and blobstore/minio.
//
// # Configuration
//
// Options mirror the percolator index settings:
//
//	settings, _ := percolate.ParseSettings(map[string]string{
//	    percolate.SettingMapUnmappedFieldsAsText: "true",
//	    percolate.SettingMaxClauseCount:          "4096",
//	})
//	p, _ := percolate.New(m, percolate.WithSettings(settings))
package percolate
