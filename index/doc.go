// Package index is the stored-query index: the document store that holds percolator
// documents and executes candidate queries against them.
//
// Each stored document carries keyword fields (exact-match terms), binary range
// fields (encoded ranges matched by intersection), numeric doc values, binary stored
// fields and the names of the fields it populates. Posting lists are Roaring Bitmaps
// keyed by field and term.
//
// Index is safe for concurrent use. Searches run under a read lock and therefore see
// a consistent view of the stored documents.
package index
