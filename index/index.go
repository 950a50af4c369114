package index

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/percolate/internal/rangecodec"
	"github.com/hupe1980/percolate/search"
)

// FieldNamesField is the keyword field under which each document's populated field
// names are indexed.
const FieldNamesField = "_field_names"

// ErrNotFound is returned when an id is not stored.
var ErrNotFound = errors.New("document not found")

// Document is a stored document.
type Document struct {
	// Keywords holds exact-match terms per field.
	Keywords map[string][][]byte
	// Ranges holds encoded ranges per field.
	Ranges map[string][][]byte
	// DocValues holds one numeric value per field.
	DocValues map[string]int64
	// Stored holds opaque values per field, retrievable but not searchable.
	Stored map[string][]byte
	// FieldNames are indexed as terms of FieldNamesField.
	FieldNames []string
}

// Index stores documents by external id.
type Index struct {
	mu sync.RWMutex

	ids       map[string]uint32
	externals map[uint32]string
	docs      map[uint32]*Document
	free      []uint32
	next      uint32
	live      *roaring.Bitmap

	// field -> term -> docs
	postings map[string]map[string]*roaring.Bitmap
	// field -> doc -> encoded ranges
	ranges map[string]map[uint32][][]byte
	// field -> doc -> value
	docValues map[string]map[uint32]int64
}

// New creates an empty index.
func New() *Index {
	return &Index{
		ids:       make(map[string]uint32),
		externals: make(map[uint32]string),
		docs:      make(map[uint32]*Document),
		live:      roaring.New(),
		postings:  make(map[string]map[string]*roaring.Bitmap),
		ranges:    make(map[string]map[uint32][][]byte),
		docValues: make(map[string]map[uint32]int64),
	}
}

// Put stores doc under id, replacing any previous document with that id.
func (ix *Index) Put(id string, doc *Document) error {
	if doc == nil {
		return errors.New("index: nil document")
	}
	for field, rs := range doc.Ranges {
		for _, r := range rs {
			if len(r) != rangecodec.Size {
				return fmt.Errorf("index: range in field %q has %d bytes, want %d", field, len(r), rangecodec.Size)
			}
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, ok := ix.ids[id]; ok {
		ix.removeLocked(old)
	}

	docID := ix.allocLocked()
	ix.ids[id] = docID
	ix.externals[docID] = id
	ix.docs[docID] = doc
	ix.live.Add(docID)
	ix.addLocked(docID, doc)
	return nil
}

// Delete removes the document stored under id.
func (ix *Index) Delete(id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	docID, ok := ix.ids[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	ix.removeLocked(docID)
	delete(ix.ids, id)
	return nil
}

// Get returns the document stored under id. The document must not be modified.
func (ix *Index) Get(id string) (*Document, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	docID, ok := ix.ids[id]
	if !ok {
		return nil, false
	}
	return ix.docs[docID], true
}

// Stored returns the stored value of field for the document with internal id docID.
func (ix *Index) Stored(docID uint32, field string) ([]byte, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	doc, ok := ix.docs[docID]
	if !ok {
		return nil, false
	}
	v, ok := doc.Stored[field]
	return v, ok
}

// ExternalID maps an internal document id back to its external id.
func (ix *Index) ExternalID(docID uint32) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	id, ok := ix.externals[docID]
	return id, ok
}

// Len returns the number of stored documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return len(ix.ids)
}

// IDs returns the external ids of all stored documents, sorted.
func (ix *Index) IDs() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]string, 0, len(ix.ids))
	for id := range ix.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (ix *Index) allocLocked() uint32 {
	if n := len(ix.free); n > 0 {
		id := ix.free[n-1]
		ix.free = ix.free[:n-1]
		return id
	}
	id := ix.next
	ix.next++
	return id
}

// addLocked indexes doc. Caller must hold ix.mu.Lock().
func (ix *Index) addLocked(docID uint32, doc *Document) {
	for field, terms := range doc.Keywords {
		for _, t := range terms {
			ix.postingLocked(field, string(t)).Add(docID)
		}
	}
	for _, name := range doc.FieldNames {
		ix.postingLocked(FieldNamesField, name).Add(docID)
	}
	for field, rs := range doc.Ranges {
		byDoc, ok := ix.ranges[field]
		if !ok {
			byDoc = make(map[uint32][][]byte)
			ix.ranges[field] = byDoc
		}
		byDoc[docID] = rs
	}
	for field, v := range doc.DocValues {
		byDoc, ok := ix.docValues[field]
		if !ok {
			byDoc = make(map[uint32]int64)
			ix.docValues[field] = byDoc
		}
		byDoc[docID] = v
	}
}

func (ix *Index) postingLocked(field, term string) *roaring.Bitmap {
	terms, ok := ix.postings[field]
	if !ok {
		terms = make(map[string]*roaring.Bitmap)
		ix.postings[field] = terms
	}
	bm, ok := terms[term]
	if !ok {
		bm = roaring.New()
		terms[term] = bm
	}
	return bm
}

// removeLocked unindexes and frees docID. Caller must hold ix.mu.Lock().
func (ix *Index) removeLocked(docID uint32) {
	doc := ix.docs[docID]
	if doc != nil {
		for field, terms := range doc.Keywords {
			for _, t := range terms {
				ix.unpostLocked(field, string(t), docID)
			}
		}
		for _, name := range doc.FieldNames {
			ix.unpostLocked(FieldNamesField, name, docID)
		}
		for field := range doc.Ranges {
			delete(ix.ranges[field], docID)
		}
		for field := range doc.DocValues {
			delete(ix.docValues[field], docID)
		}
	}
	delete(ix.docs, docID)
	delete(ix.externals, docID)
	ix.live.Remove(docID)
	ix.free = append(ix.free, docID)
}

func (ix *Index) unpostLocked(field, term string, docID uint32) {
	terms, ok := ix.postings[field]
	if !ok {
		return
	}
	bm, ok := terms[term]
	if !ok {
		return
	}
	bm.Remove(docID)
	if bm.IsEmpty() {
		delete(terms, term)
	}
}

// Search executes q and returns the internal ids of matching documents.
func (ix *Index) Search(q search.Query) (*roaring.Bitmap, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	bm, err := ix.searchLocked(q)
	if err != nil {
		return nil, err
	}
	bm.And(ix.live)
	return bm, nil
}

// searchLocked returns a bitmap owned by the caller.
func (ix *Index) searchLocked(q search.Query) (*roaring.Bitmap, error) {
	switch q := q.(type) {
	case *search.TermQuery:
		if bm, ok := ix.postings[q.Field][string(q.Term)]; ok {
			return bm.Clone(), nil
		}
		return roaring.New(), nil
	case *search.TermInSetQuery:
		terms := ix.postings[q.Field]
		bms := make([]*roaring.Bitmap, 0, len(q.Terms))
		for _, t := range q.Terms {
			if bm, ok := terms[string(t)]; ok {
				bms = append(bms, bm)
			}
		}
		return roaring.FastOr(bms...), nil
	case *search.BinaryRangeQuery:
		if len(q.Encoded) != rangecodec.Size {
			return nil, fmt.Errorf("index: range query on %q has %d bytes, want %d", q.Field, len(q.Encoded), rangecodec.Size)
		}
		out := roaring.New()
		for docID, rs := range ix.ranges[q.Field] {
			for _, r := range rs {
				if rangecodec.Intersects(r, q.Encoded) {
					out.Add(docID)
					break
				}
			}
		}
		return out, nil
	case *search.CoveringQuery:
		return ix.coveringLocked(q)
	case *search.BooleanQuery:
		bms := make([]*roaring.Bitmap, 0, len(q.Should))
		for _, sub := range q.Should {
			bm, err := ix.searchLocked(sub)
			if err != nil {
				return nil, err
			}
			bms = append(bms, bm)
		}
		return roaring.FastOr(bms...), nil
	case *search.MatchNoDocsQuery:
		return roaring.New(), nil
	default:
		return nil, fmt.Errorf("index: unsupported query type %T", q)
	}
}

func (ix *Index) coveringLocked(q *search.CoveringQuery) (*roaring.Bitmap, error) {
	counts := make(map[uint32]int64)
	for _, sub := range q.Queries {
		bm, err := ix.searchLocked(sub)
		if err != nil {
			return nil, err
		}
		it := bm.Iterator()
		for it.HasNext() {
			counts[it.Next()]++
		}
	}

	msm := ix.docValues[q.MinimumShouldMatchField]
	out := roaring.New()
	for docID, n := range counts {
		required, ok := msm[docID]
		if !ok {
			continue
		}
		if n >= max(1, required) {
			out.Add(docID)
		}
	}
	return out, nil
}
