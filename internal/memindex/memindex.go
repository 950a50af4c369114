// Package memindex implements the ephemeral single-use index built from the documents
// submitted to a percolation request.
//
// The index serves two purposes. It enumerates every term and every per-field point
// range present across all submitted documents, which is what candidate selection
// needs. It also evaluates stored queries exactly against one submitted document,
// which is what verification needs.
package memindex

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/hupe1980/percolate/mapping"
	"github.com/hupe1980/percolate/metadata"
)

// ErrInvalidDocument is returned by Build for documents that are not JSON objects.
var ErrInvalidDocument = errors.New("invalid document")

// Options configures Build.
type Options struct {
	// UnmappedAsText indexes fields missing from the mapping as text fields. Otherwise
	// they are kept in the source but not indexed.
	UnmappedAsText bool
	// Scripts evaluates script queries. Without it script queries are not evaluable.
	Scripts ScriptEngine
	// Logger receives debug output. Nil discards it.
	Logger *slog.Logger
}

// doc is one indexed document. Nested objects become child documents.
type doc struct {
	slot   int
	path   string
	source metadata.Document

	terms      map[string]map[string]struct{}
	phrases    map[string][][]string
	points     map[string][][]byte
	fieldNames map[string]struct{}
	children   []*doc
}

func newDoc(slot int, path string) *doc {
	return &doc{
		slot:       slot,
		path:       path,
		source:     make(metadata.Document),
		terms:      make(map[string]map[string]struct{}),
		phrases:    make(map[string][][]string),
		points:     make(map[string][][]byte),
		fieldNames: make(map[string]struct{}),
	}
}

func (d *doc) hasTerm(field, term string) bool {
	_, ok := d.terms[field][term]
	return ok
}

type hull struct {
	min, max []byte
}

// Index is an immutable in-memory index over a batch of documents. It is safe for
// concurrent reads.
type Index struct {
	mapping *mapping.Mapping
	opts    Options
	logger  *slog.Logger

	roots []*doc
	all   []*doc

	terms  map[string]map[string]struct{}
	points map[string]*hull
}

// Build parses and indexes docs. Each element is one JSON object; its position is its
// slot.
func Build(m *mapping.Mapping, docs [][]byte, opts Options) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ix := &Index{
		mapping: m,
		opts:    opts,
		logger:  logger,
		terms:   make(map[string]map[string]struct{}),
		points:  make(map[string]*hull),
	}

	for slot, raw := range docs {
		obj, err := decodeObject(raw)
		if err != nil {
			return nil, fmt.Errorf("document [%d]: %w", slot, err)
		}
		root := newDoc(slot, "")
		ix.roots = append(ix.roots, root)
		ix.all = append(ix.all, root)
		if err := ix.indexObject(root, obj, ""); err != nil {
			return nil, fmt.Errorf("document [%d]: %w", slot, err)
		}
	}

	logger.Debug("built candidate index",
		"documents", len(ix.roots),
		"max_doc", len(ix.all),
		"term_fields", len(ix.terms),
		"point_fields", len(ix.points))

	return ix, nil
}

func decodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrInvalidDocument)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected object, got %T", ErrInvalidDocument, v)
	}
	return obj, nil
}

func (ix *Index) indexObject(d *doc, obj map[string]any, prefix string) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := ix.indexEntry(d, prefix+k, obj[k]); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Index) indexEntry(d *doc, name string, v any) error {
	switch x := v.(type) {
	case nil:
		return nil
	case map[string]any:
		if ix.mapping.IsNested(name) {
			return ix.indexNested(d, name, x)
		}
		return ix.indexObject(d, x, name+".")
	case []any:
		for _, item := range x {
			if err := ix.indexEntry(d, name, item); err != nil {
				return err
			}
		}
		return nil
	default:
		val, err := metadata.FromAny(v)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		return ix.indexValue(d, name, val)
	}
}

func (ix *Index) indexNested(parent *doc, path string, obj map[string]any) error {
	child := newDoc(parent.slot, path)
	parent.children = append(parent.children, child)
	ix.all = append(ix.all, child)
	return ix.indexObject(child, obj, path+".")
}

func (ix *Index) indexValue(d *doc, name string, v metadata.Value) error {
	d.source.Add(name, v)

	f, ok := ix.mapping.Field(name)
	if !ok || f.Type == mapping.Nested || f.Type == mapping.Object {
		if !ix.opts.UnmappedAsText {
			return nil
		}
		f = mapping.Field{Name: name, Type: mapping.Text, Nested: ix.mapping.NestedPathOf(name)}
	}

	if f.IsPoint() {
		enc, err := f.EncodePoint(v)
		if err != nil {
			return err
		}
		d.points[name] = append(d.points[name], enc)
		ix.addPoint(name, enc)
	} else {
		terms, err := f.IndexTerms(v)
		if err != nil {
			return err
		}
		set := d.terms[name]
		if set == nil {
			set = make(map[string]struct{})
			d.terms[name] = set
		}
		for _, t := range terms {
			set[t] = struct{}{}
			ix.addTerm(name, t)
		}
		if f.Type == mapping.Text {
			d.phrases[name] = append(d.phrases[name], terms)
		}
	}

	ix.addFieldNames(d, name)
	return nil
}

// addFieldNames records name and every enclosing object path as present.
func (ix *Index) addFieldNames(d *doc, name string) {
	for {
		d.fieldNames[name] = struct{}{}
		ix.addTerm(mapping.FieldNamesField, name)
		i := strings.LastIndexByte(name, '.')
		if i < 0 {
			return
		}
		name = name[:i]
	}
}

func (ix *Index) addTerm(field, term string) {
	set := ix.terms[field]
	if set == nil {
		set = make(map[string]struct{})
		ix.terms[field] = set
	}
	set[term] = struct{}{}
}

func (ix *Index) addPoint(field string, enc []byte) {
	h := ix.points[field]
	if h == nil {
		ix.points[field] = &hull{min: enc, max: enc}
		return
	}
	if bytes.Compare(enc, h.min) < 0 {
		h.min = enc
	}
	if bytes.Compare(enc, h.max) > 0 {
		h.max = enc
	}
}

// MaxDoc returns the number of indexed documents, nested documents included.
func (ix *Index) MaxDoc() int { return len(ix.all) }

// NumRootDocs returns the number of submitted documents.
func (ix *Index) NumRootDocs() int { return len(ix.roots) }

// HasNested reports whether any submitted document produced nested documents.
func (ix *Index) HasNested() bool { return len(ix.all) > len(ix.roots) }

// TermFields returns the fields holding terms, sorted.
func (ix *Index) TermFields() []string {
	out := make([]string, 0, len(ix.terms))
	for f := range ix.terms {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// IterTerms calls fn with each distinct term of field in sorted order until fn
// returns false.
func (ix *Index) IterTerms(field string, fn func(term []byte) bool) {
	set := ix.terms[field]
	terms := make([]string, 0, len(set))
	for t := range set {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	for _, t := range terms {
		if !fn([]byte(t)) {
			return
		}
	}
}

// PointFields returns the fields holding points, sorted.
func (ix *Index) PointFields() []string {
	out := make([]string, 0, len(ix.points))
	for f := range ix.points {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// PointRange returns the smallest and largest encoded point of field across all
// documents.
func (ix *Index) PointRange(field string) (min, max []byte, ok bool) {
	h := ix.points[field]
	if h == nil {
		return nil, nil, false
	}
	return h.min, h.max, true
}

// Source returns the flattened values of the root document at slot.
func (ix *Index) Source(slot int) (metadata.Document, bool) {
	if slot < 0 || slot >= len(ix.roots) {
		return nil, false
	}
	return ix.roots[slot].source, true
}
