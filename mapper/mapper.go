package mapper

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/percolate/candidate"
	"github.com/hupe1980/percolate/codec"
	"github.com/hupe1980/percolate/extract"
	"github.com/hupe1980/percolate/index"
	"github.com/hupe1980/percolate/internal/rangecodec"
	"github.com/hupe1980/percolate/mapping"
	"github.com/hupe1980/percolate/query"
)

// ErrDuplicateQuery is returned when a document already holds a percolator query.
var ErrDuplicateQuery = errors.New("a document can only contain one percolator query")

// Option configures a FieldMapper.
type Option func(*FieldMapper)

// WithResolver sets the resolver for late-bound references such as terms lookups.
func WithResolver(r query.Resolver) Option {
	return func(fm *FieldMapper) { fm.resolver = r }
}

// WithCodec sets the codec that serializes stored queries.
func WithCodec(c codec.Codec) Option {
	return func(fm *FieldMapper) {
		if c != nil {
			fm.codec = c
		}
	}
}

// WithCompression sets the compression of serialized stored queries.
func WithCompression(c codec.Compression) Option {
	return func(fm *FieldMapper) { fm.compression = c }
}

// FieldMapper writes stored queries into index documents. It holds no mutable state
// and is safe for concurrent use.
type FieldMapper struct {
	ft          FieldType
	analyzer    *extract.Analyzer
	resolver    query.Resolver
	codec       codec.Codec
	compression codec.Compression
}

// NewFieldMapper returns a mapper for ft resolving query fields against m.
func NewFieldMapper(ft FieldType, m *mapping.Mapping, opts ...Option) *FieldMapper {
	fm := &FieldMapper{
		ft:          ft,
		analyzer:    extract.NewAnalyzer(m, ft.MapUnmappedFieldsAsText()),
		codec:       codec.Default,
		compression: codec.CompressionZSTD,
	}
	for _, opt := range opts {
		opt(fm)
	}
	return fm
}

// FieldType returns the field type of the mapper.
func (fm *FieldMapper) FieldType() FieldType { return fm.ft }

// Parsed describes a query written by Parse.
type Parsed struct {
	// Query is the rewritten query that was serialized and analyzed.
	Query  query.Query
	Result extract.Result
	Tags   []ExtractionResult
}

// Parse stores q into doc. It rejects a second query for the same document and join
// clauses anywhere in q, resolves late-bound references, serializes the rewritten
// query and writes the extractions. On error doc is left unchanged.
func (fm *FieldMapper) Parse(ctx context.Context, doc *index.Document, q query.Query) (Parsed, error) {
	if _, ok := doc.Stored[fm.ft.queryBuilder]; ok {
		return Parsed{}, ErrDuplicateQuery
	}
	if err := query.CheckJoins(q); err != nil {
		return Parsed{}, err
	}

	rewritten, err := query.Rewrite(ctx, q, fm.resolver)
	if err != nil {
		return Parsed{}, err
	}

	blob, err := fm.Encode(rewritten)
	if err != nil {
		return Parsed{}, err
	}

	result, err := fm.analyzer.Analyze(rewritten)
	if err != nil {
		return Parsed{}, err
	}

	ensure(doc)
	doc.Stored[fm.ft.queryBuilder] = blob
	tags := fm.write(doc, result)

	return Parsed{Query: rewritten, Result: result, Tags: tags}, nil
}

// write adds the extraction fields for result to doc.
func (fm *FieldMapper) write(doc *index.Document, result extract.Result) []ExtractionResult {
	if result.Unknown {
		return fm.tag(doc, ExtractionFailed)
	}

	for _, e := range result.Extractions {
		if e.IsRange() {
			doc.Ranges[fm.ft.rangeField] = append(doc.Ranges[fm.ft.rangeField], rangecodec.Encode(e.Field, e.Min, e.Max))
			continue
		}
		doc.Keywords[fm.ft.extractedTerms] = append(doc.Keywords[fm.ft.extractedTerms], candidate.JoinTerm(e.Field, e.Term))
	}

	var tags []ExtractionResult
	switch {
	case result.MatchAll:
		tags = fm.tag(doc, ExtractionFailed)
		if result.Verified {
			tags = append(tags, fm.tag(doc, ExtractionComplete)...)
		}
	case result.Verified:
		tags = fm.tag(doc, ExtractionComplete)
	default:
		tags = fm.tag(doc, ExtractionPartial)
	}

	doc.FieldNames = append(doc.FieldNames, fm.ft.name)
	doc.DocValues[fm.ft.minimumShouldMatch] = int64(result.MinimumShouldMatch)
	return tags
}

func (fm *FieldMapper) tag(doc *index.Document, r ExtractionResult) []ExtractionResult {
	doc.Keywords[fm.ft.extractionResult] = append(doc.Keywords[fm.ft.extractionResult], []byte(r))
	return []ExtractionResult{r}
}

func ensure(doc *index.Document) {
	if doc.Keywords == nil {
		doc.Keywords = make(map[string][][]byte)
	}
	if doc.Ranges == nil {
		doc.Ranges = make(map[string][][]byte)
	}
	if doc.DocValues == nil {
		doc.DocValues = make(map[string]int64)
	}
	if doc.Stored == nil {
		doc.Stored = make(map[string][]byte)
	}
}

// Encode serializes q into a stored query blob.
func (fm *FieldMapper) Encode(q query.Query) ([]byte, error) {
	m, err := query.ToMap(q)
	if err != nil {
		return nil, err
	}
	return codec.EncodeBlob(fm.codec, fm.compression, m)
}

// Decode restores a query from a stored query blob. The blob names its codec, so
// blobs written with another codec decode as long as that codec is known.
func (fm *FieldMapper) Decode(blob []byte) (query.Query, error) {
	var m map[string]any
	if _, err := codec.DecodeBlob(blob, &m, fm.codec); err != nil {
		return nil, err
	}
	q, err := query.FromMap(m)
	if err != nil {
		return nil, fmt.Errorf("decode stored query: %w", err)
	}
	return q, nil
}

// Tags returns the extraction-result tags stored in doc.
func (fm *FieldMapper) Tags(doc *index.Document) []ExtractionResult {
	var out []ExtractionResult
	for _, t := range doc.Keywords[fm.ft.extractionResult] {
		out = append(out, ExtractionResult(t))
	}
	return out
}
