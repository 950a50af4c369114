package percolate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/percolate/candidate"
	"github.com/hupe1980/percolate/codec"
	"github.com/hupe1980/percolate/index"
	"github.com/hupe1980/percolate/internal/cache"
	"github.com/hupe1980/percolate/internal/hash"
	"github.com/hupe1980/percolate/internal/memindex"
	"github.com/hupe1980/percolate/mapper"
	"github.com/hupe1980/percolate/mapping"
	"github.com/hupe1980/percolate/query"
	"github.com/hupe1980/percolate/search"
	"github.com/hupe1980/percolate/verify"
)

// SourceField is the stored field that keeps the original stored document.
const SourceField = "_source"

// ErrInvalidDocument is returned when a percolated document is not a JSON object.
var ErrInvalidDocument = memindex.ErrInvalidDocument

// Percolator stores queries and finds the stored queries matching documents.
// It is safe for concurrent use.
type Percolator struct {
	mapping *mapping.Mapping
	ft      mapper.FieldType
	fm      *mapper.FieldMapper
	builder candidate.Builder
	policy  verify.Policy
	opts    options
	queries *cache.ShardedLRU

	// mu orders commits against candidate resolution, so a candidate's document id
	// and stored query always belong together.
	mu     sync.RWMutex
	idx    *index.Index
	closed atomic.Bool
}

// New creates a Percolator whose stored queries and documents follow m.
func New(m *mapping.Mapping, optFns ...Option) (*Percolator, error) {
	if m == nil {
		return nil, errors.New("percolate: nil mapping")
	}
	o := applyOptions(optFns)

	ft, err := mapper.NewBuilder(o.fieldName).MapUnmappedFieldsAsText(o.mapUnmappedAsText).Build()
	if err != nil {
		return nil, err
	}

	p := &Percolator{
		mapping: m,
		ft:      ft,
		fm: mapper.NewFieldMapper(ft, m,
			mapper.WithResolver(o.resolver),
			mapper.WithCodec(o.codec),
			mapper.WithCompression(o.compression),
		),
		builder: candidate.Builder{Fields: ft.CandidateFields(), MaxClauseCount: o.maxClauseCount},
		policy:  verify.Policy{ExtractionResultField: ft.ExtractionResultField()},
		opts:    o,
		idx:     index.New(),
	}
	if o.queryCacheBytes > 0 {
		// Not charged to the shared memory limit: cached entries are only freed by
		// eviction, which would stall requests waiting on that limit.
		p.queries = cache.NewShardedLRU(o.queryCacheBytes, nil)
	}
	return p, nil
}

// FieldType returns the percolator field type.
func (p *Percolator) FieldType() mapper.FieldType { return p.ft }

// Source is a stored document to register.
type Source struct {
	ID       string
	Document []byte
}

// Register stores the query held by source under id, replacing any query stored
// under that id. source is a JSON object holding the query in the percolator field.
//
// A rejected query returns a *StoreRejectedError and leaves the index unchanged.
func (p *Percolator) Register(ctx context.Context, id string, source []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	start := time.Now()

	doc, parsed, err := p.prepare(ctx, id, source)
	if err == nil {
		p.mu.Lock()
		err = p.idx.Put(id, doc)
		p.mu.Unlock()
		err = rejected(id, err)
		p.forget(id)
	}

	p.opts.metricsCollector.RecordRegister(time.Since(start), err)
	p.opts.logger.LogRegister(ctx, id, parsed.Tags, err)
	return err
}

// RegisterBatch registers sources. Queries are analyzed in parallel and committed in
// order, so a later source wins over an earlier one with the same id. The returned
// slice holds one error per source, nil on success.
func (p *Percolator) RegisterBatch(ctx context.Context, sources []Source) []error {
	errs := make([]error, len(sources))
	if p.closed.Load() {
		for i := range errs {
			errs[i] = ErrClosed
		}
		return errs
	}
	start := time.Now()

	docs := p.prepareAll(ctx, sources, errs)

	p.mu.Lock()
	for i, doc := range docs {
		if errs[i] == nil {
			errs[i] = rejected(sources[i].ID, p.idx.Put(sources[i].ID, doc))
			p.forget(sources[i].ID)
		}
	}
	p.mu.Unlock()

	var failed int
	for i, err := range errs {
		if err != nil {
			failed++
			p.opts.logger.LogRegister(ctx, sources[i].ID, nil, err)
		}
	}
	p.opts.metricsCollector.RecordBatchRegister(len(sources), failed, time.Since(start))
	p.opts.logger.LogBatchRegister(ctx, len(sources), failed)
	return errs
}

// prepareAll analyzes sources in parallel. Failures are recorded in errs.
func (p *Percolator) prepareAll(ctx context.Context, sources []Source, errs []error) []*index.Document {
	docs := make([]*index.Document, len(sources))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			doc, _, err := p.prepare(ctx, src.ID, src.Document)
			docs[i], errs[i] = doc, err
			return nil
		})
	}
	_ = g.Wait()
	return docs
}

// prepare turns a stored document into an index document without touching the index.
func (p *Percolator) prepare(ctx context.Context, id string, source []byte) (*index.Document, mapper.Parsed, error) {
	if id == "" {
		return nil, mapper.Parsed{}, rejected(id, errors.New("empty id"))
	}

	var (
		obj map[string]any
		dec codec.GoJSON
	)
	if err := dec.UnmarshalUseNumber(source, &obj); err != nil {
		return nil, mapper.Parsed{}, rejected(id, fmt.Errorf("invalid source: %w", err))
	}
	if obj == nil {
		return nil, mapper.Parsed{}, rejected(id, errors.New("invalid source: expected object"))
	}

	q, err := p.storedQuery(obj)
	if err != nil {
		return nil, mapper.Parsed{}, rejected(id, err)
	}

	doc := &index.Document{Stored: map[string][]byte{SourceField: bytes.Clone(source)}}
	parsed, err := p.fm.Parse(ctx, doc, q)
	if err != nil {
		return nil, mapper.Parsed{}, rejected(id, err)
	}
	return doc, parsed, nil
}

// storedQuery finds the query in a stored document. The percolator field is looked
// up as a key and then as a dotted path through nested objects.
func (p *Percolator) storedQuery(obj map[string]any) (query.Query, error) {
	raw, ok := lookupPath(obj, p.ft.Name())
	if !ok || raw == nil {
		return nil, fmt.Errorf("%w: field %q", ErrMissingQuery, p.ft.Name())
	}

	if list, ok := raw.([]any); ok {
		if len(list) != 1 {
			return nil, ErrDuplicateQuery
		}
		raw = list[0]
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: field %q holds %T, expected a query object", query.ErrMalformed, p.ft.Name(), raw)
	}
	return query.FromMap(m)
}

func lookupPath(obj map[string]any, path string) (any, bool) {
	if v, ok := obj[path]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}
	child, ok := obj[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return lookupPath(child, rest)
}

// Delete removes the stored query with the given id.
func (p *Percolator) Delete(ctx context.Context, id string) error {
	if p.closed.Load() {
		return ErrClosed
	}
	start := time.Now()

	p.mu.Lock()
	err := translateError(p.idx.Delete(id))
	p.mu.Unlock()
	p.forget(id)

	p.opts.metricsCollector.RecordDelete(time.Since(start), err)
	p.opts.logger.LogDelete(ctx, id, err)
	return err
}

// Get returns the stored document registered under id.
func (p *Percolator) Get(id string) ([]byte, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	doc, ok := p.idx.Get(id)
	if !ok {
		return nil, false
	}
	return bytes.Clone(doc.Stored[SourceField]), true
}

// Len returns the number of stored queries.
func (p *Percolator) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.idx.Len()
}

// IDs returns the ids of all stored queries, sorted.
func (p *Percolator) IDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.idx.IDs()
}

// Match is a stored query matching at least one percolated document.
type Match struct {
	ID string
	// Slots are the positions of the matching documents in the request, ascending.
	Slots []int
	// Verified means the match was proven by extractions alone, without evaluation.
	Verified bool
}

// Failure is a stored query that could not be evaluated. It counts as a non-match.
type Failure struct {
	ID  string
	Err error
}

// Result is the outcome of a percolation request.
type Result struct {
	// Matches are sorted by ID.
	Matches []Match
	// Mode is the candidate query form that was used.
	Mode candidate.Mode
	// Query is the candidate query.
	Query search.Query
	// Candidates is the number of stored queries the candidate query selected.
	Candidates int
	// Evaluated is the number of candidates evaluated exactly.
	Evaluated int
	// Failures are sorted by ID.
	Failures []Failure
}

// IDs returns the ids of the matching stored queries.
func (r *Result) IDs() []string {
	ids := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		ids[i] = m.ID
	}
	return ids
}

// Percolate returns the stored queries matching at least one of docs. Each element
// of docs is a JSON object; its position is its slot.
//
// Stored queries that fail to evaluate are reported in Result.Failures and do not
// fail the request.
func (p *Percolator) Percolate(ctx context.Context, docs [][]byte, optFns ...PercolateOption) (*Result, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	var po percolateOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&po)
		}
	}

	start := time.Now()
	res, err := p.percolate(ctx, docs, po)
	elapsed := time.Since(start)

	var candidates, matches int
	if res != nil {
		candidates, matches = res.Candidates, len(res.Matches)
	}
	p.opts.metricsCollector.RecordPercolate(len(docs), candidates, matches, elapsed, err)
	p.opts.logger.LogPercolate(ctx, len(docs), res, elapsed, err)
	return res, err
}

func (p *Percolator) percolate(ctx context.Context, docs [][]byte, po percolateOptions) (*Result, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	rc := p.opts.resources
	if err := rc.Admit(ctx); err != nil {
		return nil, err
	}

	size, err := p.checkSize(docs)
	if err != nil {
		return nil, err
	}
	if err := rc.AcquireMemory(ctx, size); err != nil {
		return nil, err
	}
	defer rc.ReleaseMemory(size)

	mi, err := p.candidateIndex(docs)
	if err != nil {
		return nil, err
	}
	cq, mode := p.builder.Build(candidate.ExtractTermsAndRanges(mi))

	cands, blobs, err := p.resolveCandidates(cq, p.policy.VerifiedMatchesQuery(mode, mi.MaxDoc()))
	if err != nil {
		return nil, err
	}

	verifier := &verify.Verifier{
		Concurrency: p.opts.verificationWorkers,
		Workers:     rc,
		Logger:      p.opts.logger.Logger,
		Evaluator: verify.EvaluatorFunc(func(ctx context.Context, c verify.Candidate) ([]int, error) {
			blob, ok := blobs[c.DocID]
			if !ok {
				return nil, fmt.Errorf("stored query %q has no serialized query", c.ID)
			}
			q, err := p.decode(c.ID, blob)
			if err != nil {
				return nil, err
			}
			return mi.MatchingSlots(ctx, q, po.excludeNested)
		}),
	}
	outcomes, err := verifier.Verify(ctx, cands)
	if err != nil {
		return nil, err
	}

	res := &Result{Mode: mode, Query: cq, Candidates: len(cands)}
	for _, o := range outcomes {
		if o.Evaluated {
			res.Evaluated++
		}
		if o.Err != nil {
			res.Failures = append(res.Failures, Failure{ID: o.ID, Err: o.Err})
			continue
		}
		if o.Matched() {
			res.Matches = append(res.Matches, Match{ID: o.ID, Slots: o.Slots, Verified: !o.Evaluated})
		}
	}
	sort.Slice(res.Matches, func(i, j int) bool { return res.Matches[i].ID < res.Matches[j].ID })
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].ID < res.Failures[j].ID })

	p.opts.metricsCollector.RecordVerification(res.Evaluated, len(res.Failures))
	return res, nil
}

func (p *Percolator) checkSize(docs [][]byte) (int64, error) {
	var size int64
	for _, d := range docs {
		size += int64(len(d))
	}
	limit := p.opts.maxCandidateBytes
	if rc := p.opts.resources; rc != nil {
		if shared := rc.Config().MemoryLimitBytes; shared > 0 && (limit == 0 || shared < limit) {
			limit = shared
		}
	}
	if limit > 0 && size > limit {
		return 0, fmt.Errorf("%w: %d bytes, limit %d", ErrDocumentsTooLarge, size, limit)
	}
	return size, nil
}

func (p *Percolator) candidateIndex(docs [][]byte) (*memindex.Index, error) {
	var scripts memindex.ScriptEngine
	if p.opts.scripts != nil {
		scripts = p.opts.scripts
	}
	return memindex.Build(p.mapping, docs, memindex.Options{
		UnmappedAsText: p.ft.MapUnmappedFieldsAsText(),
		Scripts:        scripts,
		Logger:         p.opts.logger.Logger,
	})
}

// resolveCandidates runs the candidate and verified-match queries and captures the
// serialized query of every candidate that needs evaluation.
func (p *Percolator) resolveCandidates(cq, verifiedQ search.Query) ([]verify.Candidate, map[uint32][]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	hits, err := p.idx.Search(cq)
	if err != nil {
		return nil, nil, err
	}
	verified, err := p.idx.Search(verifiedQ)
	if err != nil {
		return nil, nil, err
	}

	cands := make([]verify.Candidate, 0, hits.GetCardinality())
	blobs := make(map[uint32][]byte)
	it := hits.Iterator()
	for it.HasNext() {
		docID := it.Next()
		id, ok := p.idx.ExternalID(docID)
		if !ok {
			continue
		}
		c := verify.Candidate{DocID: docID, ID: id, Verified: verified.Contains(docID)}
		if !c.Verified {
			if blob, ok := p.idx.Stored(docID, p.ft.QueryBuilderField()); ok {
				blobs[docID] = blob
			}
		}
		cands = append(cands, c)
	}
	return cands, blobs, nil
}

// decode returns the stored query serialized in blob, using the query cache.
func (p *Percolator) decode(id string, blob []byte) (query.Query, error) {
	if p.queries == nil {
		return p.fm.Decode(blob)
	}
	h1, h2 := hash.Sum128(blob)
	key := cache.Key{ID: id, H1: h1, H2: h2}
	if q, ok := p.queries.Get(key); ok {
		return q, nil
	}
	q, err := p.fm.Decode(blob)
	if err != nil {
		return nil, err
	}
	p.queries.Set(key, q, int64(len(blob)))
	return q, nil
}

// forget drops cached decodings of id. Keys include a hash of the serialized query,
// so this only frees memory early.
func (p *Percolator) forget(id string) {
	if p.queries != nil {
		p.queries.Forget(id)
	}
}

// CandidateQuery returns the candidate query Percolate would run for docs.
func (p *Percolator) CandidateQuery(ctx context.Context, docs [][]byte) (search.Query, candidate.Mode, error) {
	if p.closed.Load() {
		return nil, 0, ErrClosed
	}
	if len(docs) == 0 {
		return nil, 0, ErrNoDocuments
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	mi, err := p.candidateIndex(docs)
	if err != nil {
		return nil, 0, err
	}
	q, mode := p.builder.Build(candidate.ExtractTermsAndRanges(mi))
	return q, mode, nil
}

// Close releases the Percolator. Later calls fail with ErrClosed.
func (p *Percolator) Close() error {
	if p == nil {
		return nil
	}
	p.closed.Store(true)
	if p.queries != nil {
		p.queries.Purge()
	}
	return nil
}
