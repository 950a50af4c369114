package percolate

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/percolate/blobstore"
	"github.com/hupe1980/percolate/candidate"
	"github.com/hupe1980/percolate/internal/hash"
	"github.com/hupe1980/percolate/internal/memindex"
	"github.com/hupe1980/percolate/mapper"
	"github.com/hupe1980/percolate/mapping"
	"github.com/hupe1980/percolate/metadata"
	"github.com/hupe1980/percolate/query"
	"github.com/hupe1980/percolate/resource"
	"github.com/hupe1980/percolate/testutil"
)

func testMapping(t *testing.T) *mapping.Mapping {
	t.Helper()
	m, err := mapping.NewBuilder().
		Keyword("status").
		Keyword("a").
		Keyword("b").
		Long("age").
		Text("body").
		Nested("comments").
		Keyword("comments.author").
		Build()
	require.NoError(t, err)
	return m
}

func newTestPercolator(t *testing.T, opts ...Option) *Percolator {
	t.Helper()
	p, err := New(testMapping(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func stored(q string) []byte {
	return []byte(`{"query":` + q + `}`)
}

func docs(s ...string) [][]byte {
	out := make([][]byte, len(s))
	for i, d := range s {
		out[i] = []byte(d)
	}
	return out
}

func TestPercolate_SingleDocumentIsVerified(t *testing.T) {
	ctx := context.Background()
	p := newTestPercolator(t)
	require.NoError(t, p.Register(ctx, "ok", stored(`{"term":{"status":"ok"}}`)))

	res, err := p.Percolate(ctx, docs(`{"status":"ok"}`))
	require.NoError(t, err)

	assert.Equal(t, candidate.ModeCovering, res.Mode)
	assert.Equal(t, []Match{{ID: "ok", Slots: []int{0}, Verified: true}}, res.Matches)
	assert.Equal(t, 1, res.Candidates)
	assert.Zero(t, res.Evaluated)
	assert.Empty(t, res.Failures)
}

func TestPercolate_MultipleDocumentsForceEvaluation(t *testing.T) {
	ctx := context.Background()
	p := newTestPercolator(t)
	require.NoError(t, p.Register(ctx, "ok", stored(`{"term":{"status":"ok"}}`)))

	res, err := p.Percolate(ctx, docs(`{"status":"bad"}`, `{"status":"ok"}`))
	require.NoError(t, err)

	assert.Equal(t, []Match{{ID: "ok", Slots: []int{1}}}, res.Matches)
	assert.Equal(t, 1, res.Evaluated)
}

func TestPercolate_Conjunction(t *testing.T) {
	ctx := context.Background()
	p := newTestPercolator(t)
	require.NoError(t, p.Register(ctx, "both", stored(`{"bool":{"must":[{"term":{"a":"1"}},{"term":{"b":"2"}}]}}`)))

	tests := []struct {
		name    string
		doc     string
		matched bool
	}{
		{"Both", `{"a":"1","b":"2"}`, true},
		{"OnlyA", `{"a":"1"}`, false},
		{"OnlyB", `{"b":"2"}`, false},
		{"Neither", `{"a":"2","b":"1"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Percolate(ctx, docs(tt.doc))
			require.NoError(t, err)
			if tt.matched {
				assert.Equal(t, []string{"both"}, res.IDs())
			} else {
				assert.Empty(t, res.Matches)
			}
		})
	}
}

func TestPercolate_NegationIsAlwaysEvaluated(t *testing.T) {
	ctx := context.Background()
	p := newTestPercolator(t)
	require.NoError(t, p.Register(ctx, "not-a", stored(`{"bool":{"must_not":[{"term":{"a":"1"}}]}}`)))
	require.NoError(t, p.Register(ctx, "b-not-a", stored(`{"bool":{"must":[{"term":{"b":"2"}}],"must_not":[{"term":{"a":"1"}}]}}`)))

	res, err := p.Percolate(ctx, docs(`{"status":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"not-a"}, res.IDs())
	assert.False(t, res.Matches[0].Verified)

	res, err = p.Percolate(ctx, docs(`{"a":"1","b":"2"}`))
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.Equal(t, 2, res.Evaluated)

	res, err = p.Percolate(ctx, docs(`{"b":"2"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"b-not-a", "not-a"}, res.IDs())
}

func TestPercolate_Ranges(t *testing.T) {
	ctx := context.Background()
	p := newTestPercolator(t)
	require.NoError(t, p.Register(ctx, "adult", stored(`{"range":{"age":{"gte":18}}}`)))
	require.NoError(t, p.Register(ctx, "teen", stored(`{"range":{"age":{"gte":13,"lt":20}}}`)))

	res, err := p.Percolate(ctx, docs(`{"age":19}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"adult", "teen"}, res.IDs())

	res, err = p.Percolate(ctx, docs(`{"age":20}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"adult"}, res.IDs())

	res, err = p.Percolate(ctx, docs(`{"age":5}`))
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
}

func TestPercolate_TermInSetMode(t *testing.T) {
	ctx := context.Background()
	p := newTestPercolator(t, WithMaxClauseCount(2))
	require.NoError(t, p.Register(ctx, "ok", stored(`{"term":{"status":"ok"}}`)))

	res, err := p.Percolate(ctx, docs(`{"status":"ok","a":"1","b":"2"}`))
	require.NoError(t, err)
	assert.Equal(t, candidate.ModeTermInSet, res.Mode)
	assert.Equal(t, []Match{{ID: "ok", Slots: []int{0}}}, res.Matches)
	assert.Equal(t, 1, res.Evaluated)
}

func TestPercolate_ExcludeNestedDocuments(t *testing.T) {
	ctx := context.Background()
	p := newTestPercolator(t)
	require.NoError(t, p.Register(ctx, "author", stored(`{"term":{"comments.author":"alice"}}`)))
	require.NoError(t, p.Register(ctx, "nested", stored(`{"nested":{"path":"comments","query":{"term":{"comments.author":"alice"}}}}`)))

	doc := docs(`{"comments":[{"author":"alice"}]}`)

	res, err := p.Percolate(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"author", "nested"}, res.IDs())
	for _, m := range res.Matches {
		assert.False(t, m.Verified, m.ID)
	}

	res, err = p.Percolate(ctx, doc, ExcludeNestedDocuments(true))
	require.NoError(t, err)
	assert.Equal(t, []string{"nested"}, res.IDs())
}

func TestPercolate_VerificationFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	mc := &BasicMetricsCollector{}
	p := newTestPercolator(t,
		WithLogger(NewLogger(slog.NewTextHandler(&logs, nil))),
		WithMetricsCollector(mc),
	)
	require.NoError(t, p.Register(ctx, "script", stored(`{"script":{"script":{"source":"doc['status'] == 'ok'"}}}`)))
	require.NoError(t, p.Register(ctx, "ok", stored(`{"term":{"status":"ok"}}`)))

	res, err := p.Percolate(ctx, docs(`{"status":"ok"}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"ok"}, res.IDs())
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "script", res.Failures[0].ID)
	assert.ErrorIs(t, res.Failures[0].Err, memindex.ErrNotEvaluable)
	assert.Contains(t, logs.String(), "id=script")
	assert.Equal(t, int64(1), mc.GetStats().VerificationFailed)
}

func TestPercolate_UnknownClauseIsAlwaysCandidate(t *testing.T) {
	ctx := context.Background()
	p := newTestPercolator(t)
	require.NoError(t, p.Register(ctx, "scripted",
		stored(`{"bool":{"must":[{"term":{"a":"1"}},{"script":{"script":"true"}}]}}`)))
	require.NoError(t, p.Register(ctx, "term", stored(`{"term":{"a":"1"}}`)))

	doc, ok := p.idx.Get("scripted")
	require.True(t, ok)
	assert.Equal(t, []mapper.ExtractionResult{mapper.ExtractionFailed}, p.fm.Tags(doc))

	res, err := p.Percolate(ctx, docs(`{"a":"2","b":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Candidates)
	assert.Empty(t, res.Matches)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "scripted", res.Failures[0].ID)
}

func TestPercolate_ScriptEngine(t *testing.T) {
	ctx := context.Background()
	engine := ScriptFunc(func(_ context.Context, s *query.Script, src metadata.Document) (bool, error) {
		for _, v := range src["status"] {
			if v.StringValue() == s.Source {
				return true, nil
			}
		}
		return false, nil
	})
	p := newTestPercolator(t, WithScriptEngine(engine))
	require.NoError(t, p.Register(ctx, "script", stored(`{"script":{"script":"ok"}}`)))

	res, err := p.Percolate(ctx, docs(`{"status":"nope"}`, `{"status":"ok"}`))
	require.NoError(t, err)
	assert.Equal(t, []Match{{ID: "script", Slots: []int{1}}}, res.Matches)
	assert.Empty(t, res.Failures)
}

func TestPercolate_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("NoDocuments", func(t *testing.T) {
		p := newTestPercolator(t)
		_, err := p.Percolate(ctx, nil)
		assert.ErrorIs(t, err, ErrNoDocuments)
	})

	t.Run("InvalidDocument", func(t *testing.T) {
		p := newTestPercolator(t)
		_, err := p.Percolate(ctx, docs(`[1,2]`))
		assert.ErrorIs(t, err, ErrInvalidDocument)
	})

	t.Run("TooLarge", func(t *testing.T) {
		p := newTestPercolator(t, WithMaxCandidateBytes(8))
		_, err := p.Percolate(ctx, docs(`{"status":"too long"}`))
		assert.ErrorIs(t, err, ErrDocumentsTooLarge)
	})

	t.Run("SharedMemoryLimit", func(t *testing.T) {
		p := newTestPercolator(t, WithResourceLimits(resource.Config{MemoryLimitBytes: 8}))
		_, err := p.Percolate(ctx, docs(`{"status":"too long"}`))
		assert.ErrorIs(t, err, ErrDocumentsTooLarge)
	})

	t.Run("Canceled", func(t *testing.T) {
		p := newTestPercolator(t, WithResourceLimits(resource.Config{MaxVerificationWorkers: 1}))
		require.NoError(t, p.Register(ctx, "ok", stored(`{"term":{"status":"ok"}}`)))

		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := p.Percolate(canceled, docs(`{"status":"ok"}`, `{"status":"ok"}`))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Closed", func(t *testing.T) {
		p := newTestPercolator(t)
		require.NoError(t, p.Close())
		_, err := p.Percolate(ctx, docs(`{}`))
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, p.Register(ctx, "x", stored(`{"match_all":{}}`)), ErrClosed)
		assert.ErrorIs(t, p.Delete(ctx, "x"), ErrClosed)
	})
}

func TestRegister_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		source string
		want   error
	}{
		{"Duplicate", "dup", `{"query":[{"term":{"a":"1"}},{"term":{"a":"2"}}]}`, ErrDuplicateQuery},
		{"Join", "join", `{"query":{"has_child":{"type":"c","query":{"match_all":{}}}}}`, ErrJoinQuery},
		{"Unmapped", "unmapped", `{"query":{"term":{"unknown":"x"}}}`, ErrUnmappedField},
		{"Missing", "missing", `{"other":{"term":{"a":"1"}}}`, ErrMissingQuery},
		{"Malformed", "malformed", `{"query":{"term":{}}}`, query.ErrMalformed},
		{"NotObject", "array", `[]`, nil},
		{"InvalidJSON", "broken", `{"query":`, nil},
		{"NullSource", "null", `null`, nil},
		{"EmptyID", "", `{"query":{"match_all":{}}}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPercolator(t)
			err := p.Register(context.Background(), tt.id, []byte(tt.source))
			require.Error(t, err)

			var sre *StoreRejectedError
			require.True(t, errors.As(err, &sre))
			assert.Equal(t, tt.id, sre.ID)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Zero(t, p.Len())
		})
	}
}

func TestRegister_UnmappedFieldsAsText(t *testing.T) {
	ctx := context.Background()
	p := newTestPercolator(t, WithMapUnmappedFieldsAsText(true))
	require.NoError(t, p.Register(ctx, "title", stored(`{"match":{"title":"Quick Fox"}}`)))

	res, err := p.Percolate(ctx, docs(`{"title":"the quick brown fox"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"title"}, res.IDs())
}

func TestRegister_NestedFieldName(t *testing.T) {
	ctx := context.Background()
	p := newTestPercolator(t, WithFieldName("meta.query"))

	require.NoError(t, p.Register(ctx, "dotted", []byte(`{"meta.query":{"term":{"a":"1"}}}`)))
	require.NoError(t, p.Register(ctx, "object", []byte(`{"meta":{"query":{"term":{"a":"1"}}}}`)))

	res, err := p.Percolate(ctx, docs(`{"a":"1"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"dotted", "object"}, res.IDs())
}

func TestRegister_ReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	mc := &BasicMetricsCollector{}
	p := newTestPercolator(t, WithMetricsCollector(mc))

	require.NoError(t, p.Register(ctx, "q", stored(`{"term":{"a":"1"}}`)))
	require.NoError(t, p.Register(ctx, "q", stored(`{"term":{"a":"2"}}`)))
	assert.Equal(t, 1, p.Len())

	src, ok := p.Get("q")
	require.True(t, ok)
	assert.JSONEq(t, `{"query":{"term":{"a":"2"}}}`, string(src))

	res, err := p.Percolate(ctx, docs(`{"a":"1"}`))
	require.NoError(t, err)
	assert.Empty(t, res.Matches)

	require.NoError(t, p.Delete(ctx, "q"))
	assert.ErrorIs(t, p.Delete(ctx, "q"), ErrNotFound)
	_, ok = p.Get("q")
	assert.False(t, ok)
	assert.Zero(t, p.Len())

	stats := mc.GetStats()
	assert.Equal(t, int64(2), stats.RegisterCount)
	assert.Equal(t, int64(2), stats.DeleteCount)
	assert.Equal(t, int64(1), stats.DeleteErrors)
	assert.Equal(t, int64(1), stats.PercolateCount)
}

func TestRegisterBatch(t *testing.T) {
	ctx := context.Background()
	mc := &BasicMetricsCollector{}
	p := newTestPercolator(t, WithMetricsCollector(mc))

	errs := p.RegisterBatch(ctx, []Source{
		{ID: "a", Document: stored(`{"term":{"a":"1"}}`)},
		{ID: "bad", Document: stored(`{"term":{"unknown":"1"}}`)},
		{ID: "b", Document: stored(`{"term":{"b":"1"}}`)},
		{ID: "a", Document: stored(`{"term":{"a":"2"}}`)},
	})
	require.Len(t, errs, 4)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], ErrUnmappedField)
	assert.NoError(t, errs[2])
	assert.NoError(t, errs[3])

	assert.Equal(t, []string{"a", "b"}, p.IDs())

	res, err := p.Percolate(ctx, docs(`{"a":"2"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.IDs())

	stats := mc.GetStats()
	assert.Equal(t, int64(4), stats.BatchRegisterItems)
	assert.Equal(t, int64(1), stats.BatchRegisterFailed)
}

func TestCandidateQuery(t *testing.T) {
	p := newTestPercolator(t)
	q, mode, err := p.CandidateQuery(context.Background(), docs(`{"status":"ok","age":3}`))
	require.NoError(t, err)
	assert.Equal(t, candidate.ModeCovering, mode)
	assert.NotNil(t, q)

	_, _, err = p.CandidateQuery(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoDocuments)
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	p := newTestPercolator(t)
	for i := range 20 {
		require.NoError(t, p.Register(ctx, fmt.Sprintf("q%02d", i), stored(fmt.Sprintf(`{"range":{"age":{"gte":%d}}}`, i))))
	}
	require.NoError(t, p.Snapshot(ctx, store, "snap/1"))

	restored := newTestPercolator(t)
	require.NoError(t, restored.Register(ctx, "stale", stored(`{"match_all":{}}`)))
	require.NoError(t, restored.Restore(ctx, store, "snap/1"))

	assert.Equal(t, p.IDs(), restored.IDs())
	for _, id := range p.IDs() {
		want, _ := p.Get(id)
		got, ok := restored.Get(id)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	want, err := p.Percolate(ctx, docs(`{"age":5}`))
	require.NoError(t, err)
	got, err := restored.Percolate(ctx, docs(`{"age":5}`))
	require.NoError(t, err)
	assert.Equal(t, want.IDs(), got.IDs())
	assert.Len(t, got.Matches, 6)
}

func TestRestore_Invalid(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	p := newTestPercolator(t)
	require.NoError(t, p.Register(ctx, "a", stored(`{"term":{"a":"1"}}`)))
	require.NoError(t, p.Snapshot(ctx, store, "good"))

	good, err := blobstore.ReadAll(ctx, store, "good")
	require.NoError(t, err)

	corrupt := bytes.Clone(good)
	corrupt[len(corrupt)/2] ^= 0xff
	require.NoError(t, store.Put(ctx, "corrupt", corrupt))
	require.NoError(t, store.Put(ctx, "garbage", []byte("not a snapshot")))
	require.NoError(t, store.Put(ctx, "empty", nil))

	for _, name := range []string{"corrupt", "garbage", "empty"} {
		t.Run(name, func(t *testing.T) {
			target := newTestPercolator(t)
			require.NoError(t, target.Register(ctx, "keep", stored(`{"match_all":{}}`)))

			assert.Error(t, target.Restore(ctx, store, name))
			assert.Equal(t, []string{"keep"}, target.IDs())
		})
	}

	t.Run("Missing", func(t *testing.T) {
		assert.ErrorIs(t, p.Restore(ctx, store, "absent"), blobstore.ErrNotFound)
	})

	t.Run("RejectedQuery", func(t *testing.T) {
		// The restoring side has no mapping for a, so the stored query is rejected.
		m, err := mapping.NewBuilder().Keyword("status").Build()
		require.NoError(t, err)
		target, err := New(m)
		require.NoError(t, err)
		require.NoError(t, target.Register(ctx, "keep", stored(`{"term":{"status":"x"}}`)))

		err = target.Restore(ctx, store, "good")
		assert.ErrorIs(t, err, ErrUnmappedField)
		assert.Equal(t, []string{"keep"}, target.IDs())
	})
}

func TestDecodeSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"Short", []byte("PRC")},
		{"BadMagic", withCRC([]byte("XXXX\x01\x00"))},
		{"BadVersion", withCRC([]byte("PRCL\x09\x00"))},
		{"CountTooLarge", withCRC([]byte("PRCL\x01\x7f"))},
		{"TruncatedEntry", withCRC([]byte("PRCL\x01\x01\x05ab\x00"))},
		{"TrailingBytes", withCRC([]byte("PRCL\x01\x00\x00"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeSnapshot(tt.payload)
			assert.ErrorIs(t, err, ErrInvalidSnapshot)
		})
	}

	entries, err := decodeSnapshot(withCRC([]byte("PRCL\x01\x01\x01a\x02{}")))
	require.NoError(t, err)
	assert.Equal(t, []Source{{ID: "a", Document: []byte("{}")}}, entries)
}

func withCRC(body []byte) []byte {
	return binary.LittleEndian.AppendUint32(bytes.Clone(body), hash.CRC32C(body))
}

// Percolate never misses a stored query that matches under exact evaluation, and
// reports the same slots.
func TestPercolate_Soundness(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(20240611)
	m := testutil.Mapping()

	p, err := New(m, WithVerificationConcurrency(4))
	require.NoError(t, err)
	defer p.Close()

	queries := make(map[string]query.Query)
	for i := range 300 {
		body := rng.Query(3)
		src, err := json.Marshal(map[string]any{"query": body})
		require.NoError(t, err)

		id := fmt.Sprintf("q%03d", i)
		require.NoError(t, p.Register(ctx, id, src), string(src))
		queries[id], err = query.FromMap(body)
		require.NoError(t, err)
	}

	for round := range 40 {
		batch := make([][]byte, 1+rng.Intn(3))
		for i := range batch {
			batch[i], err = json.Marshal(rng.Document())
			require.NoError(t, err)
		}

		mi, err := memindex.Build(m, batch, memindex.Options{})
		require.NoError(t, err)
		want := make(map[string][]int)
		for id, q := range queries {
			slots, err := mi.MatchingSlots(ctx, q, false)
			require.NoError(t, err)
			if len(slots) > 0 {
				want[id] = slots
			}
		}

		res, err := p.Percolate(ctx, batch)
		require.NoError(t, err)
		require.Empty(t, res.Failures)

		got := make(map[string][]int, len(res.Matches))
		for _, match := range res.Matches {
			got[match.ID] = match.Slots
		}
		assert.Equal(t, want, got, "round %d, seed %d", round, rng.Seed())
	}
}

func TestPercolate_QueryCache(t *testing.T) {
	ctx := context.Background()
	p := newTestPercolator(t)
	require.NoError(t, p.Register(ctx, "ok", stored(`{"term":{"status":"ok"}}`)))

	two := docs(`{"status":"ok"}`, `{"status":"ok"}`)
	for range 3 {
		res, err := p.Percolate(ctx, two)
		require.NoError(t, err)
		assert.Equal(t, []string{"ok"}, res.IDs())
	}
	hits, misses := p.queries.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)

	// A replaced query is decoded afresh.
	require.NoError(t, p.Register(ctx, "ok", stored(`{"term":{"status":"nope"}}`)))
	assert.Zero(t, p.queries.Len())
	res, err := p.Percolate(ctx, two)
	require.NoError(t, err)
	assert.Empty(t, res.Matches)

	disabled := newTestPercolator(t, WithQueryCacheBytes(0))
	assert.Nil(t, disabled.queries)
}
