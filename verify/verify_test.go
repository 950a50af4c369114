package verify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/percolate/candidate"
	"github.com/hupe1980/percolate/resource"
	"github.com/hupe1980/percolate/search"
)

func TestPolicy_VerifiedMatchesQuery(t *testing.T) {
	p := Policy{ExtractionResultField: "query.extraction_result"}

	tests := []struct {
		name   string
		mode   candidate.Mode
		maxDoc int
		want   search.Query
	}{
		{"CoveringSingleDoc", candidate.ModeCovering, 1, &search.TermQuery{Field: "query.extraction_result", Term: []byte("complete")}},
		{"CoveringMultipleDocs", candidate.ModeCovering, 2, &search.MatchNoDocsQuery{Reason: NoShortcutReason}},
		{"TermInSetSingleDoc", candidate.ModeTermInSet, 1, &search.MatchNoDocsQuery{Reason: NoShortcutReason}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.VerifiedMatchesQuery(tt.mode, tt.maxDoc))
		})
	}
}

func TestVerifier_Verify(t *testing.T) {
	var calls atomic.Int32
	eval := EvaluatorFunc(func(_ context.Context, c Candidate) ([]int, error) {
		calls.Add(1)
		switch c.ID {
		case "broken":
			return nil, errors.New("schema drift")
		case "miss":
			return nil, nil
		default:
			return []int{0, 2}, nil
		}
	})

	var logs bytes.Buffer
	v := &Verifier{
		Concurrency: 4,
		Evaluator:   eval,
		Workers:     resource.NewController(resource.Config{MaxVerificationWorkers: 2}),
		Logger:      slog.New(slog.NewTextHandler(&logs, nil)),
	}

	out, err := v.Verify(context.Background(), []Candidate{
		{DocID: 1, ID: "fast", Verified: true},
		{DocID: 2, ID: "hit"},
		{DocID: 3, ID: "broken"},
		{DocID: 4, ID: "miss"},
	})
	require.NoError(t, err)
	require.Len(t, out, 4)

	assert.Equal(t, int32(3), calls.Load())

	assert.True(t, out[0].Matched())
	assert.False(t, out[0].Evaluated)
	assert.Equal(t, []int{0}, out[0].Slots)

	assert.Equal(t, []int{0, 2}, out[1].Slots)
	assert.True(t, out[1].Evaluated)

	assert.False(t, out[2].Matched())
	assert.EqualError(t, out[2].Err, "schema drift")
	assert.Contains(t, logs.String(), "stored query verification failed")
	assert.Contains(t, logs.String(), "id=broken")

	assert.False(t, out[3].Matched())
	assert.NoError(t, out[3].Err)
}

func TestVerifier_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eval := EvaluatorFunc(func(ctx context.Context, _ Candidate) ([]int, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})

	v := &Verifier{Evaluator: eval}
	_, err := v.Verify(ctx, []Candidate{{ID: "a"}, {ID: "b"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerifier_Empty(t *testing.T) {
	v := &Verifier{}
	out, err := v.Verify(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
