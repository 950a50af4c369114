// Package verify decides which candidate stored queries are matches.
//
// A candidate is either a verified match already, because its extractions alone
// prove the match, or it is evaluated exactly against the percolated documents. A
// stored query that fails to evaluate is a non-match for that request only.
package verify

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/percolate/candidate"
	"github.com/hupe1980/percolate/mapper"
	"github.com/hupe1980/percolate/resource"
	"github.com/hupe1980/percolate/search"
)

// NoShortcutReason explains why no candidate counts as verified.
const NoShortcutReason = "multiple or nested docs or covering query could not be used"

// Policy selects the stored queries that match without evaluation.
type Policy struct {
	// ExtractionResultField is the field holding extraction-result tags.
	ExtractionResultField string
}

// VerifiedMatchesQuery returns the query selecting verified matches. Only a covering
// candidate query over a single document without nested documents can prove a
// match: with more documents, terms of different documents are indistinguishable.
func (p Policy) VerifiedMatchesQuery(mode candidate.Mode, maxDoc int) search.Query {
	if mode == candidate.ModeCovering && maxDoc == 1 {
		return &search.TermQuery{Field: p.ExtractionResultField, Term: []byte(mapper.ExtractionComplete)}
	}
	return &search.MatchNoDocsQuery{Reason: NoShortcutReason}
}

// Candidate is a stored query selected by the candidate query.
type Candidate struct {
	DocID uint32
	ID    string
	// Verified means the stored query is known to match without evaluation.
	Verified bool
}

// Outcome is the verdict for one candidate.
type Outcome struct {
	Candidate
	// Slots are the matching document slots, ascending. Empty means no match.
	Slots []int
	// Evaluated is set when the stored query was run against the documents.
	Evaluated bool
	// Err is the evaluation failure, if any. A failed candidate never matches.
	Err error
}

// Matched reports whether the candidate matched at least one document.
func (o Outcome) Matched() bool { return len(o.Slots) > 0 }

// Evaluator runs a stored query exactly against the percolated documents.
type Evaluator interface {
	Evaluate(ctx context.Context, c Candidate) (slots []int, err error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, c Candidate) ([]int, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, c Candidate) ([]int, error) {
	return f(ctx, c)
}

// Verifier evaluates candidates in parallel.
type Verifier struct {
	// Concurrency bounds parallel evaluations of one Verify call. Defaults to 1.
	Concurrency int
	Evaluator   Evaluator
	// Workers, if set, bounds evaluations across all Verify calls.
	Workers *resource.Controller
	// Logger receives verification failures. Nil discards them.
	Logger *slog.Logger
}

// Verify returns one outcome per candidate, in input order. Verified candidates
// match slot 0, since verification is only skipped for single-document requests.
// Evaluation failures are logged and recorded on the outcome. Only cancellation of
// ctx fails the whole call.
func (v *Verifier) Verify(ctx context.Context, cands []Candidate) ([]Outcome, error) {
	logger := v.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	out := make([]Outcome, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, v.Concurrency))

	for i, c := range cands {
		if c.Verified {
			out[i] = Outcome{Candidate: c, Slots: []int{0}}
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := v.Workers.AcquireWorker(gctx); err != nil {
				return err
			}
			defer v.Workers.ReleaseWorker()

			slots, err := v.Evaluator.Evaluate(gctx, c)
			if err != nil {
				if gctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
					return err
				}
				logger.Warn("stored query verification failed", "id", c.ID, "error", err)
				out[i] = Outcome{Candidate: c, Evaluated: true, Err: err}
				return nil
			}
			out[i] = Outcome{Candidate: c, Slots: slots, Evaluated: true}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
