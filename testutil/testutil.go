package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"

	"github.com/hupe1980/percolate/mapping"
)

// Schema fields.
var (
	KeywordFields = []string{"status", "tag", "owner"}
	Values        = []string{"red", "green", "blue", "cyan", "black", "white"}
	Words         = []string{"quick", "brown", "fox", "jumps", "over", "lazy", "dog"}
)

const (
	LongField    = "age"
	TextField    = "body"
	NestedPath   = "comments"
	NestedField  = "comments.author"
	maxLong      = 20
	zipfExponent = 1.2
)

// Mapping returns the mapping of the generated documents.
func Mapping() *mapping.Mapping {
	b := mapping.NewBuilder()
	for _, f := range KeywordFields {
		b.Keyword(f)
	}
	m, err := b.Long(LongField).Text(TextField).Nested(NestedPath).Keyword(NestedField).Build()
	if err != nil {
		panic(err)
	}
	return m
}

// RNG wraps a seeded random source. It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Zipf returns a Zipfian-distributed value in [0, n), with P(k) proportional to
// 1/(k+1)^s.
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zipfLocked(n, s)
}

func (r *RNG) zipfLocked(n int, s float64) int {
	if n <= 1 {
		return 0
	}

	var hns float64
	for i := 1; i <= n; i++ {
		hns += 1.0 / math.Pow(float64(i), s)
	}

	u := r.rand.Float64() * hns
	var cumulative float64
	for k := 1; k <= n; k++ {
		cumulative += 1.0 / math.Pow(float64(k), s)
		if u <= cumulative {
			return k - 1
		}
	}
	return n - 1
}

// SparseFields reports for each of n fields whether it is present.
// missingRate is the probability that a field is missing.
func (r *RNG) SparseFields(n int, missingRate float64) []bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	present := make([]bool, n)
	for i := range n {
		present[i] = r.rand.Float64() >= missingRate
	}
	return present
}

func (r *RNG) value() string { return Values[r.zipfLocked(len(Values), zipfExponent)] }
func (r *RNG) word() string  { return Words[r.zipfLocked(len(Words), zipfExponent)] }
func (r *RNG) keyword() string {
	return KeywordFields[r.rand.Intn(len(KeywordFields))]
}

// Document returns a random source document. Each keyword field is present with
// probability 0.7 and may hold several values.
func (r *RNG) Document() map[string]any {
	present := r.SparseFields(len(KeywordFields)+3, 0.3)

	r.mu.Lock()
	defer r.mu.Unlock()

	doc := make(map[string]any)
	for i, f := range KeywordFields {
		if !present[i] {
			continue
		}
		if r.rand.Intn(3) == 0 {
			doc[f] = []any{r.value(), r.value()}
		} else {
			doc[f] = r.value()
		}
	}
	if present[len(KeywordFields)] {
		doc[LongField] = r.rand.Intn(maxLong)
	}
	if present[len(KeywordFields)+1] {
		words := make([]string, 1+r.rand.Intn(5))
		for i := range words {
			words[i] = r.word()
		}
		doc[TextField] = strings.Join(words, " ")
	}
	if present[len(KeywordFields)+2] {
		comments := make([]any, 1+r.rand.Intn(2))
		for i := range comments {
			comments[i] = map[string]any{"author": r.value()}
		}
		doc[NestedPath] = comments
	}
	return doc
}

// Query returns a random stored query in DSL form. depth bounds the nesting of
// compound queries.
func (r *RNG) Query(depth int) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queryLocked(depth)
}

func (r *RNG) queryLocked(depth int) map[string]any {
	n := 11
	if depth > 0 {
		n = 15
	}
	switch r.rand.Intn(n) {
	case 0, 1:
		return map[string]any{"term": map[string]any{r.keyword(): r.value()}}
	case 2:
		vals := make([]any, 1+r.rand.Intn(3))
		for i := range vals {
			vals[i] = r.value()
		}
		return map[string]any{"terms": map[string]any{r.keyword(): vals}}
	case 3:
		return map[string]any{"range": map[string]any{LongField: r.rangeLocked()}}
	case 4:
		body := map[string]any{"query": r.word() + " " + r.word()}
		if r.rand.Intn(2) == 0 {
			body["operator"] = "and"
		}
		return map[string]any{"match": map[string]any{TextField: body}}
	case 5:
		return map[string]any{"match_phrase": map[string]any{TextField: r.word() + " " + r.word()}}
	case 6:
		return map[string]any{"exists": map[string]any{"field": r.keyword()}}
	case 7:
		return map[string]any{"prefix": map[string]any{r.keyword(): r.value()[:1]}}
	case 8:
		return map[string]any{"wildcard": map[string]any{r.keyword(): "*" + r.value()[1:2] + "*"}}
	case 9:
		return map[string]any{"term": map[string]any{LongField: r.rand.Intn(maxLong)}}
	case 10:
		switch r.rand.Intn(4) {
		case 0:
			return map[string]any{"match_all": map[string]any{}}
		case 1:
			return map[string]any{"match_none": map[string]any{}}
		default:
			return map[string]any{"term": map[string]any{r.keyword(): r.value()}}
		}
	case 11:
		return map[string]any{"nested": map[string]any{
			"path":  NestedPath,
			"query": map[string]any{"term": map[string]any{NestedField: r.value()}},
		}}
	case 12:
		return map[string]any{"constant_score": map[string]any{"filter": r.queryLocked(depth - 1)}}
	case 13:
		qs := make([]any, 1+r.rand.Intn(3))
		for i := range qs {
			qs[i] = r.queryLocked(depth - 1)
		}
		return map[string]any{"dis_max": map[string]any{"queries": qs}}
	default:
		return r.boolLocked(depth)
	}
}

func (r *RNG) rangeLocked() map[string]any {
	lo := r.rand.Intn(maxLong)
	hi := lo + r.rand.Intn(maxLong-lo)
	out := make(map[string]any)
	switch r.rand.Intn(3) {
	case 0:
		out[[]string{"gt", "gte"}[r.rand.Intn(2)]] = lo
	case 1:
		out[[]string{"lt", "lte"}[r.rand.Intn(2)]] = hi
	default:
		out[[]string{"gt", "gte"}[r.rand.Intn(2)]] = lo
		out[[]string{"lt", "lte"}[r.rand.Intn(2)]] = hi
	}
	return out
}

func (r *RNG) boolLocked(depth int) map[string]any {
	body := make(map[string]any)
	for _, occur := range []string{"must", "filter", "should", "must_not"} {
		k := r.rand.Intn(3)
		if occur == "must_not" || occur == "filter" {
			k = r.rand.Intn(2)
		}
		if k == 0 {
			continue
		}
		clauses := make([]any, k)
		for i := range clauses {
			clauses[i] = r.queryLocked(depth - 1)
		}
		body[occur] = clauses
	}
	if should, ok := body["should"].([]any); ok && len(should) > 1 && r.rand.Intn(3) == 0 {
		body["minimum_should_match"] = fmt.Sprint(1 + r.rand.Intn(len(should)))
	}
	return map[string]any{"bool": body}
}
