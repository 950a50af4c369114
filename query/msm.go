package query

import (
	"fmt"
	"strconv"
	"strings"
)

// ResolveMinimumShouldMatch computes how many of n optional clauses must match for a
// minimum_should_match specification. Supported forms are integers ("2", "-1"),
// percentages ("75%", "-25%") and conditionals ("3<90%", "2<-25% 9<-3"). Empty means 0.
// The result is never negative; it is not capped at n.
func ResolveMinimumShouldMatch(spec string, n int) (int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, nil
	}

	if strings.Contains(spec, "<") {
		return resolveConditional(spec, n)
	}
	return resolveSimple(spec, n)
}

func resolveConditional(spec string, n int) (int, error) {
	// Clauses are "limit<spec" pairs; the one with the largest limit below n applies.
	best := -1
	bestSpec := ""
	for _, part := range strings.Fields(spec) {
		limitStr, sub, ok := strings.Cut(part, "<")
		if !ok {
			return 0, fmt.Errorf("%w: invalid minimum_should_match %q", ErrMalformed, spec)
		}
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid minimum_should_match %q", ErrMalformed, spec)
		}
		if n > limit && limit > best {
			best = limit
			bestSpec = sub
		}
	}
	if best < 0 {
		return n, nil
	}
	return resolveSimple(bestSpec, n)
}

func resolveSimple(spec string, n int) (int, error) {
	var result int
	if pct, ok := strings.CutSuffix(spec, "%"); ok {
		p, err := strconv.Atoi(pct)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid minimum_should_match %q", ErrMalformed, spec)
		}
		calc := n * p / 100
		if p < 0 {
			result = n + calc
		} else {
			result = calc
		}
	} else {
		v, err := strconv.Atoi(spec)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid minimum_should_match %q", ErrMalformed, spec)
		}
		if v < 0 {
			result = n + v
		} else {
			result = v
		}
	}
	if result < 0 {
		return 0, nil
	}
	return result, nil
}
