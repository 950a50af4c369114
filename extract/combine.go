package extract

import "sort"

// conjunction combines results that must all hold.
//
// Any unknown part makes the whole conjunction unknown. Units already required
// by an earlier part are not counted twice.
func conjunction(parts []Result) Result {
	if anyUnknown(parts) {
		return unknown()
	}
	if len(parts) == 1 {
		return parts[0]
	}

	out := Result{MatchAll: true, Verified: true}
	seen := make(map[string]struct{})
	keys := make(map[string]struct{})

	for _, r := range parts {
		if r.IsMatchNone() {
			return matchNone()
		}
		if !r.MatchAll {
			out.MatchAll = false
		}
		if !r.Verified {
			out.Verified = false
		}

		units := r.units()
		if r.MinimumShouldMatch < len(units) {
			out.Verified = false
		}
		overlap := 0
		for u := range units {
			if _, ok := seen[u]; ok {
				overlap++
			}
		}
		if overlap > 0 {
			out.Verified = false
		}
		out.MinimumShouldMatch += max(0, r.MinimumShouldMatch-overlap)

		for u := range units {
			seen[u] = struct{}{}
		}
		out.Extractions = appendUnique(out.Extractions, keys, r.Extractions)
	}

	if out.MatchAll {
		return matchAll(out.Verified)
	}
	return out
}

// disjunction combines results of which at least required must hold. A required
// count below one is treated as one.
func disjunction(parts []Result, required int) Result {
	if anyUnknown(parts) {
		return unknown()
	}
	needed := max(1, required)

	var (
		free, freeVerified int
		branches           []Result
	)
	for _, r := range parts {
		switch {
		case r.IsMatchNone():
		case r.MatchAll:
			free++
			if r.Verified {
				freeVerified++
			}
		default:
			branches = append(branches, r)
		}
	}

	if free+len(branches) < needed {
		return matchNone()
	}
	if free >= needed {
		return matchAll(freeVerified >= needed)
	}

	// Match-all branches satisfy part of the requirement for free.
	k := needed - free
	out := Result{Verified: freeVerified == free}
	owners := make(map[string]int)
	keys := make(map[string]struct{})
	msms := make([]int, 0, len(branches))

	for _, r := range branches {
		units := r.units()
		if !r.Verified || r.MinimumShouldMatch > 1 || (k > 1 && len(units) > 1) {
			out.Verified = false
		}
		for u := range units {
			owners[u]++
		}
		msms = append(msms, r.MinimumShouldMatch)
		out.Extractions = appendUnique(out.Extractions, keys, r.Extractions)
	}

	duplicated := false
	for _, n := range owners {
		if n > 1 {
			duplicated = true
			break
		}
	}

	sort.Ints(msms)
	if duplicated {
		// Branches share units, so their requirements cannot be added up.
		out.Verified = false
		out.MinimumShouldMatch = msms[0]
	} else {
		for _, m := range msms[:k] {
			out.MinimumShouldMatch += m
		}
	}
	return out
}

func anyUnknown(parts []Result) bool {
	for _, r := range parts {
		if r.Unknown {
			return true
		}
	}
	return false
}

func appendUnique(dst []Extraction, keys map[string]struct{}, src []Extraction) []Extraction {
	for _, e := range src {
		k := e.key()
		if _, ok := keys[k]; ok {
			continue
		}
		keys[k] = struct{}{}
		dst = append(dst, e)
	}
	return dst
}
