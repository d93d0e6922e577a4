package pricing

import (
	"strings"

	"github.com/priceline/replacement-pricer/server/internal/model"
	"github.com/priceline/replacement-pricer/server/internal/pricing/policy"
	"github.com/priceline/replacement-pricer/server/internal/ports"
)

// scoreWeights are the weighted-sum coefficients for candidate scoring
// (spec §4.5 step 4). They are implementation constants, not configuration
// — the spec lists the scoring factors but not their weights.
const (
	weightTitleOverlap  = 0.4
	weightBrandMatch    = 0.2
	weightModelMatch    = 0.2
	weightAttributes    = 0.1
	weightDirectURL     = 0.1
	minAcceptableScore  = 0.35
)

// scoredCandidate pairs a raw candidate with its computed score and
// direct-URL flag.
type scoredCandidate struct {
	ports.Candidate
	Score     float64
	IsDirect  bool
	IsTrusted bool
}

// scoreCandidates scores and filters candidates against the source-policy
// predicate, keeping only those at or above minAcceptableScore.
func scoreCandidates(n model.NormalizedItem, candidates []ports.Candidate, pol *policy.Policy) []scoredCandidate {
	titleTokens := tokenize(n.Title)
	attrTokens := make(map[string]bool, len(n.Attributes))
	for _, a := range n.Attributes {
		attrTokens[strings.ToLower(a)] = true
	}

	out := make([]scoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		trusted := pol.IsTrusted(c.Source, c.SourceHost)
		direct := pol.IsDirectURL(c.SourceHost, c.URL)

		score := jaccard(titleTokens, tokenize(c.Title)) * weightTitleOverlap
		if n.Brand != "" && strings.Contains(strings.ToLower(c.Title), n.Brand) {
			score += weightBrandMatch
		}
		if n.Model != "" && strings.Contains(strings.ToLower(c.Title), strings.ToLower(n.Model)) {
			score += weightModelMatch
		}
		if len(attrTokens) > 0 {
			overlap := 0
			for _, t := range tokenize(c.Title) {
				if attrTokens[t] {
					overlap++
				}
			}
			score += weightAttributes * (float64(overlap) / float64(len(attrTokens)))
		}
		if direct {
			score += weightDirectURL
		}

		if score < minAcceptableScore || !trusted {
			continue
		}
		out = append(out, scoredCandidate{Candidate: c, Score: score, IsDirect: direct, IsTrusted: trusted})
	}
	return out
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}
	intersection := 0
	union := make(map[string]bool, len(a)+len(b))
	for _, t := range a {
		union[t] = true
		if setB[t] {
			intersection++
		}
	}
	for _, t := range b {
		union[t] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}

// selectBest sorts candidates so direct-URL results outrank catalog
// results, then lowest price wins within each bucket (spec §4.5 step 5:
// replacement-cost semantics, not proximity to an estimated price).
func selectBest(candidates []scoredCandidate) (scoredCandidate, bool) {
	if len(candidates) == 0 {
		return scoredCandidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if rank(c) < rank(best) {
			best = c
			continue
		}
		if rank(c) == rank(best) && c.Price < best.Price {
			best = c
		}
	}
	return best, true
}

// rank returns 0 for direct-URL candidates, 1 otherwise — lower ranks first.
func rank(c scoredCandidate) int {
	if c.IsDirect {
		return 0
	}
	return 1
}
