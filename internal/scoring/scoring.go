// Package scoring ranks eligible placements against a request context.
//
// Score = weight × relevance × recencyFactor. Relevance is a cosine-style
// overlap between the request's hint sets and the placement's weighted
// keyword/taxonomy vectors, normalized to [0,1]. The recency factor mildly
// deprioritizes placements nearing the end of their flight window so fresher
// flights win close calls without starving the older ones (floor 0.5).
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/marketgrid/adengine/internal/models"
)

// scoreEpsilon bounds the difference under which two scores are considered a
// tie and resolved by priority, then creation time.
const scoreEpsilon = 1e-6

// recencyDecay scales how much of the elapsed flight fraction is subtracted
// from the recency factor. With a factor floor of 0.5 the decay reaches its
// floor only at the very end of the window.
const recencyDecay = 0.5

const recencyFloor = 0.5

// ScoredPlacement pairs a candidate with its computed score.
type ScoredPlacement struct {
	Placement models.Placement
	Score     float64
}

// Rank scores the candidates against the context and returns them strictly
// ordered by (score desc, priority desc, createdAt asc). It never fails: an
// empty candidate set yields an empty slice, and malformed vectors score as
// untargeted rather than producing NaN.
func Rank(candidates []models.Placement, ctx models.ScoreContext, now time.Time) []ScoredPlacement {
	scored := make([]ScoredPlacement, 0, len(candidates))
	for i := range candidates {
		p := candidates[i]
		scored = append(scored, ScoredPlacement{Placement: p, Score: Score(&p, ctx, now)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if math.Abs(a.Score-b.Score) > scoreEpsilon {
			return a.Score > b.Score
		}
		if a.Placement.Priority != b.Placement.Priority {
			return a.Placement.Priority > b.Placement.Priority
		}
		return a.Placement.CreatedAt.Before(b.Placement.CreatedAt)
	})
	return scored
}

// Score computes a single placement's score for the context.
func Score(p *models.Placement, ctx models.ScoreContext, now time.Time) float64 {
	weight := float64(p.Weight)
	if weight <= 0 {
		// Weight is invariant-positive, but a malformed record should rank
		// last rather than poison the ordering.
		weight = 0
	}
	return weight * Relevance(p, ctx) * RecencyFactor(p, now)
}

// Relevance measures how well the placement's vectors match the request
// hints. With no hints at all it returns 1.0 so untargeted requests carry no
// penalty. When hints are present, each supplied hint set contributes a
// cosine-style term and the supplied terms are averaged.
func Relevance(p *models.Placement, ctx models.ScoreContext) float64 {
	if p.OpportunityType != "" && ctx.OpportunityType != "" && p.OpportunityType != ctx.OpportunityType {
		return 0
	}
	var sum float64
	var parts int
	if len(ctx.KeywordHints) > 0 {
		sum += vectorOverlap(ctx.KeywordHints, p.KeywordWeights)
		parts++
	}
	if len(ctx.TaxonomyHints) > 0 {
		sum += vectorOverlap(ctx.TaxonomyHints, p.TaxonomyWeights)
		parts++
	}
	if parts == 0 {
		return 1.0
	}
	return sum / float64(parts)
}

// vectorOverlap is the cosine similarity between the hint set (each hint
// weight 1) and the placement's weighted vector. An empty placement vector
// scores 0 against a targeted request.
func vectorOverlap(hints []string, weights map[string]float64) float64 {
	if len(weights) == 0 {
		return 0
	}
	var dot, norm float64
	for _, h := range hints {
		dot += weights[h]
	}
	for _, w := range weights {
		norm += w * w
	}
	if dot <= 0 || norm <= 0 {
		return 0
	}
	sim := dot / (math.Sqrt(float64(len(hints))) * math.Sqrt(norm))
	// Cosine of non-negative vectors is already in [0,1]; clamp anyway so a
	// degenerate vector can never push the score past the weight.
	if sim > 1 {
		sim = 1
	}
	if math.IsNaN(sim) {
		return 0
	}
	return sim
}

// RecencyFactor returns 1.0 minus a decay proportional to the elapsed
// fraction of the flight window, floored at 0.5. Open-ended or not-yet-open
// windows decay nothing.
func RecencyFactor(p *models.Placement, now time.Time) float64 {
	if p.StartAt.IsZero() || p.EndAt.IsZero() {
		return 1.0
	}
	total := p.EndAt.Sub(p.StartAt)
	if total <= 0 {
		return 1.0
	}
	elapsed := now.Sub(p.StartAt)
	if elapsed <= 0 {
		return 1.0
	}
	frac := float64(elapsed) / float64(total)
	if frac > 1 {
		frac = 1
	}
	f := 1.0 - recencyDecay*frac
	if f < recencyFloor {
		f = recencyFloor
	}
	return f
}
