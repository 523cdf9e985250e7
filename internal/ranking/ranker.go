package ranking

import (
	"sort"

	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/pkg/utils"
)

// weightedScorer pairs a scorer with its weight.
type weightedScorer struct {
	scorer Scorer
	weight float64
}

// Ranker combines all scorers to rank places.
type Ranker struct {
	config  *RankingConfig
	scorers []weightedScorer
}

// NewRanker creates a new Ranker with the given configuration.
func NewRanker(config *RankingConfig) *Ranker {
	if config == nil {
		config = DefaultRankingConfig()
	}
	config.ApplyDefaults()

	return &Ranker{
		config: config,
		scorers: []weightedScorer{
			{NewRatingScorer(config), config.RatingWeight},
			{NewPopularityScorer(config), config.PopularityWeight},
			{NewDistanceScorer(config), config.DistanceWeight},
			{NewPriceScorer(config), config.PriceWeight},
			{NewDietaryScorer(), config.DietaryWeight},
			{&OpenNowScorer{}, config.OpenNowWeight},
			{&CuisineScorer{}, config.CuisineWeight},
		},
	}
}

// Score computes the normalized score of one place and returns the scored result with its breakdown.
// The result is not filtered by MinViableScore.
func (r *Ranker) Score(place models.Place, filters models.Filters, category string, center *models.LatLng) (models.ScoredResult, *ScoreBreakdown) {
	ctx := &ScoringContext{Place: &place, Filters: filters, Category: category}
	if center != nil {
		d := HaversineMeters(*center, place.Location)
		ctx.Distance = &d
	}

	breakdown := NewScoreBreakdown()
	raw := 0.0
	for _, ws := range r.scorers {
		s := ws.scorer.Score(ctx)
		breakdown.Components[ws.scorer.Name()] = s
		raw += ws.weight * s
	}
	breakdown.Raw = raw

	// Normalize against the expected maximum, clamp, then round for stable ordering
	score := utils.Round1(utils.Clamp(raw/r.config.ExpectedMax*100, 0, 100))
	breakdown.Final = score

	result := models.ScoredResult{
		Place:          place,
		Score:          score,
		MatchReasons:   MatchReasons(r.config, ctx),
		IsWeakMatch:    score < r.config.WeakMatchThreshold,
		DistanceScore:  utils.Round1(breakdown.Components["distance"]),
		DistanceMeters: ctx.Distance,
		GroupKind:      models.GroupExact,
	}
	return result, breakdown
}

// Rank scores every place, drops those below MinViableScore (and weak ones when
// HideWeakMatches is set), and sorts the survivors deterministically.
// Duplicate place ids keep their first occurrence.
func (r *Ranker) Rank(in Input) []models.ScoredResult {
	results := make([]models.ScoredResult, 0, len(in.Places))
	seen := make(map[string]bool, len(in.Places))
	for _, p := range in.Places {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		res, _ := r.Score(p, in.Filters, in.Category, in.Center)
		if res.Score < r.config.MinViableScore {
			continue
		}
		if r.config.HideWeakMatches && res.IsWeakMatch {
			continue
		}
		results = append(results, res)
	}
	SortResults(results)
	return results
}

// RankWithBreakdown is Rank that also returns the breakdown of each surviving result by id.
func (r *Ranker) RankWithBreakdown(in Input) ([]models.ScoredResult, map[string]*ScoreBreakdown) {
	breakdowns := make(map[string]*ScoreBreakdown, len(in.Places))
	for _, p := range in.Places {
		if _, ok := breakdowns[p.ID]; ok {
			continue
		}
		_, b := r.Score(p, in.Filters, in.Category, in.Center)
		breakdowns[p.ID] = b
	}
	results := r.Rank(in)
	kept := make(map[string]*ScoreBreakdown, len(results))
	for _, res := range results {
		kept[res.ID] = breakdowns[res.ID]
	}
	return results, kept
}

// SortResults orders by score descending, then distance ascending (unknown distance last),
// then id ascending, so identical input always yields identical order.
func SortResults(results []models.ScoredResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return Less(results[i], results[j])
	})
}

// Less is the ranking order used by SortResults.
func Less(a, b models.ScoredResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	switch {
	case a.DistanceMeters != nil && b.DistanceMeters != nil:
		if *a.DistanceMeters != *b.DistanceMeters {
			return *a.DistanceMeters < *b.DistanceMeters
		}
	case a.DistanceMeters != nil:
		return true
	case b.DistanceMeters != nil:
		return false
	}
	return a.ID < b.ID
}

// TopN returns the top N results.
func TopN(results []models.ScoredResult, n int) []models.ScoredResult {
	if n < 0 || n >= len(results) {
		return results
	}
	return results[:n]
}
