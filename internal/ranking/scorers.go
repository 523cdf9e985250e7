package ranking

import (
	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/pkg/utils"
)

// RatingScorer maps the star rating through the rating tier table.
type RatingScorer struct {
	config *RankingConfig
}

// NewRatingScorer creates a RatingScorer.
func NewRatingScorer(config *RankingConfig) *RatingScorer {
	return &RatingScorer{config: config}
}

func (s *RatingScorer) Name() string { return "rating" }

// Score returns 0 for places without a rating.
func (s *RatingScorer) Score(ctx *ScoringContext) float64 {
	if ctx.Place.Rating == nil {
		return 0
	}
	return tierScore(s.config.RatingTiers, *ctx.Place.Rating)
}

// PopularityScorer maps the review count through the popularity tier table.
type PopularityScorer struct {
	config *RankingConfig
}

// NewPopularityScorer creates a PopularityScorer.
func NewPopularityScorer(config *RankingConfig) *PopularityScorer {
	return &PopularityScorer{config: config}
}

func (s *PopularityScorer) Name() string { return "popularity" }

func (s *PopularityScorer) Score(ctx *ScoringContext) float64 {
	if ctx.Place.ReviewCount == nil {
		return 0
	}
	return tierScore(s.config.PopularityTiers, float64(*ctx.Place.ReviewCount))
}

// DistanceScorer applies linear distance decay from the search center.
type DistanceScorer struct {
	config *RankingConfig
}

// NewDistanceScorer creates a DistanceScorer.
func NewDistanceScorer(config *RankingConfig) *DistanceScorer {
	return &DistanceScorer{config: config}
}

func (s *DistanceScorer) Name() string { return "distance" }

// Score returns 0 when the search has no center.
func (s *DistanceScorer) Score(ctx *ScoringContext) float64 {
	if ctx.Distance == nil {
		return 0
	}
	return DistanceScore(*ctx.Distance, s.config.MaxDistanceMeters)
}

// PriceScorer rewards places whose price level was requested.
type PriceScorer struct {
	config *RankingConfig
}

// NewPriceScorer creates a PriceScorer.
func NewPriceScorer(config *RankingConfig) *PriceScorer {
	return &PriceScorer{config: config}
}

func (s *PriceScorer) Name() string { return "price" }

// Score is 100 on an exact level match, PriceNearScore one level away, 0 otherwise
// or when the place has no price level. No preference scores 0.
func (s *PriceScorer) Score(ctx *ScoringContext) float64 {
	if len(ctx.Filters.PriceLevels) == 0 || ctx.Place.PriceLevel == nil {
		return 0
	}
	level := *ctx.Place.PriceLevel
	best := 0.0
	for _, want := range ctx.Filters.PriceLevels {
		switch d := level - want; {
		case d == 0:
			return 100
		case d == 1 || d == -1:
			best = s.config.PriceNearScore
		}
	}
	return best
}

// DietaryScorer scores the fraction of required dietary and must-have tags a place carries.
type DietaryScorer struct{}

// NewDietaryScorer creates a DietaryScorer.
func NewDietaryScorer() *DietaryScorer {
	return &DietaryScorer{}
}

func (s *DietaryScorer) Name() string { return "dietary" }

func (s *DietaryScorer) Score(ctx *ScoringContext) float64 {
	required := requiredTags(ctx.Filters)
	if len(required) == 0 {
		return 0
	}
	have := tagSet(ctx.Place.Tags)
	matched := 0
	for _, r := range required {
		if have[r] {
			matched++
		}
	}
	return 100 * utils.SafeRatio(float64(matched), float64(len(required)))
}

// OpenNowScorer rewards places reported open when the user asked for open places.
type OpenNowScorer struct{}

func (s *OpenNowScorer) Name() string { return "open_now" }

func (s *OpenNowScorer) Score(ctx *ScoringContext) float64 {
	if ctx.Filters.OpenNow && ctx.Place.OpenNow == models.OpenTrue {
		return 100
	}
	return 0
}

// CuisineScorer rewards places whose cuisine or category matches the requested cuisine,
// falling back to the intent category.
type CuisineScorer struct{}

func (s *CuisineScorer) Name() string { return "cuisine" }

func (s *CuisineScorer) Score(ctx *ScoringContext) float64 {
	if cuisineMatches(ctx) {
		return 100
	}
	return 0
}

func cuisineMatches(ctx *ScoringContext) bool {
	want := ctx.Filters.Cuisine
	if want == "" {
		want = ctx.Category
	}
	want = utils.NormalizeTag(want)
	if want == "" {
		return false
	}
	if utils.NormalizeTag(ctx.Place.Category) == want {
		return true
	}
	for _, c := range ctx.Place.Cuisines {
		if utils.NormalizeTag(c) == want {
			return true
		}
	}
	return false
}

func tierScore(tiers []Tier, v float64) float64 {
	for _, t := range tiers {
		if v >= t.Min {
			return t.Score
		}
	}
	return 0
}

func requiredTags(f models.Filters) []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range [][]string{f.Dietary, f.MustHave} {
		for _, t := range group {
			n := utils.NormalizeTag(t)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func tagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[utils.NormalizeTag(t)] = true
	}
	return set
}
