package ranking

import "github.com/hyperjump/basho/internal/models"

// MatchReasons derives explanation tags for a place from tiered thresholds.
// The result is never empty: general_match is used when nothing else applies.
func MatchReasons(cfg *RankingConfig, ctx *ScoringContext) []string {
	var reasons []string
	p := ctx.Place

	if p.Rating != nil {
		switch r := *p.Rating; {
		case r >= cfg.ExceptionalRating:
			reasons = append(reasons, ReasonExceptionalRating)
		case r >= cfg.HighRating:
			reasons = append(reasons, ReasonHighlyRated)
		case r >= cfg.GoodRating:
			reasons = append(reasons, ReasonGoodRating)
		}
	}

	if p.ReviewCount != nil {
		switch n := *p.ReviewCount; {
		case n >= cfg.VeryPopularCount:
			reasons = append(reasons, ReasonVeryPopular)
		case n >= cfg.PopularCount:
			reasons = append(reasons, ReasonPopular)
		}
	}

	if ctx.Distance != nil {
		switch d := *ctx.Distance; {
		case d <= cfg.VeryCloseMeters:
			reasons = append(reasons, ReasonVeryClose)
		case d <= cfg.NearbyMeters:
			reasons = append(reasons, ReasonNearby)
		}
	}

	if len(ctx.Filters.PriceLevels) > 0 && p.PriceLevel != nil {
		for _, want := range ctx.Filters.PriceLevels {
			if *p.PriceLevel == want {
				reasons = append(reasons, ReasonPriceMatch)
				break
			}
		}
	}

	if ctx.Filters.OpenNow && p.OpenNow == models.OpenTrue {
		reasons = append(reasons, ReasonOpenNow)
	}

	if required := requiredTags(ctx.Filters); len(required) > 0 {
		have := tagSet(p.Tags)
		all := true
		for _, r := range required {
			if !have[r] {
				all = false
				break
			}
		}
		if all {
			reasons = append(reasons, ReasonDietaryMatch)
		}
	}

	if cuisineMatches(ctx) {
		reasons = append(reasons, ReasonCuisineMatch)
	}

	if len(reasons) == 0 {
		reasons = append(reasons, ReasonGeneralMatch)
	}
	return reasons
}
