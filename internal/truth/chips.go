package truth

import (
	"strconv"

	"github.com/hyperjump/basho/internal/models"
)

// Stable chip ids. Narration may only ever reference these.
const (
	ChipOpenNow        = "open_now"
	ChipTopRated       = "top_rated"
	ChipCheaper        = "cheaper"
	ChipCloser         = "closer"
	ChipExpandRadius   = "expand_radius"
	ChipRefineLocation = "refine_location"
	ChipRetrySearch    = "retry_search"
)

// ChipInput is what chip generation is allowed to look at.
type ChipInput struct {
	Reason      models.FailureReason
	Mode        models.ResponseMode
	Filters     models.Filters
	HasLocation bool
	ResultCount int
}

// Chips returns the chip allowlist for a request. Output depends only on the input,
// and chip order is fixed per mode.
func Chips(in ChipInput) []models.Chip {
	var chips []models.Chip
	add := func(c models.Chip) { chips = append(chips, c) }

	switch in.Mode {
	case models.ModeClarify:
		add(refineLocationChip())
		if in.HasLocation && in.Reason == models.FailureLowConfidence {
			add(expandRadiusChip())
		}

	case models.ModeRecovery:
		switch in.Reason {
		case models.FailureTimeout, models.FailureProviderError, models.FailureQuotaExceeded:
			add(retryChip())
		case models.FailureLiveDataUnavailable:
			add(topRatedChip())
			if in.HasLocation {
				add(closerChip())
			}
		default:
			if in.HasLocation {
				add(expandRadiusChip())
			}
			add(refineLocationChip())
			if in.ResultCount > 0 {
				add(topRatedChip())
			}
		}

	default:
		if !in.Filters.OpenNow {
			add(openNowChip())
		}
		add(topRatedChip())
		if c, ok := cheaperChip(in.Filters); ok {
			add(c)
		}
		if in.HasLocation {
			add(closerChip())
		}
	}

	if chips == nil {
		chips = []models.Chip{}
	}
	return chips
}

func openNowChip() models.Chip {
	return models.Chip{
		ID: ChipOpenNow, Label: "Open now", Kind: models.ChipFilter,
		Action: models.ChipAction{Type: "set_filter", Params: map[string]string{"openNow": "true"}},
	}
}

func topRatedChip() models.Chip {
	return models.Chip{
		ID: ChipTopRated, Label: "Top rated", Kind: models.ChipSort,
		Action: models.ChipAction{Type: "sort", Params: map[string]string{"by": "rating"}},
	}
}

func closerChip() models.Chip {
	return models.Chip{
		ID: ChipCloser, Label: "Closer to me", Kind: models.ChipSort,
		Action: models.ChipAction{Type: "sort", Params: map[string]string{"by": "distance"}},
	}
}

// cheaperChip caps the price one level below the cheapest requested level,
// or at level 2 when no price was requested.
func cheaperChip(f models.Filters) (models.Chip, bool) {
	limit := 2
	if len(f.PriceLevels) > 0 {
		lowest := f.PriceLevels[0]
		for _, p := range f.PriceLevels[1:] {
			if p < lowest {
				lowest = p
			}
		}
		limit = lowest - 1
	}
	if limit < 1 {
		return models.Chip{}, false
	}
	return models.Chip{
		ID: ChipCheaper, Label: "Cheaper", Kind: models.ChipFilter,
		Action: models.ChipAction{Type: "set_filter", Params: map[string]string{"maxPrice": strconv.Itoa(limit)}},
	}, true
}

func expandRadiusChip() models.Chip {
	return models.Chip{
		ID: ChipExpandRadius, Label: "Search a wider area", Kind: models.ChipRefine,
		Action: models.ChipAction{Type: "expand_radius", Params: map[string]string{"factor": "2"}},
	}
}

func refineLocationChip() models.Chip {
	return models.Chip{
		ID: ChipRefineLocation, Label: "Change location", Kind: models.ChipRefine,
		Action: models.ChipAction{Type: "prompt", Params: map[string]string{"field": "location"}},
	}
}

func retryChip() models.Chip {
	return models.Chip{
		ID: ChipRetrySearch, Label: "Try again", Kind: models.ChipRetry,
		Action: models.ChipAction{Type: "retry"},
	}
}
