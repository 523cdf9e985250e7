// Package grouping partitions ranked results into EXACT and NEARBY proximity tiers.
package grouping

import (
	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/internal/ranking"
)

// Partition splits ranked results into proximity groups around center.
//
// Results within radii.ExactM form the EXACT group, results within radii.NearbyM the NEARBY group,
// and anything farther is excluded. Ranking order is preserved inside each group and empty groups
// are omitted. With no center every result lands in a single EXACT group.
//
// The returned slice is the concatenation of the groups, each result tagged with its GroupKind.
func Partition(results []models.ScoredResult, center *models.LatLng, radii Radii) ([]models.ResultGroup, []models.ScoredResult) {
	if center == nil {
		exact := make([]models.ScoredResult, len(results))
		for i, r := range results {
			r.GroupKind = models.GroupExact
			exact[i] = r
		}
		if len(exact) == 0 {
			return []models.ResultGroup{}, exact
		}
		return []models.ResultGroup{{Kind: models.GroupExact, Results: exact}}, exact
	}

	var exact, nearby []models.ScoredResult
	for _, r := range results {
		d := distance(r, *center)
		switch {
		case d <= radii.ExactM:
			r.GroupKind = models.GroupExact
			exact = append(exact, r)
		case d <= radii.NearbyM:
			r.GroupKind = models.GroupNearby
			nearby = append(nearby, r)
		}
	}

	groups := make([]models.ResultGroup, 0, 2)
	kept := make([]models.ScoredResult, 0, len(exact)+len(nearby))
	if len(exact) > 0 {
		groups = append(groups, models.ResultGroup{Kind: models.GroupExact, Results: exact})
		kept = append(kept, exact...)
	}
	if len(nearby) > 0 {
		groups = append(groups, models.ResultGroup{Kind: models.GroupNearby, Results: nearby})
		kept = append(kept, nearby...)
	}
	return groups, kept
}

// distance prefers the distance computed by the ranker so both stages agree on the boundary.
func distance(r models.ScoredResult, center models.LatLng) float64 {
	if r.DistanceMeters != nil {
		return *r.DistanceMeters
	}
	return ranking.HaversineMeters(center, r.Location)
}
