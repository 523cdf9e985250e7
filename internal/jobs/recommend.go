package jobs

import (
	"math/rand"

	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/internal/ranking"
)

// Recommend picks up to n results from core in an order fixed by seed. The same seed and
// core always give the same recommendations.
func Recommend(seed uint64, core models.CoreResult, n int) []models.Recommendation {
	if n <= 0 || len(core.Results) == 0 {
		return []models.Recommendation{}
	}
	candidates := make([]models.ScoredResult, len(core.Results))
	copy(candidates, core.Results)

	rng := rand.New(rand.NewSource(int64(seed)))
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}

	out := make([]models.Recommendation, len(candidates))
	for i, c := range candidates {
		reason := ranking.ReasonGeneralMatch
		if len(c.MatchReasons) > 0 {
			reason = c.MatchReasons[0]
		}
		out[i] = models.Recommendation{Rank: i + 1, ResultID: c.ID, Name: c.Name, Reason: reason}
	}
	return out
}
