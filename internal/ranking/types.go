// Package ranking scores raw place records and orders them deterministically.
package ranking

import "github.com/hyperjump/basho/internal/models"

// Match reason tags, in the order they are emitted.
const (
	ReasonExceptionalRating = "exceptional_rating"
	ReasonHighlyRated       = "highly_rated"
	ReasonGoodRating        = "good_rating"
	ReasonVeryPopular       = "very_popular"
	ReasonPopular           = "popular"
	ReasonVeryClose         = "very_close"
	ReasonNearby            = "nearby"
	ReasonPriceMatch        = "price_match"
	ReasonOpenNow           = "open_now"
	ReasonDietaryMatch      = "dietary_match"
	ReasonCuisineMatch      = "cuisine_match"
	ReasonGeneralMatch      = "general_match"
)

// ScoringContext holds everything a scorer may look at for one place.
type ScoringContext struct {
	Place    *models.Place
	Filters  models.Filters
	Category string
	// Distance is nil when the search has no center.
	Distance *float64
}

// Scorer scores one aspect of a place in [0,100].
type Scorer interface {
	Name() string
	Score(ctx *ScoringContext) float64
}

// ScoreBreakdown provides detailed scoring information for debugging and explain output.
type ScoreBreakdown struct {
	Components map[string]float64 `json:"components"`
	Raw        float64            `json:"raw"`
	Final      float64            `json:"final"`
}

// NewScoreBreakdown creates an empty ScoreBreakdown.
func NewScoreBreakdown() *ScoreBreakdown {
	return &ScoreBreakdown{Components: make(map[string]float64)}
}

// Input is one ranking request.
type Input struct {
	Places   []models.Place
	Filters  models.Filters
	Category string
	Center   *models.LatLng
}
