package ranking

import (
	"errors"
	"fmt"
	"sort"
)

// Tier maps a minimum input value to a component score in [0,100].
type Tier struct {
	Min   float64 `yaml:"min"`
	Score float64 `yaml:"score"`
}

// RankingConfig holds all configuration for the ranking system.
type RankingConfig struct {
	// Weights for the scoring components
	RatingWeight     float64 `yaml:"rating_weight"`     // default: 0.40
	PopularityWeight float64 `yaml:"popularity_weight"` // default: 0.25
	DistanceWeight   float64 `yaml:"distance_weight"`   // default: 0.35
	PriceWeight      float64 `yaml:"price_weight"`      // default: 0.15
	DietaryWeight    float64 `yaml:"dietary_weight"`    // default: 0.15
	OpenNowWeight    float64 `yaml:"open_now_weight"`   // default: 0.05
	CuisineWeight    float64 `yaml:"cuisine_weight"`    // default: 0.10

	// Tier tables, highest minimum first after ApplyDefaults
	RatingTiers     []Tier `yaml:"rating_tiers"`
	PopularityTiers []Tier `yaml:"popularity_tiers"`

	// Distance decay
	MaxDistanceMeters float64 `yaml:"max_distance_meters"` // default: 5000

	// Price: score when the requested level is one step away
	PriceNearScore float64 `yaml:"price_near_score"` // default: 50

	// Normalization
	ExpectedMax float64 `yaml:"expected_max"` // default: 100

	// Thresholds on the normalized score
	WeakMatchThreshold float64 `yaml:"weak_match_threshold"` // default: 30
	MinViableScore     float64 `yaml:"min_viable_score"`     // default: 10
	HideWeakMatches    bool    `yaml:"hide_weak_matches"`    // default: false

	// Match reason thresholds
	ExceptionalRating float64 `yaml:"exceptional_rating"` // default: 4.7
	HighRating        float64 `yaml:"high_rating"`        // default: 4.3
	GoodRating        float64 `yaml:"good_rating"`        // default: 4.0
	VeryPopularCount  int     `yaml:"very_popular_count"` // default: 1000
	PopularCount      int     `yaml:"popular_count"`      // default: 200
	VeryCloseMeters   float64 `yaml:"very_close_meters"`  // default: 300
	NearbyMeters      float64 `yaml:"nearby_meters"`      // default: 1000
}

// DefaultRankingConfig returns the default ranking configuration.
func DefaultRankingConfig() *RankingConfig {
	return &RankingConfig{
		// Weights
		RatingWeight:     0.40,
		PopularityWeight: 0.25,
		DistanceWeight:   0.35,
		PriceWeight:      0.15,
		DietaryWeight:    0.15,
		OpenNowWeight:    0.05,
		CuisineWeight:    0.10,

		// Tiers
		RatingTiers: []Tier{
			{Min: 4.7, Score: 100},
			{Min: 4.3, Score: 85},
			{Min: 4.0, Score: 70},
			{Min: 3.5, Score: 50},
			{Min: 3.0, Score: 30},
			{Min: 0, Score: 10},
		},
		PopularityTiers: []Tier{
			{Min: 1000, Score: 100},
			{Min: 200, Score: 75},
			{Min: 50, Score: 50},
			{Min: 10, Score: 25},
			{Min: 0, Score: 10},
		},

		MaxDistanceMeters: 5000,
		PriceNearScore:    50,
		ExpectedMax:       100,

		WeakMatchThreshold: 30,
		MinViableScore:     10,

		ExceptionalRating: 4.7,
		HighRating:        4.3,
		GoodRating:        4.0,
		VeryPopularCount:  1000,
		PopularCount:      200,
		VeryCloseMeters:   300,
		NearbyMeters:      1000,
	}
}

// ApplyDefaults fills in zero values with defaults and sorts tier tables.
func (c *RankingConfig) ApplyDefaults() {
	defaults := DefaultRankingConfig()

	// Weights
	if c.RatingWeight == 0 {
		c.RatingWeight = defaults.RatingWeight
	}
	if c.PopularityWeight == 0 {
		c.PopularityWeight = defaults.PopularityWeight
	}
	if c.DistanceWeight == 0 {
		c.DistanceWeight = defaults.DistanceWeight
	}
	if c.PriceWeight == 0 {
		c.PriceWeight = defaults.PriceWeight
	}
	if c.DietaryWeight == 0 {
		c.DietaryWeight = defaults.DietaryWeight
	}
	if c.OpenNowWeight == 0 {
		c.OpenNowWeight = defaults.OpenNowWeight
	}
	if c.CuisineWeight == 0 {
		c.CuisineWeight = defaults.CuisineWeight
	}

	// Tiers
	if len(c.RatingTiers) == 0 {
		c.RatingTiers = defaults.RatingTiers
	}
	if len(c.PopularityTiers) == 0 {
		c.PopularityTiers = defaults.PopularityTiers
	}
	sortTiers(c.RatingTiers)
	sortTiers(c.PopularityTiers)

	if c.MaxDistanceMeters == 0 {
		c.MaxDistanceMeters = defaults.MaxDistanceMeters
	}
	if c.PriceNearScore == 0 {
		c.PriceNearScore = defaults.PriceNearScore
	}
	if c.ExpectedMax == 0 {
		c.ExpectedMax = defaults.ExpectedMax
	}

	// Thresholds
	if c.WeakMatchThreshold == 0 {
		c.WeakMatchThreshold = defaults.WeakMatchThreshold
	}
	if c.MinViableScore == 0 {
		c.MinViableScore = defaults.MinViableScore
	}

	// Match reasons
	if c.ExceptionalRating == 0 {
		c.ExceptionalRating = defaults.ExceptionalRating
	}
	if c.HighRating == 0 {
		c.HighRating = defaults.HighRating
	}
	if c.GoodRating == 0 {
		c.GoodRating = defaults.GoodRating
	}
	if c.VeryPopularCount == 0 {
		c.VeryPopularCount = defaults.VeryPopularCount
	}
	if c.PopularCount == 0 {
		c.PopularCount = defaults.PopularCount
	}
	if c.VeryCloseMeters == 0 {
		c.VeryCloseMeters = defaults.VeryCloseMeters
	}
	if c.NearbyMeters == 0 {
		c.NearbyMeters = defaults.NearbyMeters
	}
}

// Validate reports settings that cannot produce scores in [0,100].
func (c *RankingConfig) Validate() error {
	var errs []error
	for name, w := range map[string]float64{
		"rating_weight":     c.RatingWeight,
		"popularity_weight": c.PopularityWeight,
		"distance_weight":   c.DistanceWeight,
		"price_weight":      c.PriceWeight,
		"dietary_weight":    c.DietaryWeight,
		"open_now_weight":   c.OpenNowWeight,
		"cuisine_weight":    c.CuisineWeight,
	} {
		if w < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if c.ExpectedMax <= 0 {
		errs = append(errs, errors.New("expected_max must be positive"))
	}
	if c.MaxDistanceMeters <= 0 {
		errs = append(errs, errors.New("max_distance_meters must be positive"))
	}
	if c.MinViableScore < 0 || c.WeakMatchThreshold > 100 {
		errs = append(errs, errors.New("thresholds must lie in [0,100]"))
	}
	if c.MinViableScore > c.WeakMatchThreshold {
		errs = append(errs, fmt.Errorf("min_viable_score %.1f exceeds weak_match_threshold %.1f", c.MinViableScore, c.WeakMatchThreshold))
	}
	for _, t := range append(append([]Tier(nil), c.RatingTiers...), c.PopularityTiers...) {
		if t.Score < 0 || t.Score > 100 {
			errs = append(errs, fmt.Errorf("tier score %.1f outside [0,100]", t.Score))
		}
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return errors.Join(errs...)
}

func sortTiers(tiers []Tier) {
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].Min > tiers[j].Min })
}
