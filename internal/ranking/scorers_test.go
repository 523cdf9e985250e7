package ranking

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/basho/internal/models"
)

func TestHaversineMeters(t *testing.T) {
	tests := []struct {
		name string
		a, b models.LatLng
		want float64
		tol  float64
	}{
		{"same point", center, center, 0, 0.001},
		{"one degree of latitude", models.LatLng{Lat: 0, Lng: 0}, models.LatLng{Lat: 1, Lng: 0}, 111195, 5},
		{"paris to london", models.LatLng{Lat: 48.8566, Lng: 2.3522}, models.LatLng{Lat: 51.5074, Lng: -0.1278}, 343500, 1500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineMeters(tt.a, tt.b)
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("HaversineMeters() = %v, want %v ± %v", got, tt.want, tt.tol)
			}
		})
	}
}

func TestDistanceScore(t *testing.T) {
	tests := []struct {
		distance, max, want float64
	}{
		{0, 5000, 100},
		{2500, 5000, 50},
		{5000, 5000, 0},
		{9000, 5000, 0},
		{100, 0, 0},
	}
	for _, tt := range tests {
		if got := DistanceScore(tt.distance, tt.max); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("DistanceScore(%v, %v) = %v, want %v", tt.distance, tt.max, got, tt.want)
		}
	}
}

func TestRatingScorer(t *testing.T) {
	scorer := NewRatingScorer(DefaultRankingConfig())
	tests := []struct {
		rating *float64
		want   float64
	}{
		{nil, 0},
		{f64(4.9), 100},
		{f64(4.7), 100},
		{f64(4.5), 85},
		{f64(4.0), 70},
		{f64(3.6), 50},
		{f64(3.0), 30},
		{f64(1.0), 10},
	}
	for _, tt := range tests {
		ctx := &ScoringContext{Place: &models.Place{Rating: tt.rating}}
		if got := scorer.Score(ctx); got != tt.want {
			t.Errorf("rating %v: got %v, want %v", tt.rating, got, tt.want)
		}
	}
}

func TestPopularityScorer(t *testing.T) {
	scorer := NewPopularityScorer(DefaultRankingConfig())
	tests := []struct {
		reviews *int
		want    float64
	}{
		{nil, 0},
		{intp(0), 10},
		{intp(10), 25},
		{intp(199), 50},
		{intp(200), 75},
		{intp(1000), 100},
	}
	for _, tt := range tests {
		ctx := &ScoringContext{Place: &models.Place{ReviewCount: tt.reviews}}
		if got := scorer.Score(ctx); got != tt.want {
			t.Errorf("reviews %v: got %v, want %v", tt.reviews, got, tt.want)
		}
	}
}

func TestPriceScorer(t *testing.T) {
	scorer := NewPriceScorer(DefaultRankingConfig())
	tests := []struct {
		name   string
		level  *int
		wanted []int
		want   float64
	}{
		{"no preference", intp(2), nil, 0},
		{"unknown price", nil, []int{2}, 0},
		{"exact", intp(2), []int{2}, 100},
		{"one away", intp(3), []int{2}, 50},
		{"exact beats near", intp(2), []int{1, 2}, 100},
		{"far", intp(4), []int{1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := &ScoringContext{Place: &models.Place{PriceLevel: tt.level}, Filters: models.Filters{PriceLevels: tt.wanted}}
			if got := scorer.Score(ctx); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDietaryScorer(t *testing.T) {
	scorer := NewDietaryScorer()
	place := &models.Place{Tags: []string{"Vegan", "gluten-free"}}

	tests := []struct {
		name    string
		filters models.Filters
		want    float64
	}{
		{"nothing required", models.Filters{}, 0},
		{"all matched", models.Filters{Dietary: []string{"vegan", "Gluten Free"}}, 100},
		{"half matched", models.Filters{Dietary: []string{"vegan"}, MustHave: []string{"wifi"}}, 50},
		{"duplicates count once", models.Filters{Dietary: []string{"vegan"}, MustHave: []string{"VEGAN"}}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := &ScoringContext{Place: place, Filters: tt.filters}
			if got := scorer.Score(ctx); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpenNowAndCuisineScorers(t *testing.T) {
	open := &models.Place{OpenNow: models.OpenTrue, Category: "ramen", Cuisines: []string{"Japanese"}}
	unknown := &models.Place{OpenNow: models.OpenUnknown, Category: "cafe"}

	if got := (&OpenNowScorer{}).Score(&ScoringContext{Place: open, Filters: models.Filters{OpenNow: true}}); got != 100 {
		t.Errorf("open requested and open: got %v", got)
	}
	if got := (&OpenNowScorer{}).Score(&ScoringContext{Place: unknown, Filters: models.Filters{OpenNow: true}}); got != 0 {
		t.Errorf("unknown open state must not score: got %v", got)
	}
	if got := (&OpenNowScorer{}).Score(&ScoringContext{Place: open}); got != 0 {
		t.Errorf("open not requested: got %v", got)
	}

	cuisine := &CuisineScorer{}
	if got := cuisine.Score(&ScoringContext{Place: open, Filters: models.Filters{Cuisine: "japanese"}}); got != 100 {
		t.Errorf("cuisine match: got %v", got)
	}
	if got := cuisine.Score(&ScoringContext{Place: open, Category: "Ramen"}); got != 100 {
		t.Errorf("category fallback: got %v", got)
	}
	if got := cuisine.Score(&ScoringContext{Place: unknown, Filters: models.Filters{Cuisine: "thai"}}); got != 0 {
		t.Errorf("no match: got %v", got)
	}
}

func TestMatchReasons(t *testing.T) {
	cfg := DefaultRankingConfig()
	near := 150.0
	mid := 800.0

	tests := []struct {
		name string
		ctx  *ScoringContext
		want []string
	}{
		{
			name: "nothing notable",
			ctx:  &ScoringContext{Place: &models.Place{Rating: f64(3.1)}},
			want: []string{ReasonGeneralMatch},
		},
		{
			name: "rating popularity distance",
			ctx:  &ScoringContext{Place: &models.Place{Rating: f64(4.8), ReviewCount: intp(1500)}, Distance: &near},
			want: []string{ReasonExceptionalRating, ReasonVeryPopular, ReasonVeryClose},
		},
		{
			name: "filters satisfied",
			ctx: &ScoringContext{
				Place:    &models.Place{Rating: f64(4.4), ReviewCount: intp(250), PriceLevel: intp(2), OpenNow: models.OpenTrue, Tags: []string{"vegan"}, Category: "thai"},
				Filters:  models.Filters{PriceLevels: []int{2}, OpenNow: true, Dietary: []string{"vegan"}},
				Category: "thai",
				Distance: &mid,
			},
			want: []string{ReasonHighlyRated, ReasonPopular, ReasonNearby, ReasonPriceMatch, ReasonOpenNow, ReasonDietaryMatch, ReasonCuisineMatch},
		},
		{
			name: "dietary partially satisfied",
			ctx: &ScoringContext{
				Place:   &models.Place{Rating: f64(4.1), Tags: []string{"vegan"}},
				Filters: models.Filters{Dietary: []string{"vegan", "halal"}},
			},
			want: []string{ReasonGoodRating},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchReasons(cfg, tt.ctx); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MatchReasons() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRankingConfig_ApplyDefaultsSortsTiers(t *testing.T) {
	cfg := &RankingConfig{RatingTiers: []Tier{{Min: 0, Score: 5}, {Min: 4, Score: 90}, {Min: 2, Score: 40}}}
	cfg.ApplyDefaults()
	for i := 1; i < len(cfg.RatingTiers); i++ {
		if cfg.RatingTiers[i-1].Min < cfg.RatingTiers[i].Min {
			t.Fatalf("tiers not sorted: %+v", cfg.RatingTiers)
		}
	}
	if got := NewRatingScorer(cfg).Score(&ScoringContext{Place: &models.Place{Rating: f64(3)}}); got != 40 {
		t.Errorf("expected 40 from middle tier, got %v", got)
	}
}

func TestRankingConfig_Validate(t *testing.T) {
	if err := DefaultRankingConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(c *RankingConfig)
		wantErr string
	}{
		{"negative weight", func(c *RankingConfig) { c.PriceWeight = -1 }, "price_weight"},
		{"zero expected max", func(c *RankingConfig) { c.ExpectedMax = 0 }, "expected_max"},
		{"min viable above weak", func(c *RankingConfig) { c.MinViableScore = 40 }, "min_viable_score"},
		{"tier out of range", func(c *RankingConfig) { c.RatingTiers = []Tier{{Min: 0, Score: 120}} }, "tier score"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRankingConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
