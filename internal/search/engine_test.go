package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/basho/internal/config"
	"github.com/hyperjump/basho/internal/intent"
	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/internal/provider"
	"github.com/hyperjump/basho/internal/reliability"
	"github.com/hyperjump/basho/internal/store"
	"github.com/hyperjump/basho/internal/truth"
)

var origin = models.LatLng{Lat: 35.0, Lng: 139.0}

type fakeProvider struct {
	mu        sync.Mutex
	places    []models.Place
	locations map[string]models.ResolvedLocation
	searchErr error
	geoErr    error
	block     bool
	queries   []models.ProviderQuery
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Close() error { return nil }

func (f *fakeProvider) Geocode(ctx context.Context, text string) (*models.ResolvedLocation, error) {
	if f.geoErr != nil {
		return nil, f.geoErr
	}
	loc, ok := f.locations[text]
	if !ok {
		return nil, &reliability.GeocodingFailure{Location: text}
	}
	return &loc, nil
}

func (f *fakeProvider) Search(ctx context.Context, q models.ProviderQuery) ([]models.Place, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return append([]models.Place(nil), f.places...), nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type failingResolver struct{ err error }

func (r failingResolver) Resolve(context.Context, string) (*models.Intent, error) { return nil, r.err }

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

// north returns a point meters north of origin.
func north(meters float64) models.LatLng {
	return models.LatLng{Lat: origin.Lat + meters/111195, Lng: origin.Lng}
}

func strongPlace(id string, meters float64) models.Place {
	return models.Place{
		ID: id, Name: id, Category: "ramen", Location: north(meters),
		Rating: f64(4.6), ReviewCount: intp(1500), PriceLevel: intp(2),
	}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	fast := config.CallPolicy{Timeout: 50 * time.Millisecond, Attempts: 2, Backoff: time.Millisecond, Multiplier: 2, MaxBackoff: 5 * time.Millisecond}
	cfg.Reliability.Intent = fast
	cfg.Reliability.Geocode = fast
	cfg.Reliability.Provider = fast
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, res intent.Resolver, prov provider.Provider) (*Engine, store.Store) {
	t.Helper()
	st := store.NewMemoryStore(time.Minute, time.Hour)
	t.Cleanup(func() { _ = st.Shutdown() })
	guard := reliability.NewGuard(cfg.Reliability.Policies(), cfg.Reliability.Provider.Policy(), nil)
	return NewEngine(cfg, res, prov, st, guard, nil), st
}

func resultIDs(rs []models.ScoredResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func chipIDs(cs []models.Chip) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func TestEngine_Search_FixtureProvider(t *testing.T) {
	prov, err := provider.NewFixtureProvider("../provider/testdata/places.yaml", nil)
	require.NoError(t, err)
	defer prov.Close()

	cfg := testConfig()
	engine, st := newTestEngine(t, cfg, intent.NewRuleResolver(), prov)

	out, err := engine.Search(context.Background(), &models.SearchRequest{Query: "ramen near shibuya"})
	require.NoError(t, err)

	assert.Equal(t, "shibuya", out.Intent.Location)
	require.NotNil(t, out.Location)
	assert.Equal(t, models.GranularityNeighborhood, out.Location.Granularity)

	groups := out.Truth.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, models.GroupExact, groups[0].Kind)
	assert.ElementsMatch(t, []string{"ramen-ichiran", "ramen-afuri"}, resultIDs(groups[0].Results))
	assert.Equal(t, models.GroupNearby, groups[1].Kind)
	assert.Equal(t, []string{"ramen-kyushu"}, resultIDs(groups[1].Results))
	assert.Len(t, out.Truth.Results(), 3)

	stored, err := st.Get(context.Background(), out.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, SeedFor(out.Request.ID), stored.Seed)
	digest, err := truth.Digest(stored.Core)
	require.NoError(t, err)
	assert.Equal(t, stored.Digest, digest)
	assert.True(t, out.Truth.AssistantContext().HasLocation)
}

func TestEngine_Search_SameInputSameDigest(t *testing.T) {
	prov := &fakeProvider{places: []models.Place{strongPlace("b", 200), strongPlace("a", 200), strongPlace("c", 900)}}
	engine, _ := newTestEngine(t, testConfig(), intent.NewRuleResolver(), prov)
	req := func() *models.SearchRequest {
		return &models.SearchRequest{Query: "ramen", Center: &origin}
	}

	first, err := engine.Search(context.Background(), req())
	require.NoError(t, err)
	second, err := engine.Search(context.Background(), req())
	require.NoError(t, err)

	assert.NotEqual(t, first.Request.ID, second.Request.ID)
	assert.Equal(t, first.State.Digest, second.State.Digest)
	assert.Equal(t, []string{"a", "b", "c"}, resultIDs(first.Truth.Results()))
}

func TestEngine_Search_FailureReasons(t *testing.T) {
	places := []models.Place{strongPlace("p1", 100), strongPlace("p2", 300)}

	tests := []struct {
		name      string
		prov      *fakeProvider
		resolver  intent.Resolver
		req       models.SearchRequest
		reason    models.FailureReason
		mode      models.ResponseMode
		wantChips []string
		calls     int
	}{
		{
			name:      "no results",
			prov:      &fakeProvider{},
			req:       models.SearchRequest{Query: "ramen", Center: &origin},
			reason:    models.FailureNoResults,
			mode:      models.ModeRecovery,
			wantChips: []string{truth.ChipExpandRadius, truth.ChipRefineLocation},
			calls:     1,
		},
		{
			name:      "provider timeout",
			prov:      &fakeProvider{block: true},
			req:       models.SearchRequest{Query: "ramen", Center: &origin},
			reason:    models.FailureTimeout,
			mode:      models.ModeRecovery,
			wantChips: []string{truth.ChipRetrySearch},
			calls:     2,
		},
		{
			name:      "quota is not retried",
			prov:      &fakeProvider{searchErr: &reliability.QuotaExceeded{Provider: "fake"}},
			req:       models.SearchRequest{Query: "ramen", Center: &origin},
			reason:    models.FailureQuotaExceeded,
			mode:      models.ModeRecovery,
			wantChips: []string{truth.ChipRetrySearch},
			calls:     1,
		},
		{
			name:   "transient provider error retried",
			prov:   &fakeProvider{searchErr: &reliability.ProviderError{Provider: "fake", StatusCode: 503, Err: errors.New("unavailable")}},
			req:    models.SearchRequest{Query: "ramen", Center: &origin},
			reason: models.FailureProviderError,
			mode:   models.ModeRecovery,
			calls:  2,
		},
		{
			name:   "unknown location searches without a center",
			prov:   &fakeProvider{places: places},
			req:    models.SearchRequest{Query: "ramen in atlantis"},
			reason: models.FailureGeocodingFailed,
			mode:   models.ModeClarify,
			calls:  1,
		},
		{
			name:   "geocoder outage skips the provider",
			prov:   &fakeProvider{places: places, geoErr: &reliability.QuotaExceeded{Provider: "fake"}},
			req:    models.SearchRequest{Query: "ramen in shibuya"},
			reason: models.FailureQuotaExceeded,
			mode:   models.ModeRecovery,
			calls:  0,
		},
		{
			name:     "intent failure degrades to low confidence",
			prov:     &fakeProvider{places: places},
			resolver: failingResolver{err: &reliability.ValidationError{Message: "nope"}},
			req:      models.SearchRequest{Query: "ramen", Center: &origin},
			reason:   models.FailureLowConfidence,
			mode:     models.ModeClarify,
			calls:    1,
		},
		{
			name:   "open now requested but not reported",
			prov:   &fakeProvider{places: places},
			req:    models.SearchRequest{Query: "ramen", Center: &origin, Filters: &models.Filters{OpenNow: true}},
			reason: models.FailureLiveDataUnavailable,
			mode:   models.ModeRecovery,
			calls:  1,
		},
		{
			name:   "normal",
			prov:   &fakeProvider{places: places},
			req:    models.SearchRequest{Query: "ramen", Center: &origin},
			reason: models.FailureNone,
			mode:   models.ModeNormal,
			calls:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.resolver
			if res == nil {
				res = intent.NewRuleResolver()
			}
			engine, st := newTestEngine(t, testConfig(), res, tt.prov)
			req := tt.req

			out, err := engine.Search(context.Background(), &req)
			require.NoError(t, err)
			assert.Equal(t, tt.reason, out.Truth.FailureReason())
			assert.Equal(t, tt.mode, out.Truth.ResponseMode())
			assert.Equal(t, tt.calls, tt.prov.calls())
			if tt.wantChips != nil {
				assert.Equal(t, tt.wantChips, chipIDs(out.Truth.Chips()))
			}

			_, err = st.Get(context.Background(), out.Request.ID)
			assert.NoError(t, err, "state must be persisted for every outcome")
		})
	}
}

func TestEngine_Search_GeocodeFailurePassesNoCenter(t *testing.T) {
	prov := &fakeProvider{places: []models.Place{strongPlace("p1", 100)}}
	engine, _ := newTestEngine(t, testConfig(), intent.NewRuleResolver(), prov)

	_, err := engine.Search(context.Background(), &models.SearchRequest{Query: "ramen in atlantis"})
	require.NoError(t, err)
	require.Equal(t, 1, prov.calls())
	assert.Nil(t, prov.queries[0].Center)
}

func TestEngine_Search_RequestOverrides(t *testing.T) {
	prov := &fakeProvider{
		places: []models.Place{strongPlace("p1", 100)},
		locations: map[string]models.ResolvedLocation{
			"kyoto": {Label: "Kyoto", Center: origin, Granularity: models.GranularityCity},
		},
	}
	engine, _ := newTestEngine(t, testConfig(), intent.NewRuleResolver(), prov)

	out, err := engine.Search(context.Background(), &models.SearchRequest{
		Query:    "cheap ramen in osaka",
		Location: "kyoto",
		Language: "ja-JP",
		Filters:  &models.Filters{PriceLevels: []int{3}},
	})
	require.NoError(t, err)
	assert.Equal(t, "kyoto", out.Intent.Location)
	assert.Equal(t, []int{3}, out.Intent.Filters.PriceLevels)
	assert.Equal(t, "ja", out.Intent.Language)
	assert.Equal(t, models.GranularityCity, out.Location.Granularity)
	assert.Equal(t, "ja", out.Truth.AssistantContext().Language)
	assert.Equal(t, 5000.0, prov.queries[0].RadiusM)
}

func TestEngine_Search_Limit(t *testing.T) {
	var places []models.Place
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		places = append(places, strongPlace(id, float64(100+i*50)))
	}
	engine, _ := newTestEngine(t, testConfig(), intent.NewRuleResolver(), &fakeProvider{places: places})

	out, err := engine.Search(context.Background(), &models.SearchRequest{Query: "ramen", Center: &origin, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, resultIDs(out.Truth.Results()))
}

func TestEngine_Search_Explain(t *testing.T) {
	var places []models.Place
	for i, id := range []string{"a", "b", "c"} {
		places = append(places, strongPlace(id, float64(100+i*50)))
	}
	engine, _ := newTestEngine(t, testConfig(), intent.NewRuleResolver(), &fakeProvider{places: places})

	plain, err := engine.Search(context.Background(), &models.SearchRequest{Query: "ramen", Center: &origin})
	require.NoError(t, err)
	assert.Nil(t, plain.Breakdown)

	out, err := engine.Search(context.Background(), &models.SearchRequest{Query: "ramen", Center: &origin, Limit: 2, Explain: true})
	require.NoError(t, err)
	require.Len(t, out.Breakdown, 2)
	for _, r := range out.Truth.Results() {
		b, ok := out.Breakdown[r.ID]
		require.True(t, ok, r.ID)
		assert.Equal(t, r.Score, b.Final)
		assert.Contains(t, b.Components, "distance")
	}
	assert.NotContains(t, out.Breakdown, "c")
}

func TestEngine_Search_Validation(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig(), intent.NewRuleResolver(), &fakeProvider{})

	_, err := engine.Search(context.Background(), &models.SearchRequest{Query: "   "})
	var ve *reliability.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = engine.Search(context.Background(), nil)
	assert.ErrorAs(t, err, &ve)
}

func TestEngine_Search_Cancelled(t *testing.T) {
	engine, st := newTestEngine(t, testConfig(), intent.NewRuleResolver(), &fakeProvider{block: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Search(ctx, &models.SearchRequest{Query: "ramen", Center: &origin})
	assert.ErrorIs(t, err, context.Canceled)
	n, err := st.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSeedFor(t *testing.T) {
	assert.Equal(t, SeedFor("req-1"), SeedFor("req-1"))
	assert.NotEqual(t, SeedFor("req-1"), SeedFor("req-2"))
}
