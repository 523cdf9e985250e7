// Package search runs the deterministic fast path: intent, geocode, provider, rank, group,
// classify and freeze into a TruthState.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/basho/internal/config"
	"github.com/hyperjump/basho/internal/failure"
	"github.com/hyperjump/basho/internal/grouping"
	"github.com/hyperjump/basho/internal/intent"
	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/internal/provider"
	"github.com/hyperjump/basho/internal/ranking"
	"github.com/hyperjump/basho/internal/reliability"
	"github.com/hyperjump/basho/internal/store"
	"github.com/hyperjump/basho/internal/truth"
	"github.com/hyperjump/basho/pkg/utils"
)

// Engine runs the fast path of a search.
type Engine struct {
	resolver intent.Resolver
	provider provider.Provider
	store    store.Store
	guard    *reliability.Guard
	ranker   *ranking.Ranker
	config   *config.Config
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(
	cfg *config.Config,
	resolver intent.Resolver,
	prov provider.Provider,
	st store.Store,
	guard *reliability.Guard,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		resolver: resolver,
		provider: prov,
		store:    st,
		guard:    guard,
		ranker:   ranking.NewRanker(&cfg.Ranking),
		config:   cfg,
		logger:   utils.OrNop(logger),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Outcome is the frozen result of one fast-path run.
type Outcome struct {
	Request  *RequestContext
	Intent   *models.Intent
	Location *models.ResolvedLocation
	Truth    *models.TruthState
	State    *models.RequestState
	Took     time.Duration
	// Breakdown is set for explain requests and covers the returned results only.
	Breakdown map[string]models.ScoreExplanation
}

// Search runs the fast path and persists a pending RequestState.
// Collaborator failures become failure signals; only invalid input, cancellation and store
// errors are returned.
func (e *Engine) Search(ctx context.Context, req *models.SearchRequest) (*Outcome, error) {
	if err := ProcessRequest(req, e.config.Search); err != nil {
		return nil, err
	}
	rc := NewRequestContext(e.config, e.logger, e.now())
	log := rc.Logger

	in, err := e.resolveIntent(ctx, rc, req)
	if err != nil {
		return nil, err
	}

	signals := failure.Signals{
		IntentConfidence:  in.Confidence,
		LiveDataRequested: in.Filters.OpenNow,
	}

	loc, err := e.locate(ctx, rc, req, in)
	switch {
	case err == nil:
	case isCancelled(ctx, err):
		return nil, err
	case reliability.IsGeocoding(err):
		log.Info("location not resolved", zap.String("location", in.Location))
		signals.GeocodingFailed = true
	default:
		log.Warn("geocoding failed", zap.Error(err))
		signals.InfraErr = err
	}

	var center *models.LatLng
	granularity := models.GranularityUnknown
	if loc != nil {
		c := loc.Center
		center = &c
		granularity = loc.Granularity
	}
	radii := e.config.Grouping.RadiiFor(granularity)

	var places []models.Place
	if signals.InfraErr == nil {
		places, err = reliability.Call(ctx, e.guard, config.OpProvider, func(ctx context.Context) ([]models.Place, error) {
			return e.provider.Search(ctx, models.ProviderQuery{
				Category: in.Category,
				Center:   center,
				RadiusM:  searchRadius(e.config.Search.SearchRadiusM, radii.NearbyM),
				Filters:  in.Filters,
				Limit:    e.config.Search.ProviderLimit,
			})
		})
		if err != nil {
			if isCancelled(ctx, err) {
				return nil, err
			}
			log.Warn("provider search failed", zap.Error(err))
			signals.InfraErr = err
			places = nil
		}
	}
	signals.ProviderResultCount = len(places)

	rin := ranking.Input{
		Places:   places,
		Filters:  in.Filters,
		Category: in.Category,
		Center:   center,
	}
	var (
		ranked     []models.ScoredResult
		breakdowns map[string]*ranking.ScoreBreakdown
	)
	if req.Explain {
		ranked, breakdowns = e.ranker.RankWithBreakdown(rin)
	} else {
		ranked = e.ranker.Rank(rin)
	}
	ranked = ranking.TopN(ranked, req.Limit)
	groups, results := grouping.Partition(ranked, center, radii)

	signals = failure.SignalsFromResults(signals, results, e.config.Failure.LiveDataTopN)
	reason := failure.Classify(signals, e.config.Failure)

	ts := truth.Build(truth.Input{
		Query:       req.Query,
		Language:    in.Language,
		Results:     results,
		Groups:      groups,
		Reason:      reason,
		Filters:     in.Filters,
		HasLocation: center != nil,
	})
	core := ts.Core()
	digest, err := truth.Digest(core)
	if err != nil {
		return nil, err
	}

	state := &models.RequestState{
		RequestID: rc.ID,
		Query:     req.Query,
		Core:      core,
		Digest:    digest,
		Status:    models.StatusPending,
		Seed:      rc.Seed,
	}
	if err := e.store.Set(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to persist request state: %w", err)
	}

	took := e.now().Sub(rc.Start)
	log.Debug("search finished",
		zap.String("failure_reason", string(reason)),
		zap.String("response_mode", string(ts.ResponseMode())),
		zap.Int("provider_results", len(places)),
		zap.Int("results", len(results)),
		zap.Duration("took", took))

	return &Outcome{
		Request:   rc,
		Intent:    in,
		Location:  loc,
		Truth:     ts,
		State:     state,
		Took:      took,
		Breakdown: explain(results, breakdowns),
	}, nil
}

// explain keeps the breakdowns of the results that made it into the response.
func explain(results []models.ScoredResult, breakdowns map[string]*ranking.ScoreBreakdown) map[string]models.ScoreExplanation {
	if breakdowns == nil {
		return nil
	}
	out := make(map[string]models.ScoreExplanation, len(results))
	for _, r := range results {
		b, ok := breakdowns[r.ID]
		if !ok {
			continue
		}
		comps := make(map[string]float64, len(b.Components))
		for k, v := range b.Components {
			comps[k] = v
		}
		out[r.ID] = models.ScoreExplanation{Components: comps, Raw: b.Raw, Final: b.Final}
	}
	return out
}

// resolveIntent runs the guarded intent call. A failed resolver degrades to a zero-confidence
// intent built from the raw query so the request still gets results and a clarify posture.
func (e *Engine) resolveIntent(ctx context.Context, rc *RequestContext, req *models.SearchRequest) (*models.Intent, error) {
	in, err := reliability.Call(ctx, e.guard, config.OpIntent, func(ctx context.Context) (*models.Intent, error) {
		return e.resolver.Resolve(ctx, req.Query)
	})
	if err != nil {
		if isCancelled(ctx, err) {
			return nil, err
		}
		rc.Logger.Warn("intent resolution failed", zap.Error(err))
		in = &models.Intent{Category: strings.ToLower(req.Query)}
	}
	applyOverrides(in, req, e.config.Search.DefaultLanguage)
	return in, nil
}

// locate returns the search center: an explicit request center wins, then geocoded text.
// No location at all is not an error.
func (e *Engine) locate(ctx context.Context, rc *RequestContext, req *models.SearchRequest, in *models.Intent) (*models.ResolvedLocation, error) {
	if req.Center != nil {
		return &models.ResolvedLocation{Label: in.Location, Center: *req.Center, Granularity: models.GranularityStreet}, nil
	}
	if in.Location == "" {
		return nil, nil
	}
	loc, err := reliability.Call(ctx, e.guard, config.OpGeocode, func(ctx context.Context) (*models.ResolvedLocation, error) {
		return e.provider.Geocode(ctx, in.Location)
	})
	if err != nil {
		return nil, err
	}
	rc.Logger.Debug("location resolved", zap.String("label", loc.Label), zap.String("granularity", string(loc.Granularity)))
	return loc, nil
}

func searchRadius(configured, nearby float64) float64 {
	if nearby > configured {
		return nearby
	}
	return configured
}

func isCancelled(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled
}
