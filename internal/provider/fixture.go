package provider

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/internal/ranking"
	"github.com/hyperjump/basho/internal/reliability"
	"github.com/hyperjump/basho/internal/watcher"
	"github.com/hyperjump/basho/pkg/utils"
)

// FixtureFile is the on-disk layout of a fixture.
type FixtureFile struct {
	Locations []FixtureLocation `yaml:"locations"`
	Places    []models.Place    `yaml:"places"`
}

// FixtureLocation is a named location the fixture provider can geocode.
type FixtureLocation struct {
	Name        string             `yaml:"name"`
	Aliases     []string           `yaml:"aliases"`
	Center      models.LatLng      `yaml:"center"`
	Granularity models.Granularity `yaml:"granularity"`
}

// Categories that match every place.
var genericCategories = map[string]bool{"": true, "restaurant": true, "restaurants": true, "food": true}

// placeDoc is what gets indexed for one place.
type placeDoc struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Cuisines string `json:"cuisines"`
	Tags     string `json:"tags"`
}

type fixtureData struct {
	places    map[string]models.Place
	locations map[string]models.ResolvedLocation
	index     bleve.Index
}

// FixtureProvider serves places from a YAML file through an in-memory bleve index.
type FixtureProvider struct {
	path    string
	logger  *zap.Logger
	mu      sync.RWMutex
	data    *fixtureData
	watcher *watcher.Watcher
}

// NewFixtureProvider loads the fixture at path.
func NewFixtureProvider(path string, logger *zap.Logger) (*FixtureProvider, error) {
	p := &FixtureProvider{path: path, logger: utils.OrNop(logger)}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Name returns "fixture".
func (p *FixtureProvider) Name() string { return "fixture" }

// Reload re-reads the fixture file. On error the previously loaded data stays in place.
func (p *FixtureProvider) Reload() error {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("failed to read fixture: %w", err)
	}
	var f FixtureFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("failed to parse fixture: %w", err)
	}
	data, err := buildFixture(f)
	if err != nil {
		return err
	}

	p.mu.Lock()
	old := p.data
	p.data = data
	p.mu.Unlock()
	if old != nil {
		_ = old.index.Close()
	}
	p.logger.Info("fixture loaded", zap.String("path", p.path), zap.Int("places", len(data.places)), zap.Int("locations", len(data.locations)))
	return nil
}

func buildFixture(f FixtureFile) (*fixtureData, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	for _, field := range []string{"name", "category", "cuisines", "tags"} {
		docMapping.AddFieldMappingsAt(field, text)
	}
	im.AddDocumentMapping("place", docMapping)
	im.DefaultType = "place"
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create place index: %w", err)
	}

	data := &fixtureData{
		places:    make(map[string]models.Place, len(f.Places)),
		locations: make(map[string]models.ResolvedLocation),
		index:     index,
	}
	batch := index.NewBatch()
	for _, pl := range f.Places {
		if pl.ID == "" {
			_ = index.Close()
			return nil, fmt.Errorf("fixture place %q has no id", pl.Name)
		}
		if _, dup := data.places[pl.ID]; dup {
			continue
		}
		data.places[pl.ID] = pl
		doc := placeDoc{
			Name:     pl.Name,
			Category: strings.ReplaceAll(pl.Category, "_", " "),
			Cuisines: strings.Join(pl.Cuisines, " "),
			Tags:     strings.ReplaceAll(strings.Join(pl.Tags, " "), "_", " "),
		}
		if err := batch.Index(pl.ID, doc); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("failed to index place %s: %w", pl.ID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to index places: %w", err)
	}

	for _, loc := range f.Locations {
		g := loc.Granularity
		if g == "" {
			g = models.GranularityUnknown
		}
		resolved := models.ResolvedLocation{Label: loc.Name, Center: loc.Center, Granularity: g}
		for _, key := range append([]string{loc.Name}, loc.Aliases...) {
			data.locations[normalizeKey(key)] = resolved
		}
	}
	return data, nil
}

func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Geocode resolves a named fixture location or a literal "lat,lng" pair.
func (p *FixtureProvider) Geocode(ctx context.Context, text string) (*models.ResolvedLocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ll, ok := parseLatLng(text); ok {
		return &models.ResolvedLocation{Label: text, Center: ll, Granularity: models.GranularityStreet}, nil
	}
	p.mu.RLock()
	loc, ok := p.data.locations[normalizeKey(text)]
	p.mu.RUnlock()
	if !ok {
		return nil, &reliability.GeocodingFailure{Location: text}
	}
	return &loc, nil
}

func parseLatLng(text string) (models.LatLng, bool) {
	parts := strings.Split(text, ",")
	if len(parts) != 2 {
		return models.LatLng{}, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return models.LatLng{}, false
	}
	return models.LatLng{Lat: lat, Lng: lng}, true
}

// Search matches the category against name, category, cuisine and tags, and the cuisine
// filter against cuisines. Results outside q.RadiusM of q.Center are dropped.
// Hits come back by relevance, ties broken by id.
func (p *FixtureProvider) Search(ctx context.Context, q models.ProviderQuery) ([]models.Place, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	data := p.data
	if len(data.places) == 0 {
		return []models.Place{}, nil
	}

	req := bleve.NewSearchRequest(buildQuery(q))
	req.Size = len(data.places)
	req.SortBy([]string{"-_score", "_id"})
	res, err := data.index.SearchInContext(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &reliability.ProviderError{Provider: p.Name(), Err: err}
	}

	out := make([]models.Place, 0, len(res.Hits))
	for _, hit := range res.Hits {
		pl, ok := data.places[hit.ID]
		if !ok {
			continue
		}
		if q.Center != nil && q.RadiusM > 0 && ranking.HaversineMeters(*q.Center, pl.Location) > q.RadiusM {
			continue
		}
		out = append(out, clonePlace(pl))
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func buildQuery(q models.ProviderQuery) blevequery.Query {
	category := strings.ToLower(strings.TrimSpace(q.Category))
	var parts []blevequery.Query
	if !genericCategories[category] {
		parts = append(parts, bleve.NewMatchQuery(category))
	}
	if q.Filters.Cuisine != "" {
		cq := bleve.NewMatchQuery(q.Filters.Cuisine)
		cq.SetField("cuisines")
		parts = append(parts, cq)
	}
	switch len(parts) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return parts[0]
	default:
		return bleve.NewDisjunctionQuery(parts...)
	}
}

func clonePlace(p models.Place) models.Place {
	p.Cuisines = append([]string(nil), p.Cuisines...)
	p.Tags = append([]string(nil), p.Tags...)
	if p.Rating != nil {
		v := *p.Rating
		p.Rating = &v
	}
	if p.ReviewCount != nil {
		v := *p.ReviewCount
		p.ReviewCount = &v
	}
	if p.PriceLevel != nil {
		v := *p.PriceLevel
		p.PriceLevel = &v
	}
	return p
}

// Watch reloads the fixture whenever the file changes, until ctx is cancelled or Close is called.
func (p *FixtureProvider) Watch(ctx context.Context) error {
	w := watcher.New([]string{p.path}, func(string) {
		if err := p.Reload(); err != nil {
			p.logger.Warn("fixture reload failed", zap.String("path", p.path), zap.Error(err))
		}
	}, watcher.WithLogger(p.logger))
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to watch fixture: %w", err)
	}
	p.mu.Lock()
	p.watcher = w
	p.mu.Unlock()
	return nil
}

// Close stops watching and releases the index.
func (p *FixtureProvider) Close() error {
	p.mu.Lock()
	w := p.watcher
	p.watcher = nil
	data := p.data
	p.mu.Unlock()
	if w != nil {
		w.Stop()
	}
	if data != nil {
		return data.index.Close()
	}
	return nil
}
