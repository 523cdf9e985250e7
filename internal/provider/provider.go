// Package provider defines the place provider collaborator and its implementations.
package provider

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/hyperjump/basho/internal/config"
	"github.com/hyperjump/basho/internal/models"
)

// Provider geocodes location text and searches for places.
// Implementations report OpenNow exactly as their source does and never infer it.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, text string) (*models.ResolvedLocation, error)
	Search(ctx context.Context, q models.ProviderQuery) ([]models.Place, error)
	Close() error
}

// New creates the provider selected by cfg.Kind.
func New(cfg config.ProviderConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Kind {
	case config.ProviderFixture, "":
		return NewFixtureProvider(cfg.FixturePath, logger)
	case config.ProviderHTTP:
		apiKey := os.Getenv(cfg.APIKeyEnv)
		return NewHTTPProvider(cfg.BaseURL, apiKey, cfg.HTTPTimeout), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}
