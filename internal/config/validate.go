package config

import (
	"errors"
	"fmt"
)

// Validate rejects settings that would break pipeline invariants.
func Validate(cfg *Config) error {
	var errs []error
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", cfg.Server.Port))
	}
	if err := cfg.Ranking.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ranking: %w", err))
	}
	if err := cfg.Grouping.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("grouping: %w", err))
	}
	if err := cfg.Failure.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("failure: %w", err))
	}
	switch cfg.Store.Backend {
	case StoreMemory, StoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("store.backend %q: want %s or %s", cfg.Store.Backend, StoreMemory, StoreSQLite))
	}
	if cfg.Store.TTL < 0 || cfg.Store.SweepInterval < 0 {
		errs = append(errs, errors.New("store durations must not be negative"))
	}
	// A state that expires mid-job cannot take its terminal status.
	if cfg.Store.TTL > 0 && cfg.Store.TTL <= cfg.Jobs.NarrationTimeout {
		errs = append(errs, fmt.Errorf("store.ttl %s must exceed jobs.narration_timeout %s", cfg.Store.TTL, cfg.Jobs.NarrationTimeout))
	}
	switch cfg.Provider.Kind {
	case ProviderFixture:
		if cfg.Provider.FixturePath == "" {
			errs = append(errs, errors.New("provider.fixture_path is required for the fixture provider"))
		}
	case ProviderHTTP:
		if cfg.Provider.BaseURL == "" {
			errs = append(errs, errors.New("provider.base_url is required for the http provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("provider.kind %q: want %s or %s", cfg.Provider.Kind, ProviderFixture, ProviderHTTP))
	}
	switch cfg.Narration.Kind {
	case NarratorTemplate, NarratorOpenAI:
	default:
		errs = append(errs, fmt.Errorf("narration.kind %q: want %s or %s", cfg.Narration.Kind, NarratorTemplate, NarratorOpenAI))
	}
	if cfg.Jobs.Workers < 1 {
		errs = append(errs, errors.New("jobs.workers must be at least 1"))
	}
	return errors.Join(errs...)
}
