package grouping

import (
	"errors"
	"fmt"

	"github.com/hyperjump/basho/internal/models"
)

// Radii are the proximity tier boundaries in meters.
type Radii struct {
	ExactM  float64 `yaml:"exact_m"`
	NearbyM float64 `yaml:"nearby_m"`
}

// Config holds the radii used for each location granularity.
type Config struct {
	Street       Radii `yaml:"street"`       // default: 250 / 1000
	Neighborhood Radii `yaml:"neighborhood"` // default: 500 / 2000
	City         Radii `yaml:"city"`         // default: 1500 / 5000
	Default      Radii `yaml:"default"`      // default: 500 / 2000
}

// DefaultConfig returns the default grouping radii.
func DefaultConfig() Config {
	return Config{
		Street:       Radii{ExactM: 250, NearbyM: 1000},
		Neighborhood: Radii{ExactM: 500, NearbyM: 2000},
		City:         Radii{ExactM: 1500, NearbyM: 5000},
		Default:      Radii{ExactM: 500, NearbyM: 2000},
	}
}

// ApplyDefaults fills in unset radii.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	fill(&c.Street, d.Street)
	fill(&c.Neighborhood, d.Neighborhood)
	fill(&c.City, d.City)
	fill(&c.Default, d.Default)
}

func fill(r *Radii, d Radii) {
	if r.ExactM == 0 {
		r.ExactM = d.ExactM
	}
	if r.NearbyM == 0 {
		r.NearbyM = d.NearbyM
	}
}

// Validate requires 0 < exact < nearby for every granularity.
func (c *Config) Validate() error {
	var errs []error
	for _, named := range []struct {
		name string
		r    Radii
	}{
		{"street", c.Street},
		{"neighborhood", c.Neighborhood},
		{"city", c.City},
		{"default", c.Default},
	} {
		if named.r.ExactM <= 0 || named.r.NearbyM <= named.r.ExactM {
			errs = append(errs, fmt.Errorf("grouping.%s: need 0 < exact_m (%.0f) < nearby_m (%.0f)", named.name, named.r.ExactM, named.r.NearbyM))
		}
	}
	return errors.Join(errs...)
}

// RadiiFor returns the radii for a location granularity, falling back to Default.
func (c Config) RadiiFor(g models.Granularity) Radii {
	switch g {
	case models.GranularityStreet:
		return c.Street
	case models.GranularityNeighborhood:
		return c.Neighborhood
	case models.GranularityCity:
		return c.City
	default:
		return c.Default
	}
}
