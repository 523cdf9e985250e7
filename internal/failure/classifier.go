// Package failure assigns the single deterministic FailureReason of a request.
package failure

import (
	"errors"
	"fmt"

	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/internal/reliability"
)

// Config holds the classifier thresholds.
type Config struct {
	LowConfidenceThreshold float64 `yaml:"low_confidence_threshold"` // default: 0.5
	LiveDataTopN           int     `yaml:"live_data_top_n"`          // default: 3
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{LowConfidenceThreshold: 0.5, LiveDataTopN: 3}
}

// ApplyDefaults fills in unset thresholds.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.LowConfidenceThreshold == 0 {
		c.LowConfidenceThreshold = d.LowConfidenceThreshold
	}
	if c.LiveDataTopN == 0 {
		c.LiveDataTopN = d.LiveDataTopN
	}
}

// Validate checks threshold ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.LowConfidenceThreshold < 0 || c.LowConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("failure.low_confidence_threshold %.2f outside [0,1]", c.LowConfidenceThreshold))
	}
	if c.LiveDataTopN < 1 {
		errs = append(errs, errors.New("failure.live_data_top_n must be at least 1"))
	}
	return errors.Join(errs...)
}

// Signals are the facts upstream stages report about a request.
// Only counts, confidence numbers, flags and infrastructure errors are considered.
type Signals struct {
	// InfraErr is the error returned by the guarded provider call, if any.
	InfraErr            error
	ProviderResultCount int
	GeocodingFailed     bool
	IntentConfidence    float64
	LiveDataRequested   bool
	// TopOpenStates holds the open state of the top ranked results, in order.
	TopOpenStates  []models.OpenState
	SurvivingCount int
	WeakCount      int
}

// Classify evaluates the decision table in priority order and returns exactly one reason.
func Classify(s Signals, cfg Config) models.FailureReason {
	cfg.ApplyDefaults()

	if s.InfraErr != nil {
		switch {
		case reliability.IsTimeout(s.InfraErr):
			return models.FailureTimeout
		case reliability.IsQuota(s.InfraErr):
			return models.FailureQuotaExceeded
		case reliability.IsGeocoding(s.InfraErr):
			// A geocoding error is a business outcome, ranked below no-results.
			s.GeocodingFailed = true
		default:
			return models.FailureProviderError
		}
	}

	if s.ProviderResultCount == 0 || s.SurvivingCount == 0 {
		return models.FailureNoResults
	}
	if s.GeocodingFailed {
		return models.FailureGeocodingFailed
	}
	if s.IntentConfidence < cfg.LowConfidenceThreshold {
		return models.FailureLowConfidence
	}
	if s.LiveDataRequested && !anyOpen(s.TopOpenStates, cfg.LiveDataTopN) {
		return models.FailureLiveDataUnavailable
	}
	if s.WeakCount > 0 && s.WeakCount == s.SurvivingCount {
		return models.FailureWeakMatches
	}
	return models.FailureNone
}

func anyOpen(states []models.OpenState, n int) bool {
	if n < len(states) {
		states = states[:n]
	}
	for _, st := range states {
		if st == models.OpenTrue {
			return true
		}
	}
	return false
}

// SignalsFromResults fills the result-derived fields of s from the ranked, grouped results.
func SignalsFromResults(s Signals, results []models.ScoredResult, topN int) Signals {
	s.SurvivingCount = len(results)
	s.WeakCount = 0
	for _, r := range results {
		if r.IsWeakMatch {
			s.WeakCount++
		}
	}
	if topN <= 0 || topN > len(results) {
		topN = len(results)
	}
	s.TopOpenStates = make([]models.OpenState, topN)
	for i := 0; i < topN; i++ {
		s.TopOpenStates[i] = results[i].OpenNow
	}
	return s
}
