// Package truth freezes pipeline output into an immutable TruthState and derives everything
// the narration layer is allowed to see.
package truth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/hyperjump/basho/internal/models"
)

// MaxTopResults bounds the result ids exposed to narration.
const MaxTopResults = 3

// Input is the output of the ranking, grouping and classification stages for one request.
type Input struct {
	Query       string
	Language    string
	Results     []models.ScoredResult
	Groups      []models.ResultGroup
	Reason      models.FailureReason
	Filters     models.Filters
	HasLocation bool
}

// ResponseModeFor maps a failure reason and the weak-match flag to a response mode.
func ResponseModeFor(reason models.FailureReason, hasWeak bool) models.ResponseMode {
	switch reason {
	case models.FailureGeocodingFailed, models.FailureLowConfidence:
		return models.ModeClarify
	case models.FailureNone:
		if hasWeak {
			return models.ModeRecovery
		}
		return models.ModeNormal
	default:
		return models.ModeRecovery
	}
}

// Build freezes in into a TruthState. It is the only place that reads full results and chips
// to project the AssistantContext.
func Build(in Input) *models.TruthState {
	mode := ResponseModeFor(in.Reason, models.HasWeakMatches(in.Results))
	chips := Chips(ChipInput{
		Reason:      in.Reason,
		Mode:        mode,
		Filters:     in.Filters,
		HasLocation: in.HasLocation,
		ResultCount: len(in.Results),
	})
	return models.NewTruthState(in.Results, in.Groups, chips, in.Reason, mode, project(in, chips))
}

func project(in Input, chips []models.Chip) models.AssistantContext {
	n := len(in.Results)
	if n > MaxTopResults {
		n = MaxTopResults
	}
	top := make([]string, n)
	for i := 0; i < n; i++ {
		top[i] = in.Results[i].ID
	}

	refs := make([]models.ChipRef, len(chips))
	for i, c := range chips {
		refs[i] = models.ChipRef{ID: c.ID, Label: c.Label}
	}

	return models.AssistantContext{
		Language:         in.Language,
		Query:            in.Query,
		ResultCount:      len(in.Results),
		TopResultIDs:     top,
		Chips:            refs,
		RequiresLiveData: in.Filters.OpenNow,
		IsLowConfidence:  in.Reason == models.FailureLowConfidence,
		HasLocation:      in.HasLocation,
	}
}

// Digest returns the sha256 hex digest of the RFC 8785 canonical JSON of the core result.
// Equal truth states always produce equal digests regardless of map ordering.
func Digest(core models.CoreResult) (string, error) {
	raw, err := json.Marshal(core)
	if err != nil {
		return "", fmt.Errorf("failed to marshal core result: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize core result: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// ValidateActions keeps only action ids present in the chip allowlist of ctx.
// An unknown primary id is dropped; secondary ids are deduplicated and never repeat the primary.
func ValidateActions(ctx models.AssistantContext, primary string, secondary []string) (string, []string) {
	if !ctx.HasChip(primary) {
		primary = ""
	}
	seen := map[string]bool{primary: true}
	kept := make([]string, 0, len(secondary))
	for _, id := range secondary {
		if seen[id] || !ctx.HasChip(id) {
			continue
		}
		seen[id] = true
		kept = append(kept, id)
	}
	return primary, kept
}
