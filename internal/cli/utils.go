// Package cli provides CLI utilities for Basho.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// WriteSearchResults writes a search response to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

// WriteRequestState writes a stored request state to w in the given format.
func WriteRequestState(w io.Writer, st *models.RequestState, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, st)
	default:
		writeRequestStateText(w, st)
		return nil
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	meta := response.Meta
	fmt.Fprintf(w, "\nFound %d places in %dms (%s, %s)\n", meta.Total, meta.TookMs, meta.ResponseMode, meta.FailureReason)
	if meta.Location != nil {
		fmt.Fprintf(w, "Near: %s (%s)\n", meta.Location.Label, meta.Location.Granularity)
	}
	fmt.Fprintf(w, "Request: %s\n\n", response.RequestID)

	writeGroups(w, response.Groups, response.Meta.Breakdown)
	writeAssistant(w, response.Assistant)
	writeRecommendations(w, response.Recommendations)
	writeChips(w, response.Chips)
}

func writeRequestStateText(w io.Writer, st *models.RequestState) {
	core := st.Core
	fmt.Fprintf(w, "\nRequest %s: %q\n", st.RequestID, st.Query)
	fmt.Fprintf(w, "Status: %s | %s, %s | %d places\n", st.Status, core.ResponseMode, core.FailureReason, len(core.Results))
	if st.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", st.Error)
	}
	fmt.Fprintln(w)
	writeGroups(w, core.Groups, nil)
	writeAssistant(w, st.Output)
	writeRecommendations(w, st.Recommendations)
	writeChips(w, core.Chips)
}

func writeGroups(w io.Writer, groups []models.ResultGroup, breakdown map[string]models.ScoreExplanation) {
	rank := 0
	for _, g := range groups {
		if len(g.Results) == 0 {
			continue
		}
		fmt.Fprintf(w, "--- %s ---\n", strings.ToLower(string(g.Kind)))
		for _, r := range g.Results {
			rank++
			writeOneResult(w, rank, r, breakdown)
		}
	}
}

func writeOneResult(w io.Writer, rank int, r models.ScoredResult, breakdown map[string]models.ScoreExplanation) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	weak := ""
	if r.IsWeakMatch {
		weak = " (weak match)"
	}
	fmt.Fprintf(w, "Rank: %d | Score: %.1f%s\n", rank, r.Score, weak)
	fmt.Fprintf(w, "Name: %s\n", r.Name)
	fmt.Fprintf(w, "ID: %s\n", r.ID)
	if r.DistanceMeters != nil {
		fmt.Fprintf(w, "Distance: %.0fm\n", *r.DistanceMeters)
	}
	if r.Rating != nil {
		fmt.Fprintf(w, "Rating: %.1f\n", *r.Rating)
	}
	fmt.Fprintf(w, "Open now: %s\n", r.OpenNow)
	if len(r.MatchReasons) > 0 {
		fmt.Fprintf(w, "Why: %s\n", strings.Join(r.MatchReasons, ", "))
	}
	if b, ok := breakdown[r.ID]; ok {
		writeBreakdown(w, b)
	}
	fmt.Fprintln(w)
}

// writeBreakdown prints score components in name order.
func writeBreakdown(w io.Writer, b models.ScoreExplanation) {
	names := make([]string, 0, len(b.Components))
	for name := range b.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%.1f", name, b.Components[name]))
	}
	fmt.Fprintf(w, "Breakdown: %s (raw %.1f)\n", strings.Join(parts, " "), b.Raw)
}

func writeAssistant(w io.Writer, out *models.AssistantOutput) {
	if out == nil || out.Text == "" {
		return
	}
	label := "Assistant"
	switch {
	case out.Partial:
		label += " (partial)"
	case out.Fallback:
		label += " (fallback)"
	}
	fmt.Fprintf(w, "%s:\n%s\n\n", label, Truncate(out.Text, 600))
}

func writeRecommendations(w io.Writer, recs []models.Recommendation) {
	if len(recs) == 0 {
		return
	}
	fmt.Fprintln(w, "Recommended:")
	for _, r := range recs {
		fmt.Fprintf(w, "  %d. %s [%s]\n", r.Rank, r.Name, r.Reason)
	}
	fmt.Fprintln(w)
}

func writeChips(w io.Writer, chips []models.Chip) {
	if len(chips) == 0 {
		return
	}
	labels := make([]string, len(chips))
	for i, c := range chips {
		labels[i] = c.Label
	}
	fmt.Fprintf(w, "Try: %s\n", TruncateWords(strings.Join(labels, " | "), 24))
}

// PrintSearchResults prints a search response to stdout in text format.
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	return utils.Truncate(s, maxLen)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
