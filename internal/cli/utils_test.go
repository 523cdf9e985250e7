package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/hyperjump/basho/internal/models"
)

func floatPtr(v float64) *float64 { return &v }

func sampleResponse() *models.SearchResponse {
	ichiran := models.ScoredResult{
		Place: models.Place{
			ID:      "ramen-ichiran",
			Name:    "Ichiran Shibuya",
			Rating:  floatPtr(4.4),
			OpenNow: models.OpenTrue,
		},
		Score:          82.5,
		MatchReasons:   []string{"highly_rated", "very_close"},
		DistanceMeters: floatPtr(124),
		GroupKind:      models.GroupExact,
	}
	kyushu := models.ScoredResult{
		Place:          models.Place{ID: "ramen-kyushu", Name: "Kyushu Jangara"},
		Score:          31,
		IsWeakMatch:    true,
		DistanceMeters: floatPtr(1369),
		GroupKind:      models.GroupNearby,
	}
	return &models.SearchResponse{
		RequestID: "req-1",
		Results:   []models.ScoredResult{ichiran, kyushu},
		Groups: []models.ResultGroup{
			{Kind: models.GroupExact, Results: []models.ScoredResult{ichiran}},
			{Kind: models.GroupNearby, Results: []models.ScoredResult{kyushu}},
		},
		Chips: []models.Chip{{ID: "open_now", Label: "Open now"}, {ID: "top_rated", Label: "Top rated"}},
		Meta: models.SearchMeta{
			FailureReason: models.FailureNone,
			ResponseMode:  models.ModeNormal,
			Total:         2,
			TookMs:        42,
			Location:      &models.ResolvedLocation{Label: "Shibuya", Granularity: models.GranularityNeighborhood},
		},
		Assistant:       &models.AssistantOutput{Text: "Ichiran is open and close by."},
		Recommendations: []models.Recommendation{{Rank: 1, ResultID: "ramen-ichiran", Name: "Ichiran Shibuya", Reason: "highly_rated"}},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	response := sampleResponse()
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.RequestID != "req-1" || decoded.Meta.TookMs != 42 {
		t.Errorf("decoded request_id=%q took=%d", decoded.RequestID, decoded.Meta.TookMs)
	}
	if len(decoded.Results) != 2 || decoded.Results[0].OpenNow != models.OpenTrue {
		t.Errorf("decoded results: %+v", decoded.Results)
	}
}

func TestWriteSearchResults_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatalf("WriteSearchResults(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{
		"Found 2 places", "42ms", "NONE", "Near: Shibuya",
		"--- exact ---", "--- nearby ---", "Rank: 1", "Rank: 2", "(weak match)",
		"Ichiran Shibuya", "Distance: 124m", "Open now: true", "Open now: UNKNOWN",
		"highly_rated, very_close", "Assistant:", "Recommended:", "Try: Open now | Top rated",
	} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteSearchResults_text_breakdown(t *testing.T) {
	resp := sampleResponse()
	resp.Meta.Breakdown = map[string]models.ScoreExplanation{
		"ramen-ichiran": {Components: map[string]float64{"rating": 0.8, "distance": 0.9}, Raw: 2.7, Final: 82.5},
	}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, resp, OutputText); err != nil {
		t.Fatalf("WriteSearchResults(text): %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Breakdown: distance=0.9 rating=0.8 (raw 2.7)") {
		t.Errorf("text output missing breakdown:\n%s", out)
	}
	if n := strings.Count(out, "Breakdown:"); n != 1 {
		t.Errorf("breakdown lines: got %d, want 1", n)
	}
}

func TestWriteSearchResults_text_empty(t *testing.T) {
	response := &models.SearchResponse{
		RequestID: "req-2",
		Meta:      models.SearchMeta{FailureReason: models.FailureNoResults, ResponseMode: models.ModeRecovery},
	}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Found 0 places") || !strings.Contains(out, "NO_RESULTS") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, "Assistant") || strings.Contains(out, "Recommended") {
		t.Errorf("empty response should not print narration sections:\n%s", out)
	}
}

func TestWriteSearchResults_unknownFormatTreatedAsText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, &models.SearchResponse{}, SearchOutputFormat("unknown")); err != nil {
		t.Fatalf("WriteSearchResults(unknown): %v", err)
	}
	if !strings.Contains(buf.String(), "Found") {
		t.Errorf("unknown format should fall back to text; got %q", buf.String())
	}
}

func TestWriteRequestState(t *testing.T) {
	resp := sampleResponse()
	st := &models.RequestState{
		RequestID: "req-1",
		Query:     "ramen near shibuya",
		Status:    models.StatusFailed,
		Error:     "narration timed out after 15s",
		Core: models.CoreResult{
			Results:       resp.Results,
			Groups:        resp.Groups,
			Chips:         resp.Chips,
			FailureReason: models.FailureNone,
			ResponseMode:  models.ModeNormal,
		},
		Output: &models.AssistantOutput{Text: "Ichiran is", Partial: true},
	}

	var buf bytes.Buffer
	if err := WriteRequestState(&buf, st, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"Request req-1", "Status: failed", "2 places", "Error: narration timed out", "Assistant (partial)"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}

	buf.Reset()
	if err := WriteRequestState(&buf, st, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.RequestState
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Status != models.StatusFailed || decoded.Output == nil || !decoded.Output.Partial {
		t.Errorf("decoded state: %+v", decoded)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		s      string
		maxLen int
		want   string
	}{
		{"empty", "", 5, ""},
		{"short", "hi", 5, "hi"},
		{"exact", "hello", 5, "hello"},
		{"long", "hello world", 5, "hello..."},
		{"maxLen zero", "ab", 0, "ab"},
		{"maxLen negative", "ab", -1, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.s, tt.maxLen)
			if got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestTruncateWords(t *testing.T) {
	tests := []struct {
		name     string
		s        string
		maxWords int
		want     string
	}{
		{"empty", "", 3, ""},
		{"few words", "one two", 3, "one two"},
		{"exact", "one two three", 3, "one two three"},
		{"more", "one two three four", 3, "one two three..."},
		{"single long", "word", 1, "word"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateWords(tt.s, tt.maxWords)
			if got != tt.want {
				t.Errorf("TruncateWords(%q, %d) = %q, want %q", tt.s, tt.maxWords, got, tt.want)
			}
		})
	}
}

func TestPrintSearchResults(t *testing.T) {
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	defer func() {
		os.Stdout = oldStdout
		_ = w.Close()
	}()
	PrintSearchResults(&models.SearchResponse{})
	_ = w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	if !strings.Contains(buf.String(), "Found 0 places") {
		t.Errorf("PrintSearchResults should write to stdout; got %q", buf.String())
	}
}
