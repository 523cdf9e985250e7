package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var searchValidate = validator.New()

// Search execution modes.
const (
	SearchModeAsync = "async"
	SearchModeSync  = "sync"
)

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Query    string   `json:"query" validate:"required,max=500"`
	Language string   `json:"language,omitempty" validate:"omitempty,max=35"`
	Location string   `json:"location,omitempty" validate:"max=200"`
	Center   *LatLng  `json:"center,omitempty"`
	Filters  *Filters `json:"filters,omitempty"`
	Limit    int      `json:"limit,omitempty" validate:"gte=0,lte=100"`
	Explain  bool     `json:"explain,omitempty"`
}

// Validate checks the validate tags of r and its filters and center. The error lists every
// failing field as "field: rule".
func (r *SearchRequest) Validate() error {
	err := searchValidate.Struct(r)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}
	msgs := make([]string, 0, len(fields))
	for _, fe := range fields {
		msgs = append(msgs, fmt.Sprintf("%s: %s", strings.TrimPrefix(fe.Namespace(), "SearchRequest."), fe.Tag()))
	}
	return fmt.Errorf("invalid search request: %s", strings.Join(msgs, ", "))
}

// Normalize applies request-level defaults. maxLimit caps the limit.
func (r *SearchRequest) Normalize(defaultLimit, maxLimit int) error {
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if r.Limit <= 0 {
		r.Limit = defaultLimit
	}
	if maxLimit > 0 && r.Limit > maxLimit {
		r.Limit = maxLimit
	}
	return nil
}

// SearchMeta describes how a response was produced.
type SearchMeta struct {
	FailureReason   FailureReason     `json:"failureReason"`
	ResponseMode    ResponseMode      `json:"responseMode"`
	AssistantStatus AssistantStatus   `json:"assistantStatus"`
	Mode            string            `json:"mode"`
	Language        string            `json:"language"`
	Total           int               `json:"total"`
	TookMs          int64             `json:"tookMs"`
	ResultDigest    string            `json:"resultDigest"`
	Location        *ResolvedLocation `json:"location,omitempty"`
	// Breakdown maps result ids to their score components; set only when explain was asked for.
	Breakdown map[string]ScoreExplanation `json:"breakdown,omitempty"`
}

// ScoreExplanation is the per-scorer composition of one result's score.
type ScoreExplanation struct {
	Components map[string]float64 `json:"components"`
	Raw        float64            `json:"raw"`
	Final      float64            `json:"final"`
}

// SearchResponse is the body returned by POST /api/v1/search.
type SearchResponse struct {
	RequestID       string           `json:"requestId"`
	Results         []ScoredResult   `json:"results"`
	Groups          []ResultGroup    `json:"groups"`
	Chips           []Chip           `json:"chips"`
	Meta            SearchMeta       `json:"meta"`
	Assistant       *AssistantOutput `json:"assistant,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
}
