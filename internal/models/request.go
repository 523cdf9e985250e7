package models

import "time"

// AssistantStatus is the narration progress of a request.
type AssistantStatus string

const (
	StatusPending   AssistantStatus = "pending"
	StatusStreaming AssistantStatus = "streaming"
	StatusCompleted AssistantStatus = "completed"
	StatusFailed    AssistantStatus = "failed"
)

// Terminal reports whether no further narration will happen for the status.
func (s AssistantStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// AssistantOutput is the final narration of a request.
type AssistantOutput struct {
	Text               string   `json:"text"`
	PrimaryActionID    string   `json:"primaryActionId,omitempty"`
	SecondaryActionIDs []string `json:"secondaryActionIds,omitempty"`
	Fallback           bool     `json:"fallback,omitempty"`
	Partial            bool     `json:"partial,omitempty"`
}

// Recommendation is a deterministic follow-up suggestion derived from the core result.
type Recommendation struct {
	Rank     int    `json:"rank"`
	ResultID string `json:"resultId"`
	Name     string `json:"name"`
	Reason   string `json:"reason"`
}

// RequestState is the persisted envelope of one request.
type RequestState struct {
	RequestID       string           `json:"requestId"`
	Query           string           `json:"query"`
	Core            CoreResult       `json:"coreResult"`
	Digest          string           `json:"digest"`
	Status          AssistantStatus  `json:"assistantStatus"`
	Output          *AssistantOutput `json:"assistantOutput,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	Error           string           `json:"error,omitempty"`
	Seed            uint64           `json:"seed"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	ExpiresAt       time.Time        `json:"expiresAt"`
}

// Expired reports whether the state is past its expiry at now.
func (s *RequestState) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Clone returns a deep copy of s.
func (s *RequestState) Clone() *RequestState {
	if s == nil {
		return nil
	}
	out := *s
	out.Core = TruthStateFromCore(s.Core).Core()
	if s.Output != nil {
		o := *s.Output
		o.SecondaryActionIDs = append([]string(nil), s.Output.SecondaryActionIDs...)
		out.Output = &o
	}
	out.Recommendations = append([]Recommendation(nil), s.Recommendations...)
	return &out
}
