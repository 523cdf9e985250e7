package models

// GroupKind is the proximity tier of a result.
type GroupKind string

const (
	GroupExact  GroupKind = "EXACT"
	GroupNearby GroupKind = "NEARBY"
)

// ScoredResult is a place augmented with its ranking outcome.
type ScoredResult struct {
	Place
	Score          float64   `json:"score"`
	MatchReasons   []string  `json:"matchReasons"`
	IsWeakMatch    bool      `json:"isWeakMatch"`
	DistanceScore  float64   `json:"distanceScore"`
	DistanceMeters *float64  `json:"distanceMeters,omitempty"`
	GroupKind      GroupKind `json:"groupKind"`
}

// ResultGroup is one proximity tier of ranked results, in ranking order.
type ResultGroup struct {
	Kind    GroupKind      `json:"kind"`
	Results []ScoredResult `json:"results"`
}

// FailureReason is the single deterministic classification of a request outcome.
type FailureReason string

const (
	FailureNone                FailureReason = "NONE"
	FailureNoResults           FailureReason = "NO_RESULTS"
	FailureLowConfidence       FailureReason = "LOW_CONFIDENCE"
	FailureGeocodingFailed     FailureReason = "GEOCODING_FAILED"
	FailureProviderError       FailureReason = "PROVIDER_ERROR"
	FailureTimeout             FailureReason = "TIMEOUT"
	FailureQuotaExceeded       FailureReason = "QUOTA_EXCEEDED"
	FailureLiveDataUnavailable FailureReason = "LIVE_DATA_UNAVAILABLE"
	FailureWeakMatches         FailureReason = "WEAK_MATCHES"
)

// AllFailureReasons lists every reason in declaration order.
var AllFailureReasons = []FailureReason{
	FailureNone,
	FailureNoResults,
	FailureLowConfidence,
	FailureGeocodingFailed,
	FailureProviderError,
	FailureTimeout,
	FailureQuotaExceeded,
	FailureLiveDataUnavailable,
	FailureWeakMatches,
}

// Valid reports whether r is one of the declared reasons.
func (r FailureReason) Valid() bool {
	for _, v := range AllFailureReasons {
		if v == r {
			return true
		}
	}
	return false
}

// ResponseMode is the UI posture derived from the failure reason.
type ResponseMode string

const (
	ModeNormal   ResponseMode = "NORMAL"
	ModeRecovery ResponseMode = "RECOVERY"
	ModeClarify  ResponseMode = "CLARIFY"
)
