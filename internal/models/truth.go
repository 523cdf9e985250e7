package models

// ChipKind categorizes a suggested action.
type ChipKind string

const (
	ChipFilter ChipKind = "filter"
	ChipSort   ChipKind = "sort"
	ChipRefine ChipKind = "refine"
	ChipRetry  ChipKind = "retry"
)

// ChipAction is the client-side payload of a chip. It is never shown to the narrator.
type ChipAction struct {
	Type   string            `json:"type"`
	Params map[string]string `json:"params,omitempty"`
}

// Chip is a stable, pre-generated suggested action.
type Chip struct {
	ID     string     `json:"id"`
	Label  string     `json:"label"`
	Kind   ChipKind   `json:"kind"`
	Action ChipAction `json:"action"`
}

// ChipRef is the narration-facing view of a chip: id and label only.
type ChipRef struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// AssistantContext is the only structure the narration collaborator ever receives.
type AssistantContext struct {
	Language         string    `json:"language"`
	Query            string    `json:"query"`
	ResultCount      int       `json:"resultCount"`
	TopResultIDs     []string  `json:"topResultIds"`
	Chips            []ChipRef `json:"chips"`
	RequiresLiveData bool      `json:"requiresLiveData"`
	IsLowConfidence  bool      `json:"isLowConfidence"`
	HasLocation      bool      `json:"hasLocation"`
}

// HasChip reports whether id is in the chip allowlist.
func (c AssistantContext) HasChip(id string) bool {
	for _, ch := range c.Chips {
		if ch.ID == id {
			return true
		}
	}
	return false
}

func (c AssistantContext) clone() AssistantContext {
	out := c
	out.TopResultIDs = append([]string(nil), c.TopResultIDs...)
	out.Chips = append([]ChipRef(nil), c.Chips...)
	return out
}

// CoreResult is the serializable snapshot of a TruthState.
type CoreResult struct {
	Results          []ScoredResult   `json:"results"`
	Groups           []ResultGroup    `json:"groups"`
	Chips            []Chip           `json:"chips"`
	FailureReason    FailureReason    `json:"failureReason"`
	ResponseMode     ResponseMode     `json:"responseMode"`
	AssistantContext AssistantContext `json:"assistantContext"`
}

// TruthState is the frozen output of the deterministic pipeline for one request.
// Its fields are unexported and every accessor returns a copy, so holders cannot mutate it.
type TruthState struct {
	results []ScoredResult
	groups  []ResultGroup
	chips   []Chip
	reason  FailureReason
	mode    ResponseMode
	context AssistantContext
}

// NewTruthState deep-copies its inputs into a new TruthState.
func NewTruthState(results []ScoredResult, groups []ResultGroup, chips []Chip, reason FailureReason, mode ResponseMode, ctx AssistantContext) *TruthState {
	return &TruthState{
		results: cloneResults(results),
		groups:  cloneGroups(groups),
		chips:   cloneChips(chips),
		reason:  reason,
		mode:    mode,
		context: ctx.clone(),
	}
}

// TruthStateFromCore rebuilds a TruthState from a stored snapshot.
func TruthStateFromCore(c CoreResult) *TruthState {
	return NewTruthState(c.Results, c.Groups, c.Chips, c.FailureReason, c.ResponseMode, c.AssistantContext)
}

func (t *TruthState) Results() []ScoredResult { return cloneResults(t.results) }
func (t *TruthState) Groups() []ResultGroup { return cloneGroups(t.groups) }
func (t *TruthState) Chips() []Chip { return cloneChips(t.chips) }
func (t *TruthState) FailureReason() FailureReason { return t.reason }
func (t *TruthState) ResponseMode() ResponseMode { return t.mode }
func (t *TruthState) AssistantContext() AssistantContext { return t.context.clone() }

// ResultCount returns the number of results without copying them.
func (t *TruthState) ResultCount() int { return len(t.results) }

// HasWeakMatches reports whether any result is flagged weak.
func HasWeakMatches(results []ScoredResult) bool {
	for _, r := range results {
		if r.IsWeakMatch {
			return true
		}
	}
	return false
}

// Core returns a serializable copy of the state.
func (t *TruthState) Core() CoreResult {
	return CoreResult{
		Results:          t.Results(),
		Groups:           t.Groups(),
		Chips:            t.Chips(),
		FailureReason:    t.reason,
		ResponseMode:     t.mode,
		AssistantContext: t.AssistantContext(),
	}
}

func cloneResults(in []ScoredResult) []ScoredResult {
	if in == nil {
		return []ScoredResult{}
	}
	out := make([]ScoredResult, len(in))
	for i, r := range in {
		out[i] = cloneResult(r)
	}
	return out
}

func cloneResult(r ScoredResult) ScoredResult {
	out := r
	out.MatchReasons = append([]string(nil), r.MatchReasons...)
	out.Cuisines = append([]string(nil), r.Cuisines...)
	out.Tags = append([]string(nil), r.Tags...)
	if r.DistanceMeters != nil {
		d := *r.DistanceMeters
		out.DistanceMeters = &d
	}
	if r.Rating != nil {
		v := *r.Rating
		out.Rating = &v
	}
	if r.ReviewCount != nil {
		v := *r.ReviewCount
		out.ReviewCount = &v
	}
	if r.PriceLevel != nil {
		v := *r.PriceLevel
		out.PriceLevel = &v
	}
	return out
}

func cloneGroups(in []ResultGroup) []ResultGroup {
	if in == nil {
		return []ResultGroup{}
	}
	out := make([]ResultGroup, len(in))
	for i, g := range in {
		out[i] = ResultGroup{Kind: g.Kind, Results: cloneResults(g.Results)}
	}
	return out
}

func cloneChips(in []Chip) []Chip {
	if in == nil {
		return []Chip{}
	}
	out := make([]Chip, len(in))
	for i, c := range in {
		out[i] = c
		if c.Action.Params != nil {
			params := make(map[string]string, len(c.Action.Params))
			for k, v := range c.Action.Params {
				params[k] = v
			}
			out[i].Action.Params = params
		}
	}
	return out
}
