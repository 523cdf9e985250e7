package models

// Server to client message types.
const (
	MessageStatus         = "status"
	MessageStreamDelta    = "stream.delta"
	MessageStreamDone     = "stream.done"
	MessageRecommendation = "recommendation"
	MessageError          = "error"
)

// Client to server message types.
const (
	ClientSubscribe   = "subscribe"
	ClientUnsubscribe = "unsubscribe"
	ClientPing        = "ping"
)

// Error codes carried by error messages.
const (
	ErrorCodeTimeout   = "timeout"
	ErrorCodeNarration = "narration_failed"
	ErrorCodeNotFound  = "not_found"
	ErrorCodeBadFrame  = "bad_request"
	ErrorCodeRateLimit = "rate_limited"
)

// StreamError describes a failure reported over the streaming channel.
type StreamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StreamMessage is a server to client frame.
type StreamMessage struct {
	Type            string           `json:"type"`
	RequestID       string           `json:"requestId"`
	Status          AssistantStatus  `json:"status,omitempty"`
	Seq             int              `json:"seq,omitempty"`
	Delta           string           `json:"delta,omitempty"`
	Text            string           `json:"text,omitempty"`
	PrimaryActionID string           `json:"primaryActionId,omitempty"`
	SecondaryIDs    []string         `json:"secondaryActionIds,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	Error           *StreamError     `json:"error,omitempty"`
	Replay          bool             `json:"replay,omitempty"`
}

// IsContent reports whether the message carries narration content. Content frames are never dropped.
func (m StreamMessage) IsContent() bool {
	switch m.Type {
	case MessageStreamDelta, MessageStreamDone, MessageRecommendation:
		return true
	}
	return false
}

// ClientMessage is a client to server frame.
type ClientMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
}
