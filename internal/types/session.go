package types

import (
	"strings"
	"time"
)

// Role identifies who authored a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Preferences holds user analysis preferences forwarded to the backend
// (detail_level, preferred_regions, analysis_focus, output_format).
// The client never interprets them.
type Preferences map[string]interface{}

// ConversationContext is the backend's accumulated view of the
// conversation. It is replaced wholesale by each chat response, never
// merged client-side.
type ConversationContext struct {
	RegionsDiscussed     []string `json:"regions_discussed,omitempty"`
	FloatsAnalyzed       []string `json:"floats_analyzed,omitempty"`
	ParametersOfInterest []string `json:"parameters_of_interest,omitempty"`
}

// Session mirrors one remote conversation thread locally.
//
// Timestamps are ISO-8601 strings, matching what the backend emits and
// what the store persists. The id is assigned by the remote on creation
// and is immutable.
type Session struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	CreatedAt    string               `json:"created_at"`
	LastActivity string               `json:"last_activity"`
	MessageCount int                  `json:"message_count"`
	Context      *ConversationContext `json:"context,omitempty"`
}

// Message is one turn in a session's transcript. Content may embed a
// structured visualization payload; it is passed through untouched.
// Metadata is attached only to assistant messages.
type Message struct {
	ID        string                 `json:"id"`
	Role      Role                   `json:"role"`
	Content   string                 `json:"content"`
	Timestamp string                 `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NowISO returns the client-observed current time in the wire format.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// NewSession builds a freshly created session with zero messages.
// The display name defaults to the creation date until the first
// exchange derives one from the query text.
func NewSession(id string, now time.Time) Session {
	iso := now.UTC().Format(time.RFC3339)
	return Session{
		ID:           id,
		Name:         "Chat " + now.Format("Jan 2, 2006"),
		CreatedAt:    iso,
		LastActivity: iso,
		MessageCount: 0,
	}
}

// DeriveName builds a session display name from the first user query:
// the first four words, with an ellipsis when truncated.
func DeriveName(query string) string {
	words := strings.Fields(query)
	if len(words) == 0 {
		return "New Chat"
	}
	if len(words) <= 4 {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:4], " ") + "..."
}
