package types

// Wire shapes for the remote session service. Field names follow the
// backend's JSON contract exactly; anything the client does not
// interpret stays a raw map.

// CreateSessionRequest is the body of POST /session/create.
type CreateSessionRequest struct {
	UserPreferences Preferences `json:"user_preferences,omitempty"`
}

// CreateSessionResponse is the success body of POST /session/create.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message,omitempty"`
}

// QueryRequest is the body of POST /query. The session id travels in
// the X-Session-ID header, not the body.
type QueryRequest struct {
	Query           string      `json:"query"`
	UserPreferences Preferences `json:"user_preferences,omitempty"`
}

// QueryResponse is the success body of POST /query.
type QueryResponse struct {
	Response            string                 `json:"response"`
	SessionID           string                 `json:"session_id"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
	ConversationContext *ConversationContext   `json:"conversation_context,omitempty"`
	Status              string                 `json:"status,omitempty"`
}

// RemoteMessage is one entry of a history response. The remote may omit
// id and timestamp; Normalize fills the gaps.
type RemoteMessage struct {
	ID        string                 `json:"id,omitempty"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Timestamp string                 `json:"timestamp,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// HistoryResponse is the success body of GET /session/{id}/history.
type HistoryResponse struct {
	SessionID           string               `json:"session_id"`
	ConversationHistory []RemoteMessage      `json:"conversation_history"`
	MessageCount        int                  `json:"message_count"`
	Context             *ConversationContext `json:"context,omitempty"`
}

// SessionInfoResponse is the success body of GET /session/{id}.
type SessionInfoResponse struct {
	SessionID       string               `json:"session_id"`
	CreatedAt       string               `json:"created_at"`
	LastActivity    string               `json:"last_activity"`
	MessageCount    int                  `json:"message_count"`
	Context         *ConversationContext `json:"context,omitempty"`
	UserPreferences Preferences          `json:"user_preferences,omitempty"`
	Status          string               `json:"status,omitempty"`
}
