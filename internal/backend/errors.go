package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrSessionExpired marks a 404 saying the remote has no record of
	// the session. It is the only error that may trigger local pruning
	// and the lifecycle engine's single-retry recreation policy.
	ErrSessionExpired = errors.New("session not found or expired")

	// ErrTimeout marks a client-observed abort of a pending request.
	// Never interpreted as session expiry.
	ErrTimeout = errors.New("request timed out")
)

// RemoteError is any non-2xx response that is not a session expiry.
// Detail carries the server-supplied message verbatim when present.
type RemoteError struct {
	Status int
	Detail string
}

func (e *RemoteError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Detail)
}

// NetworkError is a transport-level failure: no response arrived at
// all. Never interpreted as session expiry.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// classifyTransport maps a transport error from resty into the client
// taxonomy. Context deadlines and url-level timeouts become ErrTimeout;
// everything else is a NetworkError.
func classifyTransport(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return &NetworkError{Op: op, Err: err}
}

// sessionNotFound reports whether a 404 body carries the backend's
// session-gone marker.
func sessionNotFound(body []byte) bool {
	return strings.Contains(strings.ToLower(extractDetail(body)), "session not found")
}

// extractDetail pulls the human-readable detail out of the backend's
// error envelope. The detail field is either a plain string or a
// structured object with error/message fields.
func extractDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return s
	}

	var obj struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Detail, &obj); err == nil {
		switch {
		case obj.Error != "" && obj.Message != "":
			return obj.Error + ": " + obj.Message
		case obj.Message != "":
			return obj.Message
		case obj.Error != "":
			return obj.Error
		}
	}
	return strings.TrimSpace(string(envelope.Detail))
}
