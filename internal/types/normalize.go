package types

import (
	"github.com/argoview/floatchat/internal/shared/id"
)

// Normalize maps a remote history entry into the local Message shape.
//
// Default rules, applied exactly once here rather than scattered at
// call sites:
//   - missing id        -> freshly minted msg_* ULID (unique per session)
//   - missing timestamp -> client-observed time, ISO-8601
//   - unknown role      -> kept verbatim (the client only renders it)
//   - metadata          -> passed through untouched
func (rm RemoteMessage) Normalize() Message {
	msgID := rm.ID
	if msgID == "" {
		msgID = id.NewMessageID().String()
	}

	ts := rm.Timestamp
	if ts == "" {
		ts = NowISO()
	}

	return Message{
		ID:        msgID,
		Role:      Role(rm.Role),
		Content:   rm.Content,
		Timestamp: ts,
		Metadata:  rm.Metadata,
	}
}

// NormalizeAll maps a full history slice, preserving arrival order.
func NormalizeAll(remote []RemoteMessage) []Message {
	if remote == nil {
		return nil
	}
	messages := make([]Message, len(remote))
	for i, rm := range remote {
		messages[i] = rm.Normalize()
	}
	return messages
}
