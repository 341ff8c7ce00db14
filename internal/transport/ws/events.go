package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types - Client → Server
const (
	EventTypeUnreadRefresh = "unread.refresh"
	EventTypePing          = "ping"
)

// Event types - Server → Client
const (
	EventTypeUnreadCount  = "unread.count"
	EventTypeInboxChanged = "inbox.changed"
	EventTypePong         = "pong"
	EventTypeError        = "error"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

// --- Server → Client payloads ---

type UnreadCountPayload struct {
	Count int `json:"count"`
}

type InboxChangedPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Op             string    `json:"op"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		Payload:   data,
		Timestamp: time.Now().Unix(),
	}, nil
}
