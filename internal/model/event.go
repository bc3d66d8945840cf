package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Event types carried over the websocket, both directions.
const (
	EventHandshake   = "handshake"
	EventChatMessage = "chat-message"
	EventChatHistory = "chat-history"
	EventTyping      = "typing"
	EventError       = "error"
)

// Error codes sent back to the originating session.
const (
	CodeValidationFailed = "validation_failed"
	CodeDeliveryFailed   = "delivery_failed"
	CodeRateLimited      = "rate_limited"
)

// Event is the envelope for every frame on the wire. The payload schema
// depends on Type and is validated before any persistence or relay logic
// runs.
type Event struct {
	Type    string          `json:"type" validate:"required"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HandshakePayload is the first frame a client must send after connecting.
type HandshakePayload struct {
	Token string `json:"token" validate:"required"`
}

// InboundMessagePayload is a client-submitted chat message. Identity fields
// are deliberately absent; the server takes them from the session.
// RecipientID is only honored in directed scope.
type InboundMessagePayload struct {
	ClientMessageID string     `json:"clientMessageId" validate:"omitempty,max=128"`
	Content         string     `json:"content" validate:"max=4096"`
	Timestamp       *time.Time `json:"timestamp,omitempty"`
	RecipientID     string     `json:"recipientId,omitempty" validate:"omitempty,uuid"`
}

// WireMessage is a stored message as delivered to clients, in history
// snapshots and live fan-out alike. Clients de-duplicate by MessageID.
type WireMessage struct {
	ID          int64     `json:"id"`
	MessageID   string    `json:"messageId"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderDisplayName"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	RecipientID string    `json:"recipientId,omitempty"`
}

// HistoryPayload is sent exactly once, right after authentication.
type HistoryPayload struct {
	Messages []WireMessage `json:"messages"`
}

// TypingPayload is relayed verbatim to every other live session.
type TypingPayload struct {
	UserID      string `json:"userId" validate:"omitempty,uuid"`
	DisplayName string `json:"displayName" validate:"max=128"`
}

// ErrorPayload notifies the sending session of a failed message. It is
// never broadcast.
type ErrorPayload struct {
	Code            string `json:"code"`
	Message         string `json:"message"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

var validate = validator.New()

// ParseEvent decodes and validates an envelope from raw frame bytes.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("model: malformed event: %w", err)
	}
	if err := validate.Struct(&ev); err != nil {
		return Event{}, fmt.Errorf("model: invalid event: %w", err)
	}
	return ev, nil
}

// DecodePayload unmarshals an event payload into dst and validates it
// against the schema tags of the payload type.
func DecodePayload(ev Event, dst any) error {
	if len(ev.Payload) == 0 {
		return fmt.Errorf("model: event %q has no payload", ev.Type)
	}
	if err := json.Unmarshal(ev.Payload, dst); err != nil {
		return fmt.Errorf("model: malformed %q payload: %w", ev.Type, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("model: invalid %q payload: %w", ev.Type, err)
	}
	return nil
}

// NewEvent wraps a payload into an envelope. Marshal errors are impossible
// for the payload types defined here, so they surface as a panic during
// development rather than an error return.
func NewEvent(eventType string, payload any) Event {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("model: unmarshalable %q payload: %v", eventType, err))
	}
	return Event{Type: eventType, Payload: raw}
}

// ToWire converts a stored message to its wire form.
func ToWire(m Message) WireMessage {
	wm := WireMessage{
		ID:         m.Seq,
		MessageID:  m.MessageID,
		SenderID:   m.SenderID.String(),
		SenderName: m.SenderName,
		Content:    m.Content,
		Timestamp:  m.Timestamp,
	}
	if m.RecipientID != nil {
		wm.RecipientID = m.RecipientID.String()
	}
	return wm
}
