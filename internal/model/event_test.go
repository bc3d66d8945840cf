package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	t.Run("valid_envelope", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"type":"chat-message","payload":{"content":"hi"}}`))
		require.NoError(t, err)
		assert.Equal(t, EventChatMessage, ev.Type)
		assert.JSONEq(t, `{"content":"hi"}`, string(ev.Payload))
	})

	t.Run("missing_type", func(t *testing.T) {
		_, err := ParseEvent([]byte(`{"payload":{}}`))
		assert.Error(t, err)
	})

	t.Run("not_json", func(t *testing.T) {
		_, err := ParseEvent([]byte("hello there"))
		assert.Error(t, err)
	})
}

func TestDecodePayload(t *testing.T) {
	t.Run("handshake_requires_token", func(t *testing.T) {
		ev := Event{Type: EventHandshake, Payload: json.RawMessage(`{"token":""}`)}
		var p HandshakePayload
		assert.Error(t, DecodePayload(ev, &p))
	})

	t.Run("message_payload", func(t *testing.T) {
		ev := Event{
			Type:    EventChatMessage,
			Payload: json.RawMessage(`{"clientMessageId":"abc-1","content":"hello"}`),
		}
		var p InboundMessagePayload
		require.NoError(t, DecodePayload(ev, &p))
		assert.Equal(t, "abc-1", p.ClientMessageID)
		assert.Equal(t, "hello", p.Content)
		assert.Nil(t, p.Timestamp)
	})

	t.Run("empty_content_passes_schema", func(t *testing.T) {
		// Empty content is rejected later with an explicit error event,
		// not at the schema layer.
		ev := Event{Type: EventChatMessage, Payload: json.RawMessage(`{"content":""}`)}
		var p InboundMessagePayload
		assert.NoError(t, DecodePayload(ev, &p))
	})

	t.Run("recipient_must_be_uuid", func(t *testing.T) {
		ev := Event{
			Type:    EventChatMessage,
			Payload: json.RawMessage(`{"content":"hi","recipientId":"bob"}`),
		}
		var p InboundMessagePayload
		assert.Error(t, DecodePayload(ev, &p))
	})

	t.Run("no_payload", func(t *testing.T) {
		var p InboundMessagePayload
		assert.Error(t, DecodePayload(Event{Type: EventChatMessage}, &p))
	})
}

func TestNewEventRoundTrip(t *testing.T) {
	ev := NewEvent(EventError, ErrorPayload{
		Code:            CodeValidationFailed,
		Message:         "message content must not be empty",
		ClientMessageID: "abc-1",
	})
	require.Equal(t, EventError, ev.Type)

	var p ErrorPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &p))
	assert.Equal(t, CodeValidationFailed, p.Code)
	assert.Equal(t, "abc-1", p.ClientMessageID)
}

func TestToWire(t *testing.T) {
	sender := uuid.New()
	recipient := uuid.New()
	ts := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("broadcast_message", func(t *testing.T) {
		wm := ToWire(Message{
			Seq:        7,
			MessageID:  "m-1",
			SenderID:   sender,
			SenderName: "alice",
			Content:    "hello",
			Timestamp:  ts,
		})
		assert.Equal(t, int64(7), wm.ID)
		assert.Equal(t, sender.String(), wm.SenderID)
		assert.Empty(t, wm.RecipientID)

		raw, err := json.Marshal(wm)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "recipientId")
	})

	t.Run("directed_message", func(t *testing.T) {
		wm := ToWire(Message{
			Seq:         8,
			MessageID:   "m-2",
			SenderID:    sender,
			SenderName:  "alice",
			RecipientID: &recipient,
			Content:     "psst",
			Timestamp:   ts,
		})
		assert.Equal(t, recipient.String(), wm.RecipientID)
	})
}
