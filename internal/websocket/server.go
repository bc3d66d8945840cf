package websocket

import (
	"context"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/dkoval/wirechat/internal/model"
)

// ReadEvents reads frames off the websocket until the connection dies or
// ctx is cancelled, then detaches the session. Every other failure in here
// is message-level: it is answered or logged, and the connection stays up.
func (c *Client) ReadEvents(ctx context.Context) {
	defer func() {
		c.hub.Detach(c)
		c.conn.CloseNow()
	}()

	for {
		msgType, data, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != -1 {
				slog.WarnContext(ctx, "read failed",
					"error", err,
					"identity_id", c.identity.ID.String())
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		ev, err := model.ParseEvent(data)
		if err != nil {
			slog.WarnContext(ctx, "dropping malformed frame",
				"error", err,
				"identity_id", c.identity.ID.String())
			continue
		}

		switch ev.Type {
		case model.EventChatMessage:
			c.readChatMessage(ctx, ev)

		case model.EventTyping:
			c.readTyping(ctx, ev)

		case model.EventHandshake:
			// Already authenticated; a second handshake is noise.
			slog.DebugContext(ctx, "ignoring repeated handshake",
				"identity_id", c.identity.ID.String())

		default:
			slog.WarnContext(ctx, "dropping event of unknown type",
				"event_type", ev.Type,
				"identity_id", c.identity.ID.String())
		}
	}
}

func (c *Client) readChatMessage(ctx context.Context, ev model.Event) {
	if c.messageLim != nil && !c.messageLim.Allow() {
		c.Enqueue(model.NewEvent(model.EventError, model.ErrorPayload{
			Code:    model.CodeRateLimited,
			Message: "sending too fast, slow down",
		}))
		return
	}

	var payload model.InboundMessagePayload
	if err := model.DecodePayload(ev, &payload); err != nil {
		slog.WarnContext(ctx, "invalid chat-message payload",
			"error", err,
			"identity_id", c.identity.ID.String())
		c.Enqueue(model.NewEvent(model.EventError, model.ErrorPayload{
			Code:    model.CodeValidationFailed,
			Message: "malformed chat-message payload",
		}))
		return
	}

	select {
	case c.hub.Inbound <- Inbound{Client: c, Payload: payload}:
	case <-ctx.Done():
	}
}

func (c *Client) readTyping(ctx context.Context, ev model.Event) {
	if c.typingLim != nil && !c.typingLim.Allow() {
		return
	}

	// The payload is validated for shape but the relayed identity always
	// comes from the session, so a client cannot type as someone else.
	if len(ev.Payload) > 0 {
		var payload model.TypingPayload
		if err := model.DecodePayload(ev, &payload); err != nil {
			slog.WarnContext(ctx, "invalid typing payload",
				"error", err,
				"identity_id", c.identity.ID.String())
			return
		}
	}

	select {
	case c.hub.Typing <- InboundTyping{Client: c}:
	case <-ctx.Done():
	}
}
