// Package websocket contains the live side of the relay: the hub that
// validates, persists and fans out messages, and the per-connection client
// pumps.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/dkoval/wirechat/internal/config"
	"github.com/dkoval/wirechat/internal/metrics"
	"github.com/dkoval/wirechat/internal/model"
	"github.com/dkoval/wirechat/internal/presence"
	"github.com/dkoval/wirechat/internal/relay"
	"github.com/dkoval/wirechat/internal/store"
)

type sanitizer interface {
	Sanitize(s string) string
	SanitizeBytes(p []byte) []byte
}

// Inbound is a chat message handed from a client's read pump to the hub.
type Inbound struct {
	Client  *Client
	Payload model.InboundMessagePayload
}

// InboundTyping is a typing signal handed from a client's read pump.
type InboundTyping struct {
	Client *Client
}

// Hub is the delivery engine. Its run loop serializes the
// validate-persist-publish sequence for every inbound message, which keeps
// persist-then-broadcast ordering trivially true: nothing reaches the
// fan-out side of the relay without a successful append first.
type Hub struct {
	store     store.MessageStore
	directory store.Directory
	presence  *presence.Registry
	relay     relay.Relay
	scope     config.Scope
	log       *slog.Logger
	sanitizer sanitizer

	Inbound chan Inbound
	Typing  chan InboundTyping
}

// NewHub returns a new instance of Hub.
func NewHub(st store.MessageStore, dir store.Directory, reg *presence.Registry,
	rel relay.Relay, scope config.Scope, log *slog.Logger,
) *Hub {
	return &Hub{
		store:     st,
		directory: dir,
		presence:  reg,
		relay:     rel,
		scope:     scope,
		log:       log,
		sanitizer: bluemonday.StrictPolicy(),
		Inbound:   make(chan Inbound, 1024),
		Typing:    make(chan InboundTyping, 1024),
	}
}

// Run processes hub traffic until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	deliveries, err := h.relay.Subscribe(ctx)
	if err != nil {
		h.log.Error("failed to subscribe to relay", "error", err)
		return
	}

	for {
		select {
		case in := <-h.Inbound:
			h.dispatch(ctx, in)

		case t := <-h.Typing:
			h.relayTyping(t)

		case msg, ok := <-deliveries:
			if !ok {
				return
			}
			h.fanOut(msg)

		case <-ctx.Done():
			return
		}
	}
}

// Attach makes the client visible to delivery. History replay happens
// between Attach and the start of the write pump, so a live message racing
// the snapshot lands in the client's buffer and is delivered afterwards.
func (h *Hub) Attach(c *Client) {
	h.presence.Register(c)
	metrics.SessionsLive.Inc()
}

// Detach removes the client from delivery. Safe to call once per client,
// from the read pump's exit path.
func (h *Hub) Detach(c *Client) {
	h.presence.Unregister(c)
	metrics.SessionsLive.Dec()
}

// History returns the client-visible snapshot of the log in store order.
func (h *Hub) History(ctx context.Context, identity model.Identity) ([]model.WireMessage, error) {
	var (
		msgs []model.Message
		err  error
	)
	if h.scope == config.ScopeDirected {
		msgs, err = h.store.ListFor(ctx, identity.ID)
	} else {
		msgs, err = h.store.ListAll(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := make([]model.WireMessage, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, model.ToWire(msg))
	}
	return out, nil
}

// dispatch runs the full inbound contract: validate, construct, persist,
// publish. Failures are surfaced to the sending session only.
func (h *Hub) dispatch(ctx context.Context, in Inbound) {
	identity := in.Client.Identity()

	// Sanitize incoming content to prevent stored XSS. A message that is
	// empty after sanitization is rejected, not silently dropped.
	content := h.sanitizer.Sanitize(in.Payload.Content)
	if strings.TrimSpace(content) == "" {
		metrics.MessagesRejected.WithLabelValues("validation").Inc()
		in.Client.Enqueue(model.NewEvent(model.EventError, model.ErrorPayload{
			Code:            model.CodeValidationFailed,
			Message:         "message content must not be empty",
			ClientMessageID: in.Payload.ClientMessageID,
		}))
		return
	}

	// Identity fields come from the session, never from the payload. The
	// client may supply its own message id (it doubles as an idempotency
	// token) and a display timestamp; both are defaulted otherwise.
	msg := model.Message{
		MessageID:  in.Payload.ClientMessageID,
		SenderID:   identity.ID,
		SenderName: identity.DisplayName,
		Content:    content,
		Timestamp:  time.Now().UTC(),
	}
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if in.Payload.Timestamp != nil {
		msg.Timestamp = *in.Payload.Timestamp
	}

	if h.scope == config.ScopeDirected {
		recipientID, ok := h.resolveRecipient(ctx, in)
		if !ok {
			return
		}
		msg.RecipientID = &recipientID
	}

	if err := h.store.Append(ctx, &msg); err != nil {
		h.appendFailed(ctx, in, msg, err)
		return
	}
	metrics.MessagesPersisted.Inc()

	// The append succeeded; only now may the message reach the fan-out
	// side. A publish failure loses the live delivery but never the
	// record.
	if err := h.relay.Publish(ctx, msg); err != nil {
		h.log.Error("failed to publish stored message",
			"message_id", msg.MessageID, "error", err)
	}
}

// resolveRecipient validates the addressee of a directed message against
// the identity directory.
func (h *Hub) resolveRecipient(ctx context.Context, in Inbound) (uuid.UUID, bool) {
	if in.Payload.RecipientID == "" {
		metrics.MessagesRejected.WithLabelValues("validation").Inc()
		in.Client.Enqueue(model.NewEvent(model.EventError, model.ErrorPayload{
			Code:            model.CodeValidationFailed,
			Message:         "recipientId is required",
			ClientMessageID: in.Payload.ClientMessageID,
		}))
		return uuid.UUID{}, false
	}

	reject := func(code, message string) {
		metrics.MessagesRejected.WithLabelValues("validation").Inc()
		in.Client.Enqueue(model.NewEvent(model.EventError, model.ErrorPayload{
			Code:            code,
			Message:         message,
			ClientMessageID: in.Payload.ClientMessageID,
		}))
	}

	recipientID, err := uuid.Parse(in.Payload.RecipientID)
	if err != nil {
		reject(model.CodeValidationFailed, "recipientId is not a valid id")
		return uuid.UUID{}, false
	}

	if _, err := h.directory.GetUserByID(ctx, recipientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			reject(model.CodeValidationFailed, "unknown recipient")
		} else {
			h.log.Error("directory lookup failed",
				"recipient_id", recipientID.String(), "error", err)
			reject(model.CodeDeliveryFailed, "could not resolve recipient")
		}
		return uuid.UUID{}, false
	}

	return recipientID, true
}

// appendFailed handles the two persist failure classes. A duplicate id is
// an idempotent resend: the first writer's record is re-echoed to the
// sender and nothing is broadcast again. Anything else means the store is
// unavailable and the sender gets a delivery failure.
func (h *Hub) appendFailed(ctx context.Context, in Inbound, msg model.Message, err error) {
	if errors.Is(err, store.ErrDuplicateID) {
		metrics.MessagesRejected.WithLabelValues("duplicate").Inc()
		stored, getErr := h.store.GetByMessageID(ctx, msg.MessageID)
		if getErr != nil {
			h.log.Error("duplicate append but stored record unreadable",
				"message_id", msg.MessageID, "error", getErr)
			return
		}
		in.Client.Enqueue(model.NewEvent(model.EventChatMessage, model.ToWire(stored)))
		return
	}

	metrics.MessagesRejected.WithLabelValues("store").Inc()
	h.log.Error("failed to store message",
		"message_id", msg.MessageID, "error", err)
	in.Client.Enqueue(model.NewEvent(model.EventError, model.ErrorPayload{
		Code:            model.CodeDeliveryFailed,
		Message:         "message could not be stored",
		ClientMessageID: in.Payload.ClientMessageID,
	}))
}

// fanOut delivers an already-persisted message to every resolved live
// handle. Delivery is best-effort per recipient: one slow connection
// loses its copy, the rest are unaffected.
func (h *Hub) fanOut(msg model.Message) {
	ev := model.NewEvent(model.EventChatMessage, model.ToWire(msg))

	var targets []presence.Handle
	if msg.RecipientID == nil {
		targets = h.presence.ResolveAll()
	} else {
		targets = h.presence.Resolve(*msg.RecipientID)
		if *msg.RecipientID != msg.SenderID {
			// The sender sees their own echo.
			targets = append(targets, h.presence.Resolve(msg.SenderID)...)
		}
	}

	for _, target := range targets {
		if !target.Enqueue(ev) {
			metrics.DeliveryDrops.Inc()
			h.log.Warn("skipping delivery, client buffer full",
				"message_id", msg.MessageID,
				"identity_id", target.IdentityID().String())
		}
	}
}

// relayTyping broadcasts a typing signal to every live session except the
// sender's own. No persistence, no store interaction.
func (h *Hub) relayTyping(t InboundTyping) {
	identity := t.Client.Identity()
	ev := model.NewEvent(model.EventTyping, model.TypingPayload{
		UserID:      identity.ID.String(),
		DisplayName: identity.DisplayName,
	})

	for _, target := range h.presence.ResolveAll() {
		if target.IdentityID() == identity.ID {
			continue
		}
		if !target.Enqueue(ev) {
			metrics.DeliveryDrops.Inc()
		}
	}
	metrics.TypingRelayed.Inc()
}
