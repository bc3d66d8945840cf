package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dkoval/wirechat/internal/model"
)

// Client is one live session: a websocket connection bound to a verified
// identity. It satisfies presence.Handle.
type Client struct {
	conn        *websocket.Conn
	identity    model.Identity
	connectedAt time.Time
	hub         *Hub
	out         chan model.Event

	messageLim *rate.Limiter
	typingLim  *rate.Limiter
}

// NewClient returns a new instance of Client.
func NewClient(conn *websocket.Conn, identity model.Identity, hub *Hub) *Client {
	return &Client{
		conn:        conn,
		identity:    identity,
		connectedAt: time.Now().UTC(),
		hub:         hub,
		out:         make(chan model.Event, 64),
	}
}

func (c *Client) Identity() model.Identity { return c.identity }
func (c *Client) IdentityID() uuid.UUID    { return c.identity.ID }
func (c *Client) ConnectedAt() time.Time   { return c.connectedAt }

func (c *Client) SetMessageLimiter(requests int, window time.Duration) {
	c.messageLim = rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)
}

func (c *Client) SetTypingLimiter(requests int, window time.Duration) {
	c.typingLim = rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)
}

// Enqueue hands an event to the write pump without blocking. A full buffer
// means this session loses the event; the caller decides whether that is
// worth logging.
func (c *Client) Enqueue(ev model.Event) bool {
	select {
	case c.out <- ev:
		return true
	default:
		return false
	}
}

// WriteEvents drains the outgoing buffer onto the websocket until ctx is
// cancelled. A failed write is logged and skipped; the read pump notices a
// dead connection and tears the session down.
func (c *Client) WriteEvents(ctx context.Context) {
	for {
		select {
		case ev := <-c.out:
			data, err := json.Marshal(ev)
			if err != nil {
				slog.ErrorContext(ctx, "failed to encode outgoing event",
					"error", err,
					"event_type", ev.Type,
					"identity_id", c.identity.ID.String())
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.WarnContext(ctx, "failed to write event",
					"error", err,
					"identity_id", c.identity.ID.String())
				continue
			}

		case <-ctx.Done():
			c.conn.Close(websocket.StatusGoingAway, "context cancelled")
			return
		}
	}
}
