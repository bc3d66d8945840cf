package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/dkoval/wirechat/internal/auth"
	"github.com/dkoval/wirechat/internal/config"
	"github.com/dkoval/wirechat/internal/metrics"
	"github.com/dkoval/wirechat/internal/model"
	ws "github.com/dkoval/wirechat/internal/websocket"
)

// handshakeTimeout bounds how long a fresh connection may sit silent
// before presenting its credential.
const handshakeTimeout = 10 * time.Second

// ServeWS is the session gateway. It upgrades the connection, demands a
// valid handshake as the very first frame, and only then registers the
// session, replays history, and starts the pumps. A failed handshake is
// terminal: the connection closes with nothing sent, and the client must
// reconnect with a fresh credential.
func ServeWS(hub *ws.Hub, cfg config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			slog.WarnContext(ctx, "websocket accept failed", "error", err)
			return
		}

		identity, err := readHandshake(ctx, conn, cfg.JWTSecret)
		if err != nil {
			metrics.ConnectionsTotal.WithLabelValues("rejected").Inc()
			slog.WarnContext(ctx, "rejecting connection", "error", err)
			conn.Close(websocket.StatusPolicyViolation, "authentication failed")
			return
		}
		metrics.ConnectionsTotal.WithLabelValues("accepted").Inc()
		slog.InfoContext(ctx, "session authenticated",
			"identity_id", identity.ID.String(),
			"display_name", identity.DisplayName)

		c := ws.NewClient(conn, identity, hub)
		c.SetMessageLimiter(cfg.MessageRateLimit, cfg.MessageRateWindow)
		c.SetTypingLimiter(cfg.TypingRateLimit, cfg.TypingRateWindow)

		hub.Attach(c)

		// The snapshot is written directly, before the write pump starts
		// draining the live buffer. Anything fanned out between Attach and
		// this write queues up behind it, so no live message overtakes the
		// replay.
		if err := sendHistory(ctx, conn, hub, identity); err != nil {
			slog.ErrorContext(ctx, "failed to replay history",
				"error", err,
				"identity_id", identity.ID.String())
			hub.Detach(c)
			conn.Close(websocket.StatusInternalError, "history unavailable")
			return
		}

		// We block on ReadEvents because the request context is cancelled
		// as soon as this handler returns.
		go c.WriteEvents(ctx)
		c.ReadEvents(ctx)
	}
}

func readHandshake(ctx context.Context, conn *websocket.Conn, secret string) (model.Identity, error) {
	hsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	_, data, err := conn.Read(hsCtx)
	if err != nil {
		return model.Identity{}, fmt.Errorf("handler: no handshake frame: %w", err)
	}

	ev, err := model.ParseEvent(data)
	if err != nil {
		return model.Identity{}, fmt.Errorf("handler: bad handshake frame: %w", err)
	}
	if ev.Type != model.EventHandshake {
		return model.Identity{}, fmt.Errorf("handler: expected handshake, got %q", ev.Type)
	}

	var payload model.HandshakePayload
	if err := model.DecodePayload(ev, &payload); err != nil {
		return model.Identity{}, fmt.Errorf("handler: bad handshake payload: %w", err)
	}

	return auth.VerifyToken(payload.Token, secret)
}

func sendHistory(ctx context.Context, conn *websocket.Conn, hub *ws.Hub, identity model.Identity) error {
	history, err := hub.History(ctx, identity)
	if err != nil {
		return err
	}

	ev := model.NewEvent(model.EventChatHistory, model.HistoryPayload{Messages: history})
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
