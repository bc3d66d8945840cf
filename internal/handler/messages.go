package handler

import (
	"log/slog"
	"net/http"

	"github.com/dkoval/wirechat/internal/auth"
	ws "github.com/dkoval/wirechat/internal/websocket"
)

// ServeMessages returns the caller's visible history over plain HTTP. It
// is the same snapshot the websocket replay sends, for clients that want
// to re-fetch without reconnecting.
func ServeMessages(hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		identity, err := auth.IdentityFromContext(ctx)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		history, err := hub.History(ctx, identity)
		if err != nil {
			slog.ErrorContext(ctx, "failed to load messages", "error", err)
			respondError(w, http.StatusInternalServerError, "history unavailable")
			return
		}

		respondJSON(w, http.StatusOK, map[string]any{"messages": history})
	}
}
