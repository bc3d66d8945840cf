package handler

import (
	"log/slog"
	"net/http"

	"github.com/dkoval/wirechat/internal/store"
)

// ServeUsers lists known identities so directed-scope clients can pick a
// recipient. Emails and password hashes never leave the directory.
func ServeUsers(dir store.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		users, err := dir.ListUsers(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to list users", "error", err)
			respondError(w, http.StatusInternalServerError, "directory unavailable")
			return
		}

		out := make([]userResponse, 0, len(users))
		for _, user := range users {
			out = append(out, userResponse{
				ID:       user.ID.String(),
				Username: user.Username,
			})
		}

		respondJSON(w, http.StatusOK, map[string]any{"users": out})
	}
}
