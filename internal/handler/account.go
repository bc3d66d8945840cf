package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dkoval/wirechat/internal/auth"
	"github.com/dkoval/wirechat/internal/config"
	"github.com/dkoval/wirechat/internal/model"
	"github.com/dkoval/wirechat/internal/store"
)

type registerRequest struct {
	Name     string `json:"name" validate:"omitempty,max=64"`
	Username string `json:"username" validate:"required,min=3,max=32"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Register handles account creation.
func Register(dir store.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req registerRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		hashed, err := auth.HashPassword(req.Password)
		if err != nil {
			slog.ErrorContext(ctx, "argon2id hash creation failed", "error", err)
			respondError(w, http.StatusInternalServerError, "server error")
			return
		}

		// The username doubles as the display name on the wire; a
		// separate full name is accepted but not required.
		username := req.Username
		if req.Name != "" {
			username = req.Name
		}

		user := store.User{
			ID:             uuid.New(),
			Username:       username,
			Email:          req.Email,
			HashedPassword: hashed,
			CreatedAt:      time.Now().UTC(),
		}
		if err := dir.CreateUser(ctx, user); err != nil {
			if errors.Is(err, store.ErrDuplicateID) {
				respondError(w, http.StatusConflict, "email already registered")
				return
			}
			slog.ErrorContext(ctx, "failed to create user", "error", err)
			respondError(w, http.StatusInternalServerError, "server error")
			return
		}

		slog.InfoContext(ctx, "user registered", "username", user.Username)
		respondJSON(w, http.StatusCreated, userResponse{
			ID:       user.ID.String(),
			Username: user.Username,
			Email:    user.Email,
		})
	}
}

// Login verifies credentials and mints the bearer token the websocket
// handshake presents.
func Login(dir store.Directory, cfg config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req loginRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		user, err := dir.GetUserByEmail(ctx, req.Email)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				slog.ErrorContext(ctx, "failed to retrieve user", "error", err)
			}
			respondError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}

		ok, err := auth.CheckPasswordHash(req.Password, user.HashedPassword)
		if err != nil {
			slog.ErrorContext(ctx, "cannot verify password, hash may be corrupted", "error", err)
			respondError(w, http.StatusInternalServerError, "server error")
			return
		}
		if !ok {
			respondError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}

		identity := model.Identity{ID: user.ID, DisplayName: user.Username}
		token, err := auth.MakeToken(identity, cfg.JWTSecret, cfg.TokenTTL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to mint token", "error", err)
			respondError(w, http.StatusInternalServerError, "server error")
			return
		}

		slog.InfoContext(ctx, "user logged in", "username", user.Username)
		respondJSON(w, http.StatusOK, map[string]any{
			"token": token,
			"user": userResponse{
				ID:       user.ID.String(),
				Username: user.Username,
				Email:    user.Email,
			},
		})
	}
}

// Logout exists for client symmetry. Tokens are stateless, so there is
// nothing to revoke server-side; the client discards its copy.
func Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}
