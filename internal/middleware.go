package internal

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dkoval/wirechat/internal/auth"
)

// Middleware validates the caller's bearer token and binds the verified
// identity to the request context. The websocket gateway does its own
// authentication from the handshake frame; this guards the plain HTTP
// routes.
func Middleware(next http.Handler, tokenSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "missing credentials", http.StatusUnauthorized)
			return
		}

		identity, err := auth.VerifyToken(token, tokenSecret)
		if err != nil {
			slog.WarnContext(r.Context(), "rejected request token", "error", err)
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}

		r = r.WithContext(auth.ContextWithIdentity(r.Context(), identity))
		next.ServeHTTP(w, r)
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}

	// Browser clients keep the token in a cookie instead.
	if cookie, err := r.Cookie("jwt"); err == nil {
		return cookie.Value
	}

	return ""
}
