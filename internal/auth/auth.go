// Package auth handles credential verification: password hashing for the
// account endpoints and the signed tokens every websocket handshake and
// HTTP request must present.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dkoval/wirechat/internal/model"
)

type ContextKey string

const IdentityKey ContextKey = "identity"

var ErrNoIdentity = errors.New("internal/auth: no identity bound to context")

// Claims carries the identity inside a signed token. DisplayName rides
// along so the relay never needs a directory lookup just to label a
// message.
type Claims struct {
	DisplayName string `json:"name"`
	jwt.RegisteredClaims
}

func HashPassword(password string) (string, error) {
	hashed, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return "", fmt.Errorf("internal/auth: pw hash failed: %w", err)
	}

	return hashed, nil
}

func CheckPasswordHash(password, hash string) (bool, error) {
	isMatch, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return false, fmt.Errorf("internal/auth: pw and hash comparison failed: %w", err)
	}

	return isMatch, nil
}

// MakeToken mints an HS256 token binding the identity for expiresIn.
func MakeToken(identity model.Identity, tokenSecret string, expiresIn time.Duration) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		DisplayName: identity.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "wirechat",
			Subject:   identity.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	})

	return token.SignedString([]byte(tokenSecret))
}

// VerifyToken validates signature and expiry and decodes the identity
// claims. Absent, malformed, expired and badly signed tokens all fail the
// same way; the gateway treats every failure as terminal.
func VerifyToken(tokenString, tokenSecret string) (model.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(tokenSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return model.Identity{}, fmt.Errorf("internal/auth: failed to parse token: %w", err)
	}

	if !token.Valid {
		return model.Identity{}, errors.New("internal/auth: token is invalid")
	}

	if claims.Subject == "" {
		return model.Identity{}, errors.New("internal/auth: subject claim is missing")
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.Identity{}, fmt.Errorf("internal/auth: subject is not a valid id: %w", err)
	}

	return model.Identity{ID: id, DisplayName: claims.DisplayName}, nil
}

// ContextWithIdentity binds a verified identity to a request context.
func ContextWithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// IdentityFromContext recovers the identity the middleware bound earlier.
func IdentityFromContext(ctx context.Context) (model.Identity, error) {
	identity, ok := ctx.Value(IdentityKey).(model.Identity)
	if !ok {
		return model.Identity{}, ErrNoIdentity
	}

	return identity, nil
}
