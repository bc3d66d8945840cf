// Package store defines the persistence contracts the relay is built
// against. Drivers live in subpackages; the delivery engine only ever sees
// these interfaces.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dkoval/wirechat/internal/model"
)

var (
	// ErrDuplicateID means an append carried a message id that is already
	// stored. The existing record is untouched; treat a resend as
	// idempotent, not as corruption.
	ErrDuplicateID = errors.New("store: duplicate message id")

	ErrNotFound = errors.New("store: not found")
)

// MessageStore is an append-only ordered log. Append assigns the sequence
// number that is the sole ordering authority; there is no update or delete.
type MessageStore interface {
	// Append persists msg and fills msg.Seq. A duplicate MessageID fails
	// with ErrDuplicateID and performs no mutation. Any other error means
	// the store is unavailable.
	Append(ctx context.Context, msg *model.Message) error

	// ListAll returns the full log in ascending Seq order.
	ListAll(ctx context.Context) ([]model.Message, error)

	// ListFor returns messages where the identity is sender or recipient,
	// in ascending Seq order.
	ListFor(ctx context.Context, identityID uuid.UUID) ([]model.Message, error)

	// GetByMessageID fetches a stored message by its unique message id.
	GetByMessageID(ctx context.Context, messageID string) (model.Message, error)
}

// User is an account record. The relay core treats identities as externally
// owned; this record backs the account endpoints and the directory.
type User struct {
	ID             uuid.UUID
	Username       string
	Email          string
	HashedPassword string
	CreatedAt      time.Time
}

// Directory enumerates known identities. Directed-scope delivery resolves
// recipients against it; the account endpoints write to it.
type Directory interface {
	// CreateUser stores a new account. A taken email fails with
	// ErrDuplicateID.
	CreateUser(ctx context.Context, user User) error

	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)

	// ListUsers returns every known account, ordered by creation time.
	ListUsers(ctx context.Context) ([]User, error)
}

// Store is what a persistence driver must provide in full.
type Store interface {
	MessageStore
	Directory

	Close() error
}
