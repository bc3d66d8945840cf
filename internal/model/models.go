// Package model defines the data structures shared across the relay.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Identity is the authenticated principal behind a session. It is derived
// from verified token claims and never from client payloads.
type Identity struct {
	ID          uuid.UUID
	DisplayName string
}

// Message is a single stored chat message. Once appended it never changes.
// Seq is assigned by the store and is the only ordering authority;
// Timestamp is display-only.
type Message struct {
	Seq         int64
	MessageID   string
	SenderID    uuid.UUID
	SenderName  string
	RecipientID *uuid.UUID
	Content     string
	Timestamp   time.Time
}
