package relay

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dkoval/wirechat/internal/model"
)

// record is the broker wire form of a stored message.
type record struct {
	Seq         int64     `json:"seq"`
	MessageID   string    `json:"message_id"`
	SenderID    string    `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	RecipientID string    `json:"recipient_id,omitempty"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

func wireRecord(msg model.Message) record {
	rec := record{
		Seq:        msg.Seq,
		MessageID:  msg.MessageID,
		SenderID:   msg.SenderID.String(),
		SenderName: msg.SenderName,
		Content:    msg.Content,
		Timestamp:  msg.Timestamp,
	}
	if msg.RecipientID != nil {
		rec.RecipientID = msg.RecipientID.String()
	}
	return rec
}

func (r record) toModel() (model.Message, error) {
	senderID, err := uuid.Parse(r.SenderID)
	if err != nil {
		return model.Message{}, fmt.Errorf("relay: bad sender id %q: %w", r.SenderID, err)
	}

	msg := model.Message{
		Seq:        r.Seq,
		MessageID:  r.MessageID,
		SenderID:   senderID,
		SenderName: r.SenderName,
		Content:    r.Content,
		Timestamp:  r.Timestamp,
	}
	if r.RecipientID != "" {
		recipientID, err := uuid.Parse(r.RecipientID)
		if err != nil {
			return model.Message{}, fmt.Errorf("relay: bad recipient id %q: %w", r.RecipientID, err)
		}
		msg.RecipientID = &recipientID
	}
	return msg, nil
}
