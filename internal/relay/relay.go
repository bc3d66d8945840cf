// Package relay is the seam between the persist step and the fan-out step.
// Messages enter it only after a successful append, so anything that comes
// out the subscription side is safe to deliver.
package relay

import (
	"context"
	"log/slog"

	"github.com/dkoval/wirechat/internal/model"
)

// Relay carries stored messages from the delivery engine's persist path to
// its fan-out path.
type Relay interface {
	// Publish hands over a message that has already been persisted.
	Publish(ctx context.Context, msg model.Message) error

	// Subscribe returns the stream of messages to fan out. It is called
	// once, by the hub's run loop.
	Subscribe(ctx context.Context) (<-chan model.Message, error)
}

// Local is the in-process relay used when no broker is configured. It
// mirrors the consumer shape of the NATS relay so the hub has a single
// code path.
type Local struct {
	ch  chan model.Message
	log *slog.Logger
}

func NewLocal(log *slog.Logger) *Local {
	return &Local{
		ch:  make(chan model.Message, 1024),
		log: log,
	}
}

// Publish never blocks: the hub goroutine is both producer and consumer
// here, and a blocking send against a full buffer would wedge the loop.
// Overflow is dropped and logged, the persisted record stays intact.
func (l *Local) Publish(ctx context.Context, msg model.Message) error {
	select {
	case l.ch <- msg:
	default:
		l.log.Warn("local relay buffer full, dropping fan-out",
			"message_id", msg.MessageID)
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context) (<-chan model.Message, error) {
	return l.ch, nil
}
