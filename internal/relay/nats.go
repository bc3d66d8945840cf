package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/dkoval/wirechat/internal/model"
)

var (
	StreamName     = "WIRECHAT"
	SubjectMessage = "wirechat.messages"
)

// NATS relays stored messages through a JetStream stream so several relay
// instances can share one message log. Publishing carries the message id
// as the dedupe id, which makes a client resend harmless even if it races
// two instances.
type NATS struct {
	js     jetstream.JetStream
	stream jetstream.Stream
	log    *slog.Logger
}

func NewNATS(js jetstream.JetStream, stream jetstream.Stream, log *slog.Logger) *NATS {
	return &NATS{js: js, stream: stream, log: log}
}

// EnsureStream creates or updates the relay's stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) (jetstream.Stream, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectMessage},
		MaxBytes: 1 << 30,
	})
	if err != nil {
		return nil, fmt.Errorf("relay: failed to create/update stream: %w", err)
	}
	return stream, nil
}

func (n *NATS) Publish(ctx context.Context, msg model.Message) error {
	data, err := json.Marshal(wireRecord(msg))
	if err != nil {
		return fmt.Errorf("relay: could not encode payload to JSON: %w", err)
	}

	_, err = n.js.Publish(ctx, SubjectMessage, data,
		jetstream.WithMsgID(msg.MessageID),
	)
	if err != nil {
		return fmt.Errorf("relay: failed to publish to [%s]: %w", SubjectMessage, err)
	}
	return nil
}

func (n *NATS) Subscribe(ctx context.Context) (<-chan model.Message, error) {
	out := make(chan model.Message, 1024)

	consumer, err := n.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{})
	if err != nil {
		return nil, fmt.Errorf("relay: failed to create or update consumer: %w", err)
	}

	consumeHandler := func(m jetstream.Msg) {
		var rec record
		if err := json.Unmarshal(m.Data(), &rec); err != nil {
			_ = m.Term()
			n.log.Error("could not decode relay payload", "error", err)
			return
		}
		_ = m.Ack()

		msg, err := rec.toModel()
		if err != nil {
			n.log.Error("corrupt relay payload", "error", err)
			return
		}

		select {
		case out <- msg:
		default:
			n.log.Warn("relay consumer buffer full, dropping fan-out",
				"message_id", msg.MessageID)
		}
	}

	errHandler := jetstream.ConsumeErrHandler(func(cctx jetstream.ConsumeContext, err error) {
		n.log.Error("relay consumer error", "error", err)
	})

	consumeCtx, err := consumer.Consume(consumeHandler, errHandler)
	if err != nil {
		return nil, fmt.Errorf("relay: failed to start consuming messages: %w", err)
	}

	go func() {
		<-ctx.Done()
		consumeCtx.Drain()
	}()

	return out, nil
}
