package relay

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dkoval/wirechat/internal/model"
)

func Test_Local_Preserves_Publish_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	l := NewLocal(slog.Default())

	out, err := l.Subscribe(ctx)
	req.NoError(err)

	var want []string
	for i := 0; i < 10; i++ {
		msg := model.Message{
			Seq:       int64(i + 1),
			MessageID: uuid.NewString(),
			SenderID:  uuid.New(),
			Content:   "hello",
			Timestamp: time.Now().UTC(),
		}
		req.NoError(l.Publish(ctx, msg))
		want = append(want, msg.MessageID)
	}

	for _, id := range want {
		select {
		case got := <-out:
			req.Equal(id, got.MessageID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for relayed message")
		}
	}
}

func Test_Local_Drops_On_Full_Buffer_Without_Blocking(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	l := NewLocal(slog.Default())

	// Nobody drains; the buffer fills and the overflow publish must
	// return instead of wedging the caller.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2048; i++ {
			_ = l.Publish(ctx, model.Message{MessageID: uuid.NewString()})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a full buffer")
	}

	out, err := l.Subscribe(ctx)
	req.NoError(err)
	req.Len(out, 1024)
}

func Test_Record_Round_Trip(t *testing.T) {
	req := require.New(t)

	recipient := uuid.New()
	msg := model.Message{
		Seq:         7,
		MessageID:   uuid.NewString(),
		SenderID:    uuid.New(),
		SenderName:  "alice",
		RecipientID: &recipient,
		Content:     "hello",
		Timestamp:   time.Now().UTC().Truncate(time.Millisecond),
	}

	got, err := wireRecord(msg).toModel()
	req.NoError(err)
	req.Equal(msg.Seq, got.Seq)
	req.Equal(msg.MessageID, got.MessageID)
	req.Equal(msg.SenderID, got.SenderID)
	req.NotNil(got.RecipientID)
	req.Equal(recipient, *got.RecipientID)
	req.True(msg.Timestamp.Equal(got.Timestamp))
}
