package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoval/wirechat/internal/auth"
	"github.com/dkoval/wirechat/internal/config"
	"github.com/dkoval/wirechat/internal/model"
	"github.com/dkoval/wirechat/internal/presence"
	"github.com/dkoval/wirechat/internal/relay"
	"github.com/dkoval/wirechat/internal/store/badgerstore"
	ws "github.com/dkoval/wirechat/internal/websocket"
)

const testSecret = "gateway-test-secret"

func testConfig() config.Config {
	return config.Config{
		JWTSecret:         testSecret,
		TokenTTL:          time.Hour,
		Scope:             config.ScopeBroadcast,
		MessageRateLimit:  30,
		MessageRateWindow: time.Minute,
		TypingRateLimit:   60,
		TypingRateWindow:  time.Minute,
	}
}

// newGateway spins up a full relay behind an httptest server: badger store,
// local relay, hub run loop, websocket gateway.
func newGateway(t *testing.T) (*httptest.Server, *ws.Hub, *badgerstore.Store) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := badgerstore.Open(t.TempDir(), log)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	hub := ws.NewHub(st, st, presence.NewRegistry(), relay.NewLocal(log), config.ScopeBroadcast, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(ServeWS(hub, testConfig()))
	t.Cleanup(srv.Close)
	return srv, hub, st
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, srv.URL, nil)
	require.NoError(t, err)
	return conn
}

func writeEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, ev model.Event) {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) model.Event {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	ev, err := model.ParseEvent(data)
	require.NoError(t, err)
	return ev
}

func handshake(t *testing.T, ctx context.Context, conn *websocket.Conn, token string) {
	t.Helper()
	writeEvent(t, ctx, conn, model.NewEvent(model.EventHandshake, model.HandshakePayload{Token: token}))
}

func mintToken(t *testing.T, name string) (model.Identity, string) {
	t.Helper()
	identity := model.Identity{ID: uuid.New(), DisplayName: name}
	token, err := auth.MakeToken(identity, testSecret, time.Hour)
	require.NoError(t, err)
	return identity, token
}

func TestGatewayRejectsBadCredentials(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv, _, _ := newGateway(t)

	t.Run("garbage_token", func(t *testing.T) {
		conn := dial(t, ctx, srv)
		defer conn.CloseNow()

		handshake(t, ctx, conn, "not-a-token")

		// The connection closes with nothing sent, not even an error event.
		_, _, err := conn.Read(ctx)
		require.Error(t, err)
		assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	})

	t.Run("wrong_secret", func(t *testing.T) {
		conn := dial(t, ctx, srv)
		defer conn.CloseNow()

		identity := model.Identity{ID: uuid.New(), DisplayName: "mallory"}
		token, err := auth.MakeToken(identity, "some-other-secret", time.Hour)
		require.NoError(t, err)
		handshake(t, ctx, conn, token)

		_, _, err = conn.Read(ctx)
		require.Error(t, err)
		assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	})

	t.Run("first_frame_not_handshake", func(t *testing.T) {
		conn := dial(t, ctx, srv)
		defer conn.CloseNow()

		writeEvent(t, ctx, conn, model.NewEvent(model.EventChatMessage,
			model.InboundMessagePayload{Content: "let me in"}))

		_, _, err := conn.Read(ctx)
		require.Error(t, err)
		assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	})
}

func TestGatewayHistoryThenLive(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv, _, st := newGateway(t)

	// Seed the log so the snapshot is non-empty.
	seeded := model.Message{
		MessageID:  uuid.NewString(),
		SenderID:   uuid.New(),
		SenderName: "carol",
		Content:    "before anyone connected",
		Timestamp:  time.Now().UTC(),
	}
	require.NoError(t, st.Append(ctx, &seeded))

	_, aliceToken := mintToken(t, "alice")
	alice := dial(t, ctx, srv)
	defer alice.CloseNow()
	handshake(t, ctx, alice, aliceToken)

	// The first frame after a successful handshake is always the history
	// snapshot.
	ev := readEvent(t, ctx, alice)
	require.Equal(t, model.EventChatHistory, ev.Type)
	var history model.HistoryPayload
	require.NoError(t, model.DecodePayload(ev, &history))
	require.Len(t, history.Messages, 1)
	assert.Equal(t, seeded.MessageID, history.Messages[0].MessageID)
	assert.Equal(t, "carol", history.Messages[0].SenderName)

	_, bobToken := mintToken(t, "bob")
	bob := dial(t, ctx, srv)
	defer bob.CloseNow()
	handshake(t, ctx, bob, bobToken)
	ev = readEvent(t, ctx, bob)
	require.Equal(t, model.EventChatHistory, ev.Type)

	// Live round trip: alice sends, both sessions get the broadcast.
	writeEvent(t, ctx, alice, model.NewEvent(model.EventChatMessage,
		model.InboundMessagePayload{ClientMessageID: "live-1", Content: "hello"}))

	for _, conn := range []*websocket.Conn{alice, bob} {
		ev := readEvent(t, ctx, conn)
		require.Equal(t, model.EventChatMessage, ev.Type)
		var wm model.WireMessage
		require.NoError(t, model.DecodePayload(ev, &wm))
		assert.Equal(t, "live-1", wm.MessageID)
		assert.Equal(t, "alice", wm.SenderName)
	}
}

func TestGatewayTypingRelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv, _, _ := newGateway(t)

	aliceIdentity, aliceToken := mintToken(t, "alice")
	alice := dial(t, ctx, srv)
	defer alice.CloseNow()
	handshake(t, ctx, alice, aliceToken)
	require.Equal(t, model.EventChatHistory, readEvent(t, ctx, alice).Type)

	_, bobToken := mintToken(t, "bob")
	bob := dial(t, ctx, srv)
	defer bob.CloseNow()
	handshake(t, ctx, bob, bobToken)
	require.Equal(t, model.EventChatHistory, readEvent(t, ctx, bob).Type)

	writeEvent(t, ctx, alice, model.Event{Type: model.EventTyping})

	ev := readEvent(t, ctx, bob)
	require.Equal(t, model.EventTyping, ev.Type)
	var p model.TypingPayload
	require.NoError(t, model.DecodePayload(ev, &p))
	assert.Equal(t, aliceIdentity.ID.String(), p.UserID)
	assert.Equal(t, "alice", p.DisplayName)
}
