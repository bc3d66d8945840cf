// Command loadtest drives a running relay with synthetic sessions: each
// worker registers an account, logs in, connects over the websocket and
// sends a stream of messages while counting everything it receives.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/dkoval/wirechat/internal/model"
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:8080", "relay base URL")
		sessions = flag.Int("sessions", 10, "concurrent sessions")
		messages = flag.Int("messages", 50, "messages per session")
		interval = flag.Duration("interval", 100*time.Millisecond, "delay between sends")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var (
		sent     atomic.Int64
		received atomic.Int64
		errs     atomic.Int64
	)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < *sessions; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := runSession(ctx, *baseURL, n, *messages, *interval, &sent, &received); err != nil {
				errs.Add(1)
				log.Printf("session %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	elapsed := time.Since(start)
	fmt.Printf("sessions=%d sent=%d received=%d errors=%d elapsed=%s\n",
		*sessions, sent.Load(), received.Load(), errs.Load(), elapsed.Round(time.Millisecond))

	if errs.Load() > 0 {
		os.Exit(1)
	}
}

func runSession(ctx context.Context, baseURL string, n, messages int, interval time.Duration,
	sent, received *atomic.Int64,
) error {
	token, err := provision(ctx, baseURL, n)
	if err != nil {
		return fmt.Errorf("provision: %w", err)
	}

	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	if err := writeEvent(ctx, conn, model.NewEvent(model.EventHandshake,
		model.HandshakePayload{Token: token})); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	// First frame is the history snapshot.
	if _, _, err := conn.Read(ctx); err != nil {
		return fmt.Errorf("history: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, _, err := conn.Read(ctx)
			if err != nil {
				return
			}
			received.Add(1)
		}
	}()

	for i := 0; i < messages; i++ {
		ev := model.NewEvent(model.EventChatMessage, model.InboundMessagePayload{
			ClientMessageID: uuid.NewString(),
			Content:         fmt.Sprintf("load %d/%d", n, i),
		})
		if err := writeEvent(ctx, conn, ev); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		sent.Add(1)

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Let in-flight deliveries land before tearing down.
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
	conn.Close(websocket.StatusNormalClosure, "done")
	return nil
}

// provision registers a fresh throwaway account and returns its token.
func provision(ctx context.Context, baseURL string, n int) (string, error) {
	email := fmt.Sprintf("load-%d-%s@example.com", n, uuid.NewString()[:8])
	body := map[string]string{
		"username": fmt.Sprintf("load%d", n),
		"email":    email,
		"password": "loadtest-password",
	}

	if _, err := postJSON(ctx, baseURL+"/api/auth/register", body, http.StatusCreated); err != nil {
		return "", err
	}

	resp, err := postJSON(ctx, baseURL+"/api/auth/login", map[string]string{
		"email":    email,
		"password": "loadtest-password",
	}, http.StatusOK)
	if err != nil {
		return "", err
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("login returned no token")
	}
	return out.Token, nil
}

func postJSON(ctx context.Context, url string, body any, wantStatus int) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	if resp.StatusCode != wantStatus {
		return nil, fmt.Errorf("%s: status %d: %s", url, resp.StatusCode, buf.String())
	}
	return buf.Bytes(), nil
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
