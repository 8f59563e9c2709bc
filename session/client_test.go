package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/forbearing/sqlwhitelist/internal/wire"
)

// newEchoServer starts a websocket server that parses every inbound CALL
// frame and replies with a Record{ID, Result: Args}, letting a Client's
// round trip be exercised without a real service.
func newEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frame, err := wire.ParseFrame(string(data))
			if err != nil {
				continue
			}
			switch frame.Cmd {
			case wire.CmdHello:
				// no response required
			case wire.CmdCall:
				rec := wire.Record{ID: frame.ID, Result: json.RawMessage(frame.Args)}
				out, _ := json.Marshal(rec)
				if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
					return
				}
			}
		}
	}))
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestClientCallRoundTrip(t *testing.T) {
	srv := newEchoServer(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := New(ctx, WithServers(wsURL(srv.URL)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if got := c.Status(); got != StatusOpen {
		t.Fatalf("status after connect = %v, want open", got)
	}

	resultCh, errCh := c.Call("echo", map[string]string{"hello": "world"})
	select {
	case v := <-resultCh:
		m, ok := v.(map[string]any)
		if !ok {
			t.Fatalf("result type = %T, want map", v)
		}
		if m["hello"] != "world" {
			t.Fatalf("result = %v, want hello=world", m)
		}
	case err := <-errCh:
		t.Fatalf("unexpected call error: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for call result")
	}
}

func TestClientCloseRejectsOutstanding(t *testing.T) {
	srv := newEchoServer(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := New(ctx, WithServers(wsURL(srv.URL)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.reqs.add(999, &pendingRequest{resolve: func(any) {}, reject: func(error) {}})

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := c.Status(); got != StatusClosed {
		t.Fatalf("status after close = %v, want closed", got)
	}
	if !c.reqs.isEmpty() {
		t.Fatal("expected outstanding requests to be rejected on close")
	}
	// Close must be idempotent.
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestClientDrainWaitForSend(t *testing.T) {
	srv := newEchoServer(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := New(ctx, WithServers(wsURL(srv.URL)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	c.Call("echo", 1)
	c.Drain(WaitForSend)

	c.mu.RLock()
	buffered := c.sendBuffered
	c.mu.RUnlock()
	if buffered != 0 {
		t.Fatalf("sendBuffered after drain = %d, want 0", buffered)
	}
}
