package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"photorelay/pkg/types"
)

// dialTestConn upgrades a loopback connection and returns both ends: the
// wrapped server side and the raw client side.
func dialTestConn(t *testing.T, sendBuffer int) (*Connection, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	connCh := make(chan *Connection, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		connCh <- NewConnection(ws, sendBuffer, time.Second)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case conn := <-connCh:
		t.Cleanup(func() { _ = conn.Close() })
		return conn, client
	case <-time.After(2 * time.Second):
		t.Fatal("server never produced a connection")
		return nil, nil
	}
}

func TestConnection_WriteJSONDelivers(t *testing.T) {
	conn, client := dialTestConn(t, 8)

	want := types.Envelope{Event: types.EventUploadSuccess, Data: json.RawMessage(`{"message":"ok"}`)}
	if err := conn.WriteJSON(want); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got types.Envelope
	if err := client.ReadJSON(&got); err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if got.Event != want.Event {
		t.Errorf("event = %q, want %q", got.Event, want.Event)
	}
}

func TestConnection_HasUniqueID(t *testing.T) {
	a, _ := dialTestConn(t, 1)
	b, _ := dialTestConn(t, 1)

	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("connection identifiers must be unique and non-empty, got %q and %q", a.ID(), b.ID())
	}
}

func TestConnection_RoleLifecycle(t *testing.T) {
	conn, _ := dialTestConn(t, 1)

	if conn.Role() != types.RoleUnset {
		t.Errorf("role before registration = %q, want unset", conn.Role())
	}
	if err := conn.SetRole(types.RoleDesktop, "s1"); err != nil {
		t.Fatalf("SetRole failed: %v", err)
	}
	if conn.Role() != types.RoleDesktop || conn.SessionID() != "s1" {
		t.Errorf("got role %q session %q, want desktop s1", conn.Role(), conn.SessionID())
	}
}

func TestConnection_CloseIsIdempotent(t *testing.T) {
	conn, _ := dialTestConn(t, 1)

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	_ = conn.Close()

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Error("Done should be closed after Close")
	}
}

func TestConnection_WriteAfterClose(t *testing.T) {
	conn, _ := dialTestConn(t, 1)
	_ = conn.Close()

	if err := conn.WriteJSON(types.AckPayload{Message: "late"}); err != ErrConnectionClosed {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestConnection_FullBufferFailsFast(t *testing.T) {
	conn, _ := dialTestConn(t, 1)

	// Stall the writer by never reading on the client and flooding the
	// queue with frames big enough to fill the socket buffers. With a
	// one-slot queue the enqueue must eventually refuse instead of
	// blocking.
	payload := types.AckPayload{Message: strings.Repeat("x", 256*1024)}
	var sawFull bool
	for i := 0; i < 200; i++ {
		if err := conn.WriteJSON(payload); err == ErrSendBufferFull {
			sawFull = true
			break
		}
	}
	if !sawFull {
		t.Error("a saturated outbound queue should return ErrSendBufferFull")
	}
}
