package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pliu/palaver/internal/chat"
	"github.com/pliu/palaver/internal/models"
	"github.com/pliu/palaver/internal/store/sqlstore"
	"github.com/rs/zerolog"
)

func newTestManager(t *testing.T) *chat.Manager {
	t.Helper()

	st, err := sqlstore.New("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	m, err := chat.NewManager(chat.Options{Store: st, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	m.Run(context.Background())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})
	return m
}

func newWSServer(t *testing.T, manager *chat.Manager) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(manager, zerolog.Nop(), w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func dialWS(t *testing.T, server *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?session_id=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServeWSRejectsDeadSession(t *testing.T) {
	manager := newTestManager(t)
	server := newWSServer(t, manager)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?session_id=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Expected dial to fail for dead session")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 handshake response, got %+v", resp)
	}
}

func TestServeWSDeliversMessages(t *testing.T) {
	manager := newTestManager(t)
	manager.Register("alice", "pass", "", "")
	_, sessionID, _ := manager.Login("alice", "pass")

	server := newWSServer(t, manager)
	conn := dialWS(t, server, sessionID)

	ok, err := manager.Send(models.NewMessage("hello", "alice", ""), sessionID)
	if err != nil || !ok {
		t.Fatalf("Send failed: ok=%v err=%v", ok, err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}

	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to decode message: %v", err)
	}
	if msg.Content != "hello" {
		t.Errorf("Expected content 'hello', got '%s'", msg.Content)
	}
	if msg.Sender != "alice" {
		t.Errorf("Expected sender 'alice', got '%s'", msg.Sender)
	}
}

func TestServeWSInbound(t *testing.T) {
	manager := newTestManager(t)
	manager.Register("alice", "pass", "", "")
	_, sessionID, _ := manager.Login("alice", "pass")

	server := newWSServer(t, manager)
	conn := dialWS(t, server, sessionID)

	if err := conn.WriteJSON(map[string]string{"content": "from socket"}); err != nil {
		t.Fatalf("Failed to write message: %v", err)
	}

	// The sender's own session gets the broadcast back.
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read echo: %v", err)
	}

	var msg models.Message
	json.Unmarshal(data, &msg)
	if msg.Content != "from socket" {
		t.Errorf("Expected content 'from socket', got '%s'", msg.Content)
	}

	// And it was persisted.
	history, _ := manager.History("alice", 10)
	if len(history) != 1 {
		t.Fatalf("Expected 1 message in history, got %d", len(history))
	}
}
