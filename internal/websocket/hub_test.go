package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Priya8975/post-relay/internal/domain"
	"github.com/gorilla/websocket"
)

func setupTestHub(t *testing.T) *Hub {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	hub := NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func connectWS(t *testing.T, hub *Hub) (*websocket.Conn, func()) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect WebSocket: %v", err)
	}

	return conn, func() {
		conn.Close()
		server.Close()
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.PipelineEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var ev domain.PipelineEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("message is not a pipeline event: %v (%s)", err, msg)
	}
	return ev
}

func TestHub_ClientConnects(t *testing.T) {
	hub := setupTestHub(t)

	conn, cleanup := connectWS(t, hub)
	defer cleanup()

	time.Sleep(50 * time.Millisecond)

	if count := hub.ClientCount(); count != 1 {
		t.Errorf("expected 1 client, got %d", count)
	}

	conn.Close()
	time.Sleep(50 * time.Millisecond)

	if count := hub.ClientCount(); count != 0 {
		t.Errorf("expected 0 clients after disconnect, got %d", count)
	}
}

func TestHub_PublishReachesClient(t *testing.T) {
	hub := setupTestHub(t)

	conn, cleanup := connectWS(t, hub)
	defer cleanup()

	time.Sleep(50 * time.Millisecond)

	hub.Publish(domain.PipelineEvent{
		Type:    domain.EventPostAdmitted,
		Handle:  "alice",
		PostURL: "https://x.com/alice/status/1",
	})

	ev := readEvent(t, conn)
	if ev.Type != domain.EventPostAdmitted || ev.Handle != "alice" {
		t.Errorf("got %+v, want post.admitted for alice", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected Publish to stamp the event")
	}
}

func TestHub_NewClientReceivesBacklog(t *testing.T) {
	hub := setupTestHub(t)

	hub.Publish(domain.PipelineEvent{Type: domain.EventCycleCompleted, Detail: "first"})
	hub.Publish(domain.PipelineEvent{Type: domain.EventCycleCompleted, Detail: "second"})
	time.Sleep(50 * time.Millisecond)

	conn, cleanup := connectWS(t, hub)
	defer cleanup()

	if ev := readEvent(t, conn); ev.Detail != "first" {
		t.Errorf("first backlog event = %q, want first", ev.Detail)
	}
	if ev := readEvent(t, conn); ev.Detail != "second" {
		t.Errorf("second backlog event = %q, want second", ev.Detail)
	}
}

func TestHub_MultipleClients(t *testing.T) {
	hub := setupTestHub(t)

	conn1, cleanup1 := connectWS(t, hub)
	defer cleanup1()
	conn2, cleanup2 := connectWS(t, hub)
	defer cleanup2()

	time.Sleep(50 * time.Millisecond)

	if count := hub.ClientCount(); count != 2 {
		t.Errorf("expected 2 clients, got %d", count)
	}

	hub.Publish(domain.PipelineEvent{Type: domain.EventSubscriptionDisabled, SubscriptionID: "sub-multi"})

	for i, conn := range []*websocket.Conn{conn1, conn2} {
		if ev := readEvent(t, conn); ev.SubscriptionID != "sub-multi" {
			t.Errorf("client %d didn't receive broadcast", i+1)
		}
	}
}

func TestHub_ClientCountStartsAtZero(t *testing.T) {
	hub := setupTestHub(t)

	if count := hub.ClientCount(); count != 0 {
		t.Errorf("expected 0 clients initially, got %d", count)
	}
}
