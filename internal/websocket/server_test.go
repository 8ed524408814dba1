package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/scribelabs/scribe-live/pkg/logger"
)

func TestServerBroadcastReachesClient(t *testing.T) {
	server := NewServer(logger.NewNop())
	go server.Run()

	ts := httptest.NewServer(http.HandlerFunc(server.HandleConnection))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial test server: %v", err)
	}
	defer conn.Close()

	// Registration races the broadcast below, so retry until delivered
	deadline := time.Now().Add(2 * time.Second)
	received := make(chan []byte, 1)
	go func() {
		_, data, err := conn.ReadMessage()
		if err == nil {
			received <- data
		}
	}()

	msg := &Message{
		Type: MessageTypeTranscriptEntry,
		Data: map[string]any{"text": "hello"},
	}

	var data []byte
	for {
		server.Broadcast(msg)
		select {
		case data = <-received:
		case <-time.After(50 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatal("Timed out waiting for broadcast delivery")
			}
			continue
		}
		break
	}

	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Failed to parse broadcast message: %v", err)
	}
	if got.Type != MessageTypeTranscriptEntry {
		t.Errorf("Expected message type %s, got %s", MessageTypeTranscriptEntry, got.Type)
	}
	if text, _ := got.Data["text"].(string); text != "hello" {
		t.Errorf("Expected text hello, got %q", text)
	}
}

func TestServerBroadcastWithConcurrentConnections(t *testing.T) {
	server := NewServer(logger.NewNop())
	go server.Run()

	ts := httptest.NewServer(http.HandlerFunc(server.HandleConnection))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")

	// Clients connecting and disconnecting while broadcasts run must not
	// race the hub's client map
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
			if err != nil {
				continue
			}
			conn.Close()
		}
	}()

	msg := &Message{Type: MessageTypeSessionStatus, Data: map[string]any{"status": "open"}}
	for i := 0; i < 20; i++ {
		server.Broadcast(msg)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for connection churn to finish")
	}
}

