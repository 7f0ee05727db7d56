package main

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"profanity-stream-service/internal/models"
)

func TestHub_BroadcastsToClients(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	hub := newHub(done)
	go hub.run()

	srv := httptest.NewServer(wsHandler(hub))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for hub.clientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.clientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.clientCount())
	}

	hub.broadcast <- models.DetectionEvent{
		EventType: models.DetectionEventType,
		UserID:    "ab12cd34",
		Pattern:   "짜증",
		Patterns:  []string{"짜증"},
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got models.DetectionEvent
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.UserID != "ab12cd34" || got.Pattern != "짜증" {
		t.Errorf("unexpected event %+v", got)
	}
}

func TestHub_HandlerReturnsAfterStop(t *testing.T) {
	done := make(chan struct{})
	hub := newHub(done)
	stopped := make(chan struct{})
	go func() {
		hub.run()
		close(stopped)
	}()
	close(done)
	<-stopped

	srv := httptest.NewServer(wsHandler(hub))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The handler closes the connection instead of blocking on register.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection closed by the server")
	} else if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
		t.Errorf("expected close, got timeout: %v", err)
	}
	if hub.clientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.clientCount())
	}
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"detection", `{"eventType":"profanity.detection","userId":"ab12","patterns":["개"]}`, false},
		{"other type", `{"eventType":"interaction.transcript.final"}`, true},
		{"not json", `nope`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeEvent([]byte(tt.value))
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}
