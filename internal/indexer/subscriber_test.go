package indexer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type countingHandler struct {
	mu       sync.Mutex
	messages []string
}

func (h *countingHandler) Handle(_ context.Context, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, string(message))
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

func TestSubscriberReconnects(t *testing.T) {
	var connections atomic.Int32
	var query atomic.Value
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.RawQuery)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		connections.Add(1)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"commit"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"identity"}`))
	}))
	defer server.Close()

	handler := &countingHandler{}
	endpoint := "ws" + strings.TrimPrefix(server.URL, "http") + "/subscribe"
	sub := NewSubscriber(endpoint, 10*time.Millisecond, handler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for connections.Load() < 2 || handler.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected reconnects, got %d connections and %d messages", connections.Load(), handler.count())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if got, _ := query.Load().(string); got != "wantedCollections=app.bsky.feed.post" {
		t.Errorf("Unexpected subscription query %q", got)
	}
	if sub.State() != Disconnected {
		t.Errorf("State() = %v, want disconnected", sub.State())
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Disconnected, "disconnected"},
		{Connecting, "connecting"},
		{Connected, "connected"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
