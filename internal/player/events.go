package player

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
)

// EventHandler connects to the renderer WebSocket event stream.
type EventHandler struct {
	conn *websocket.Conn
	Ch   chan Event
}

// EventsURL derives the ws:// events endpoint from a renderer base URL.
func EventsURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://") + "/events"
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://") + "/events"
	}
	return baseURL + "/events"
}

// NewEventHandler connects to the events endpoint at url.
func NewEventHandler(url string) (*EventHandler, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to events WebSocket: %w", err)
	}
	return &EventHandler{
		conn: conn,
		Ch:   make(chan Event, 32),
	}, nil
}

// Start begins reading events in a background goroutine.
// Events are sent to h.Ch. The goroutine exits when the connection closes.
func (h *EventHandler) Start() {
	go func() {
		defer close(h.Ch)
		for {
			_, msg, err := h.conn.ReadMessage()
			if err != nil {
				return
			}
			var ev Event
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			h.Ch <- ev
		}
	}()
}

// Close closes the WebSocket connection.
func (h *EventHandler) Close() error {
	return h.conn.Close()
}
