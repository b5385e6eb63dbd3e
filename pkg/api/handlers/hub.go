package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Event types pushed to dashboard clients.
const (
	EventTestRunImported = "test_run_imported"
	EventTestRunsUpdated = "test_runs_updated"
	EventTestRunsDeleted = "test_runs_deleted"
)

// Event is one realtime notification.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

type subscriber struct {
	events chan []byte
}

// Hub fans dataset change events out to WebSocket and SSE subscribers.
// All subscriber bookkeeping happens on the Run goroutine.
type Hub struct {
	register   chan *subscriber
	unregister chan *subscriber
	broadcast  chan []byte
	done       chan struct{}
}

// NewHub creates a hub. Call Run on its own goroutine before use.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		broadcast:  make(chan []byte, 16),
		done:       make(chan struct{}),
	}
}

// Run processes subscriptions and broadcasts until Close.
func (h *Hub) Run() {
	subscribers := map[*subscriber]bool{}
	for {
		select {
		case <-h.done:
			for sub := range subscribers {
				close(sub.events)
			}
			return
		case sub := <-h.register:
			subscribers[sub] = true
		case sub := <-h.unregister:
			if subscribers[sub] {
				delete(subscribers, sub)
				close(sub.events)
			}
		case payload := <-h.broadcast:
			for sub := range subscribers {
				select {
				case sub.events <- payload:
				default:
					// Drop slow consumers rather than stall the hub.
					delete(subscribers, sub)
					close(sub.events)
				}
			}
		}
	}
}

// Close stops the hub and disconnects every subscriber.
func (h *Hub) Close() {
	close(h.done)
}

// Subscribe registers an event stream. The cancel func must be called
// when the consumer goes away.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	sub := &subscriber{events: make(chan []byte, 8)}
	select {
	case h.register <- sub:
	case <-h.done:
		close(sub.events)
		return sub.events, func() {}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			select {
			case h.unregister <- sub:
			case <-h.done:
			}
		})
	}
	return sub.events, cancel
}

// Broadcast publishes one event to all subscribers.
func (h *Hub) Broadcast(eventType string, data any) {
	payload, err := json.Marshal(Event{Type: eventType, Timestamp: time.Now().UTC(), Data: data})
	if err != nil {
		log.Printf("[Hub] Failed to encode %s event: %v", eventType, err)
		return
	}
	select {
	case h.broadcast <- payload:
	case <-h.done:
	}
}

const keepaliveInterval = 30 * time.Second

// EventHandlers serves the realtime endpoints.
type EventHandlers struct {
	hub *Hub
}

// NewEventHandlers creates handlers streaming from the hub.
func NewEventHandlers(hub *Hub) *EventHandlers {
	return &EventHandlers{hub: hub}
}

// Stream pushes hub events as Server-Sent Events.
func (h *EventHandlers) Stream(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	events, cancel := h.hub.Subscribe()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()
		for {
			select {
			case payload, ok := <-events:
				if !ok {
					return
				}
				fmt.Fprintf(w, "event: update\ndata: %s\n\n", payload)
				if err := w.Flush(); err != nil {
					// client went away
					return
				}
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}

// WebSocket streams hub events over a WebSocket connection. Must sit
// behind middleware.WebSocketUpgrade.
func (h *EventHandlers) WebSocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		events, cancel := h.hub.Subscribe()
		defer cancel()
		defer conn.Close()

		// The reader only exists to notice the peer closing.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()
		for {
			select {
			case <-closed:
				return
			case payload, ok := <-events:
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			case <-keepalive.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	})
}
