// Package sse streams pull request events to HTTP clients as Server-Sent
// Events, or over a WebSocket when the client asks for an upgrade.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/prnotify/pkg/domain/events"
	"github.com/gorilla/websocket"
)

// Handler fans dispatched events out to connected clients.
type Handler struct {
	mu      sync.RWMutex
	clients map[chan *events.BaseEvent]struct{}
}

// NewHandler creates a handler with no clients.
func NewHandler() *Handler {
	return &Handler{clients: make(map[chan *events.BaseEvent]struct{})}
}

// message is the payload of one SSE frame or WebSocket message.
type message struct {
	Type        string    `json:"type"`
	PullRequest string    `json:"pull_request"`
	Title       string    `json:"title,omitempty"`
	URL         string    `json:"url,omitempty"`
	Issue       string    `json:"issue,omitempty"`
	Commit      string    `json:"commit,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publish queues event for every client. Slow clients miss events instead
// of blocking the dispatcher.
func (h *Handler) Publish(ctx context.Context, event events.DomainEvent) error {
	base, ok := events.AsBaseEvent(event)
	if !ok {
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- base:
		default:
		}
	}
	return nil
}

// Registration returns the HandlerRegistration for this handler.
func (h *Handler) Registration() events.HandlerRegistration {
	return events.HandlerRegistration{
		Name:       "EventStream",
		Handler:    h.Publish,
		EventTypes: []string{events.Wildcard},
	}
}

// ClientCount returns the number of connected clients.
func (h *Handler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP handles SSE and WebSocket connections. The optional types query parameter is a
// comma separated list of event types to receive.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	typeFilter := parseTypes(r)
	if websocket.IsWebSocketUpgrade(r) {
		h.serveWebSocket(w, r, typeFilter)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, leave := h.join()
	defer leave()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			if len(typeFilter) > 0 && !typeFilter[event.Type] {
				continue
			}
			if err := writeFrame(w, event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) join() (chan *events.BaseEvent, func()) {
	ch := make(chan *events.BaseEvent, 64)

	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
		close(ch)
	}
}

func parseTypes(r *http.Request) map[string]bool {
	typeFilter := make(map[string]bool)
	if types := r.URL.Query().Get("types"); types != "" {
		for _, t := range strings.Split(types, ",") {
			typeFilter[strings.TrimSpace(t)] = true
		}
	}
	return typeFilter
}

func toMessage(event *events.BaseEvent) message {
	return message{
		Type:        event.Type,
		PullRequest: event.AggregateID(),
		Title:       event.MetaString(events.MetaTitle),
		URL:         event.MetaString(events.MetaURL),
		Issue:       event.MetaString(events.MetaIssue),
		Commit:      event.MetaString(events.MetaCommit),
		Timestamp:   event.Timestamp,
	}
}

func writeFrame(w http.ResponseWriter, event *events.BaseEvent) error {
	data, err := json.Marshal(toMessage(event))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, data)
	return err
}
