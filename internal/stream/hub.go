// Package stream pushes transitions to websocket subscribers as they happen.
package stream

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/angeloszaimis/fleet-health/internal/service"
)

const (
	writeTimeout = 5 * time.Second
	bufferSize   = 16
)

// Event is the JSON frame sent for one transition.
type Event struct {
	ID                   string     `json:"id"`
	Service              string     `json:"service"`
	Address              string     `json:"address"`
	Port                 int        `json:"port"`
	Active               bool       `json:"active"`
	OccurredAt           time.Time  `json:"occurredAt"`
	PreviousTransitionAt *time.Time `json:"previousTransitionAt,omitempty"`
}

func newEvent(t service.Transition) Event {
	return Event{
		ID:                   uuid.NewString(),
		Service:              t.Descriptor.Name,
		Address:              t.Descriptor.Address,
		Port:                 t.Descriptor.Port,
		Active:               t.To,
		OccurredAt:           t.OccurredAt,
		PreviousTransitionAt: t.PreviousTransitionAt,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(strings.TrimSpace(r.Host), strings.TrimSpace(u.Host))
	},
}

// Hub fans transitions out to every connected subscriber. A subscriber that
// cannot keep up loses events rather than slowing the health cycle down.
type Hub struct {
	mutex       sync.RWMutex
	subscribers map[chan Event]struct{}
	logger      *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[chan Event]struct{}),
		logger:      logger,
	}
}

// Notify publishes t without blocking.
func (h *Hub) Notify(_ context.Context, t service.Transition) error {
	event := newEvent(t)

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			h.logger.Warn("Dropping event for slow subscriber", slog.String("service", event.Service))
		}
	}
	return nil
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) subscribe() chan Event {
	ch := make(chan Event, bufferSize)
	h.mutex.Lock()
	h.subscribers[ch] = struct{}{}
	h.mutex.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan Event) {
	h.mutex.Lock()
	delete(h.subscribers, ch)
	h.mutex.Unlock()
}

// ServeHTTP upgrades the request and streams events until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", slog.Any("err", err))
		return
	}
	defer conn.Close()

	events := h.subscribe()
	defer h.unsubscribe(events)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
