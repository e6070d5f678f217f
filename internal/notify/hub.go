package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"

	"github.com/tbourn/go-rescue-dispatch/internal/domain"
	"github.com/tbourn/go-rescue-dispatch/internal/services"
)

// Event is one message pushed to dashboard clients.
type Event struct {
	Type         string              `json:"type"`
	Case         domain.Case         `json:"case"`
	Render       *domain.RenderState `json:"render,omitempty"`
	Presentation *Presentation       `json:"presentation,omitempty"`
	Message      string              `json:"message,omitempty"`
	At           time.Time           `json:"at"`
}

// Event types.
const (
	EventCaseAnnounced       = "case.announced"
	EventThreadOpened        = "case.thread_opened"
	EventAnnouncementUpdated = "case.updated"
	EventThreadMessage       = "case.message"
	EventThreadArchived      = "case.archived"
)

const (
	clientBuffer = 64
	writeTimeout = 10 * time.Second
)

type hubClient struct {
	send chan []byte
}

// Hub broadcasts case events to connected WebSocket clients. As a notifier it
// never fails and returns empty references, so it is meant to run as a
// mirror behind Multi. Slow clients whose buffer fills up are dropped.
type Hub struct {
	// OriginPatterns are the allowed Origin host patterns for upgrades.
	// Empty means same-origin only.
	OriginPatterns []string

	mu      sync.RWMutex
	clients map[*hubClient]struct{}
	closed  bool
}

var _ services.Notifier = (*Hub)(nil)

// NewHub returns a hub accepting the given origin patterns.
func NewHub(originPatterns []string) *Hub {
	return &Hub{
		OriginPatterns: originPatterns,
		clients:        make(map[*hubClient]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues ev for every client.
func (h *Hub) Broadcast(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("type", ev.Type).Msg("ws: marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
			log.Warn().Msg("ws: dropping slow client")
		}
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) register() (*hubClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &hubClient{send: make(chan []byte, clientBuffer)}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// ServeHTTP upgrades the request and streams events until the client goes
// away or the hub is closed. Client messages are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		log.Warn().Err(err).Msg("ws: upgrade failed")
		return
	}

	c, ok := h.register()
	if !ok {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.unregister(c)

	// CloseRead drains client frames and cancels ctx when the peer leaves.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg, ok := <-c.send:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) AnnounceCase(_ context.Context, c domain.Case, _ domain.RequestForm) (string, error) {
	p := Present(c, domain.RenderState{}, "")
	h.Broadcast(Event{Type: EventCaseAnnounced, Case: c, Presentation: &p})
	return "", nil
}

func (h *Hub) OpenThread(_ context.Context, c domain.Case) (string, error) {
	h.Broadcast(Event{Type: EventThreadOpened, Case: c, Message: ThreadName(c)})
	return "", nil
}

func (h *Hub) UpdateAnnouncement(_ context.Context, c domain.Case, state domain.RenderState) error {
	p := Present(c, state, "")
	h.Broadcast(Event{Type: EventAnnouncementUpdated, Case: c, Render: &state, Presentation: &p})
	return nil
}

func (h *Hub) NotifyThread(_ context.Context, c domain.Case, message string) error {
	h.Broadcast(Event{Type: EventThreadMessage, Case: c, Message: message})
	return nil
}

func (h *Hub) ArchiveThread(_ context.Context, c domain.Case) error {
	h.Broadcast(Event{Type: EventThreadArchived, Case: c})
	return nil
}
