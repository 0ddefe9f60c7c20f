// Package realtime streams scored transactions to WebSocket clients.
//
// Clients connect to /ws and receive every event by default. Sending a
// Subscription JSON message narrows the feed, e.g. only blocked
// transactions or only scores above a threshold.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbd888/fraudwatch/internal/metrics"
)

// MaxClients caps concurrent WebSocket connections.
const MaxClients = 10000

// Stats is a point-in-time view of the hub.
type Stats struct {
	ConnectedClients int   `json:"connectedClients"`
	TotalClients     int64 `json:"totalClients"`
	PeakClients      int64 `json:"peakClients"`
	TotalEvents      int64 `json:"totalEvents"`
	DroppedEvents    int64 `json:"droppedEvents"`
}

// Hub fans events out to connected clients. All membership changes go
// through Run, so clients only ever see a closed send channel once.
type Hub struct {
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	maxClients int

	mu      sync.RWMutex
	clients map[*Client]struct{}

	events     chan *Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	totalEvents  atomic.Int64
	totalClients atomic.Int64
	peakClients  atomic.Int64
	dropped      atomic.Int64
}

// NewHub creates a hub that only accepts same-host browser origins.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		maxClients: MaxClients,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     sameHostOrigin,
		},
		clients:    make(map[*Client]struct{}),
		events:     make(chan *Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// WithAllowedOrigins accepts browser connections from the given origins
// in addition to the serving host. "*" allows any origin.
func (h *Hub) WithAllowedOrigins(origins []string) *Hub {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
			return h
		}
		allowed[strings.TrimRight(o, "/")] = true
	}
	h.upgrader.CheckOrigin = func(r *http.Request) bool {
		return sameHostOrigin(r) || allowed[r.Header.Get("Origin")]
	}
	return h
}

func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser clients
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// Run owns client membership until ctx is cancelled, then disconnects
// everyone and refuses further upgrades.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("realtime hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(0)
			h.logger.Info("realtime hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.totalClients.Add(1)
			if int64(n) > h.peakClients.Load() {
				h.peakClients.Store(int64(n))
			}
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Debug("websocket client connected", "clients", n)

		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Debug("websocket client disconnected", "clients", n)

		case event := <-h.events:
			h.fanOut(event)
		}
	}
}

// drop removes a client and closes its send channel. Caller holds h.mu.
func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// fanOut delivers one event. Clients whose buffers are full are
// disconnected rather than allowed to stall the feed.
func (h *Hub) fanOut(event *Event) {
	h.totalEvents.Add(1)
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encode realtime event", "type", event.Type, "error", err)
		return
	}

	var slow []*Client
	h.mu.RLock()
	for c := range h.clients {
		if !h.shouldSend(c, event) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, c := range slow {
		h.drop(c)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.ActiveWebSocketClients.Set(float64(n))
	h.logger.Warn("dropped slow websocket clients", "count", len(slow))
}

func (h *Hub) shouldSend(c *Client, event *Event) bool {
	return c.subscription().Matches(event)
}

// attach hands a client to Run. It fails once the hub has stopped.
func (h *Hub) attach(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// detach hands a client back to Run for removal. After Run exits the
// client has already been dropped.
func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues an event. It never blocks; a full queue drops the event.
func (h *Hub) Broadcast(event *Event) {
	select {
	case h.events <- event:
	default:
		h.dropped.Add(1)
		h.logger.Warn("realtime queue full, dropping event", "type", event.Type)
	}
}

// BroadcastTransaction publishes a scored transaction.
func (h *Hub) BroadcastTransaction(tx *TransactionEvent) {
	h.Broadcast(&Event{Type: EventTransaction, Timestamp: time.Now().UTC(), Data: tx})
}

// BroadcastAccountLinked announces a newly linked bank account.
func (h *Hub) BroadcastAccountLinked(accountID, bankName string) {
	h.Broadcast(&Event{
		Type:      EventAccountLinked,
		Timestamp: time.Now().UTC(),
		Data:      &AccountLinkedEvent{AccountID: accountID, BankName: bankName},
	})
}

// Stats returns current counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	return Stats{
		ConnectedClients: n,
		TotalClients:     h.totalClients.Load(),
		PeakClients:      h.peakClients.Load(),
		TotalEvents:      h.totalEvents.Load(),
		DroppedEvents:    h.dropped.Load(),
	}
}

// HandleWebSocket upgrades the request and attaches the connection.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}
	if h.Stats().ConnectedClients >= h.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.attach(c) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
