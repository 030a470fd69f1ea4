package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	sendBuffer   = 64
)

// SubscriberMetrics counts connected event listeners.
type SubscriberMetrics interface {
	SubscriberJoined()
	SubscriberLeft()
}

// Hub fans published events out to every websocket subscriber. A subscriber
// that falls behind is disconnected.
type Hub struct {
	upgrader websocket.Upgrader
	metrics  SubscriberMetrics
	log      zerolog.Logger

	mu      sync.Mutex
	clients map[*subscriber]struct{}
	closed  bool
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub accepts same-origin subscribers plus any of allowedOrigins.
func NewHub(metrics SubscriberMetrics, log zerolog.Logger, allowedOrigins ...string) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		metrics: metrics,
		log:     log,
		clients: make(map[*subscriber]struct{}),
	}
}

// SetMetrics attaches subscriber counters. Call it before serving.
func (h *Hub) SetMetrics(metrics SubscriberMetrics) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metrics = metrics
}

// Publish encodes event as JSON and queues it for every subscriber.
func (h *Hub) Publish(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to encode event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.clients {
		select {
		case s.send <- payload:
		default:
			h.log.Warn().Msg("dropping slow event subscriber")
			h.removeLocked(s)
		}
	}
}

// Len reports the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[s] = struct{}{}
	if h.metrics != nil {
		h.metrics.SubscriberJoined()
	}
	h.mu.Unlock()

	go h.writeLoop(s)
	h.readLoop(s)

	h.mu.Lock()
	h.removeLocked(s)
	h.mu.Unlock()
}

// originChecker returns nil for an empty list so the upgrader falls back to
// its same-origin check.
func originChecker(allowed []string) func(*http.Request) bool {
	origins := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		origin = strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")
		if origin != "" {
			origins[origin] = struct{}{}
		}
	}
	if len(origins) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := origins[strings.ToLower(origin)]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.clients {
		h.removeLocked(s)
	}
}

func (h *Hub) removeLocked(s *subscriber) {
	if _, ok := h.clients[s]; !ok {
		return
	}
	delete(h.clients, s)
	close(s.send)
	if h.metrics != nil {
		h.metrics.SubscriberLeft()
	}
}

// readLoop drains client frames so pongs and close frames are processed.
func (h *Hub) readLoop(s *subscriber) {
	s.conn.SetReadLimit(4096)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
