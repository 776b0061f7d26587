package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/atinyakov/SchoolBus/internal/models"
)

const (
	sendQueueSize = 16
	writeTimeout  = 5 * time.Second
)

// positionEvent is the frame pushed to tracking clients.
type positionEvent struct {
	Event string        `json:"event"`
	Data  positionFrame `json:"data"`
}

type positionFrame struct {
	BusID     string  `json:"busId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	Heading   float64 `json:"heading"`
	Status    string  `json:"status,omitempty"`
}

// Hub fans bus positions out to every connected WebSocket client.
// Slow clients drop frames instead of blocking the broadcaster.
type Hub struct {
	log *zap.Logger

	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewHub returns an empty Hub.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{log: log, clients: make(map[chan []byte]struct{})}
}

// Broadcast sends l to all clients as a busLocation event.
func (h *Hub) Broadcast(l models.BusLocation) {
	b, err := json.Marshal(positionEvent{
		Event: "busLocation",
		Data: positionFrame{
			BusID:     l.Bus.ID,
			Latitude:  l.CurrentLocation.Latitude,
			Longitude: l.CurrentLocation.Longitude,
			Speed:     l.Speed,
			Heading:   l.Heading,
			Status:    l.Status,
		},
	})
	if err != nil {
		h.log.Error("encode position", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- b:
		default:
			h.log.Debug("dropping frame for slow client")
		}
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add() chan []byte {
	ch := make(chan []byte, sendQueueSize)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) remove(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and streams positions until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn("ws accept failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	// Inbound frames are ignored; CloseRead cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	ch := h.add()
	defer h.remove(ch)
	h.log.Debug("tracking client connected", zap.String("remote", r.RemoteAddr))

	for {
		select {
		case <-ctx.Done():
			return
		case b := <-ch:
			if err := write(ctx, conn, b); err != nil {
				h.log.Debug("ws write failed", zap.Error(err))
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, b []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, b)
}
