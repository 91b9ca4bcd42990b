package services

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cppla/anyrate/utils"
)

// LiveHub pushes score and feed changes to connected browsers so open pages
// reflect other visitors' ratings without polling.
type LiveHub struct {
	mu        sync.Mutex
	clients   map[*websocket.Conn]struct{}
	broadcast chan []byte
	upgrader  websocket.Upgrader
}

// LiveEvent is one update on the wire.
type LiveEvent struct {
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
}

func NewLiveHub() *LiveHub {
	return &LiveHub{
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan []byte, 256),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser origin is already vetted by the CORS layer
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run fans broadcast messages out to every client. Call once in a goroutine.
func (h *LiveHub) Run() {
	for msg := range h.broadcast {
		h.mu.Lock()
		for conn := range h.clients {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				conn.Close()
				delete(h.clients, conn)
			}
		}
		h.mu.Unlock()
	}
}

// Publish queues one event for all clients. Drops the event when the queue is
// full rather than blocking a request handler.
func (h *LiveHub) Publish(kind string, payload interface{}) {
	b, err := json.Marshal(LiveEvent{Kind: kind, Payload: payload})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- b:
	default:
		utils.Sugar.Warn("live hub queue full, dropping event")
	}
}

// Serve upgrades the request and keeps the connection registered until the
// peer goes away.
func (h *LiveHub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.Sugar.Debugf("websocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	// Reader loop only drains control frames; clients never send data.
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
