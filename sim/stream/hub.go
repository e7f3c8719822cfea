// Package stream broadcasts simulation snapshots to WebSocket clients, for visualization consumers
// that replay a run's timeline.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/hoist-sim/hoist-sim/sim"
)

// ErrStopped is returned once the hub's Run loop has exited.
var ErrStopped = errors.New("stream hub stopped")

// Hub manages the connected WebSocket clients and fans messages out to them.
// Only the Run loop writes to connections.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	joined     chan struct{} // signalled after each registration
	done       chan struct{}
	mu         sync.Mutex
}

// NewHub creates a hub. Call Run before broadcasting.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		joined:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
			select {
			case h.joined <- struct{}{}:
			default:
			}
			logrus.Debugf("stream: client %s connected", conn.RemoteAddr())
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				logrus.Debugf("stream: client %s disconnected", conn.RemoteAddr())
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					logrus.Warnf("stream: write to %s failed: %v", conn.RemoteAddr(), err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends message to every connected client. It returns false once the hub has stopped.
func (h *Hub) Broadcast(message []byte) bool {
	select {
	case h.broadcast <- message:
		return true
	case <-h.done:
		return false
	}
}

// BroadcastJSON serializes v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) error {
	message, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding broadcast: %w", err)
	}
	if !h.Broadcast(message) {
		return ErrStopped
	}
	return nil
}

// WaitForClient blocks until at least one client is connected.
func (h *Hub) WaitForClient(ctx context.Context) error {
	for {
		if h.ClientCount() > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.done:
			return ErrStopped
		case <-h.joined:
		}
	}
}

// Replay broadcasts the timeline in order, one snapshot every interval. A zero interval sends
// them back to back. It returns ctx.Err() if cancelled mid-way.
func (h *Hub) Replay(ctx context.Context, timeline []sim.Snapshot, interval time.Duration) error {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for i := range timeline {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.BroadcastJSON(&timeline[i]); err != nil {
			return err
		}
	}
	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWs upgrades the request and registers the connection. Clients only receive; the read loop
// exists to notice disconnects.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("stream: websocket upgrade failed: %v", err)
		return
	}
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				select {
				case h.unregister <- conn:
				case <-h.done:
				}
				return
			}
		}
	}()
}
