// Package hub fans mutation events out to connected websocket clients.
// Events are delivery hints: a full broadcast channel drops messages rather
// than blocking a writer, and clients reconcile by pulling.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/KossiPascal/atlas-kanban/internal/logging"
)

// Message is a table event on the wire, e.g. {"event":"tasks:updated"}.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type envelope struct {
	msg    Message
	sender *websocket.Conn
}

const writeTimeout = 5 * time.Second

// Hub tracks connected clients and broadcasts messages to them. A message
// received from a client is re-broadcast to every other client; the sender
// already knows.
type Hub struct {
	log logging.Logger

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]bool

	broadcast chan envelope

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a hub and starts its broadcast loop.
func New(log logging.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		log:       log,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan envelope, 100),
		ctx:       ctx,
		cancel:    cancel,
	}
	h.wg.Add(1)
	go h.broadcastLoop()
	return h
}

// Stop closes every connection and terminates the broadcast loop.
func (h *Hub) Stop() {
	h.cancel()

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()

	h.wg.Wait()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Broadcast queues a message for every connected client. Messages are dropped
// when the channel is full.
func (h *Hub) Broadcast(msg Message) {
	h.send(envelope{msg: msg})
}

func (h *Hub) send(env envelope) {
	select {
	case h.broadcast <- env:
	case <-h.ctx.Done():
	default:
		h.log.Warn(h.ctx, "broadcast channel full, dropping message", "event", env.msg.Event)
	}
}

func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case env := <-h.broadcast:
			data, err := json.Marshal(env.msg)
			if err != nil {
				h.log.Error(h.ctx, "failed to marshal message", "error", err)
				continue
			}

			h.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				if conn != env.sender {
					clients = append(clients, conn)
				}
			}
			h.clientsMu.RUnlock()

			// Writes happen outside the lock so a slow client cannot stall
			// registration.
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					h.log.Debug(h.ctx, "failed to send to client", "error", err)
					h.removeClient(conn)
				}
			}
		}
	}
}

// Serve registers an upgraded connection and blocks reading it until the
// client disconnects. Incoming messages are re-broadcast to the other
// clients.
func (h *Hub) Serve(conn *websocket.Conn) {
	h.clientsMu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.clientsMu.Unlock()

	h.log.Info(h.ctx, "client connected", "total", count)

	defer h.removeClient(conn)

	for {
		_, data, err := conn.Read(h.ctx)
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			continue
		}
		h.send(envelope{msg: msg, sender: conn})
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, exists := h.clients[conn]; exists {
		delete(h.clients, conn)
		count := len(h.clients)
		h.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.log.Info(h.ctx, "client disconnected", "total", count)
		return
	}
	h.clientsMu.Unlock()
}
