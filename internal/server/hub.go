package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"quant-trader/internal/logger"
	"quant-trader/internal/monitoring"
	"quant-trader/internal/types"
)

// Hub fans envelopes out to every connected websocket client. Producers hand
// envelopes to a buffered channel; a single Run goroutine performs the
// writes, so no producer ever touches a connection.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	events  chan types.Envelope
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		events:  make(chan types.Envelope, 256),
	}
}

// Run consumes the event channel until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case env := <-h.events:
			h.fanout(ctx, env)
		}
	}
}

// Broadcast enqueues an envelope without blocking. Full buffers drop the
// envelope; clients resync from the snapshot endpoints.
func (h *Hub) Broadcast(env types.Envelope) {
	select {
	case h.events <- env:
	default:
		monitoring.RecordError("broadcast_dropped")
	}
}

func (h *Hub) fanout(ctx context.Context, env types.Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		logger.Warn(ctx, "Envelope marshal failed", "type", env.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
			client.Close()
			delete(h.clients, client)
		}
	}
}

func (h *Hub) register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[conn] {
		delete(h.clients, conn)
		conn.Close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
