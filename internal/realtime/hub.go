// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
hub.go - Realtime Snapshot Hub

Adapted from the teacher's websocket hub (internal/websocket/hub.go):
same register/unregister/broadcast select loop, run as a suture service
through Serve, narrowed to one message kind (a per-website realtime
snapshot) and scoped so a client only receives broadcasts for the website
it subscribed to.
*/

package realtime

import (
	"context"
	"sort"
	"sync"

	"github.com/sparklytics/engine/internal/logging"
	"github.com/sparklytics/engine/internal/metrics"
)

// Message is the single envelope realtime clients receive.
type Message struct {
	Type    string      `json:"type"`
	Website int64       `json:"website_id"`
	Data    interface{} `json:"data"`
}

const messageTypeSnapshot = "realtime_snapshot"

// Hub maintains the set of subscribed clients and broadcasts per-website
// snapshots to the clients watching that website.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// String implements fmt.Stringer so suture can name the service in logs.
func (h *Hub) String() string { return "realtime-hub" }

// Serve implements suture.Service: it runs the register/unregister/
// broadcast loop until ctx is canceled, then closes every client.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAllClients()
			return ctx.Err()
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		case message := <-h.broadcast:
			h.broadcastToSubscribers(message)
		}
	}
}

// BroadcastSnapshot publishes a snapshot to every client watching the
// given website. Non-blocking: a full broadcast channel drops the update,
// the same degrade-gracefully behavior the teacher's hub uses.
func (h *Hub) BroadcastSnapshot(websiteID int64, data interface{}) {
	message := Message{Type: messageTypeSnapshot, Website: websiteID, Data: data}
	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Int64("website_id", websiteID).Msg("realtime broadcast channel full, dropping snapshot")
	}
}

func (h *Hub) broadcastToSubscribers(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.websiteID == message.Website {
			clients = append(clients, c)
		}
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	var toRemove []*Client
	for _, c := range clients {
		select {
		case c.send <- message:
		default:
			toRemove = append(toRemove, c)
		}
	}
	for _, c := range toRemove {
		close(c.send)
		delete(h.clients, c)
		metrics.WSConnections.Dec()
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	metrics.WSConnections.Inc()
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
	if ok {
		metrics.WSConnections.Dec()
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, c := range clients {
		close(c.send)
		delete(h.clients, c)
		metrics.WSConnections.Dec()
	}
}

// ClientCount reports the number of subscribed clients, for diagnostics.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
