package ws

import (
	"log/slog"
	"sync"

	"github.com/sohyunkim/geurim/backend/internal/metrics"
	"github.com/sohyunkim/geurim/backend/internal/protocol"
	"github.com/sohyunkim/geurim/backend/internal/ratelimit"
)

// Hub is the connection registry. All protocol events funnel through its
// single Run loop, so every room mutation and its fan-out complete before
// the next event starts; the handlers themselves need no locking.
type Hub struct {
	// Live connections by id
	clients map[string]*Client

	// Register requests from new connections
	register chan *Client

	// Unregister requests from closing connections
	unregister chan *Client

	// Decoded frames waiting for dispatch
	inbound chan inboundFrame

	limiters *ratelimit.PerConn
	log      *slog.Logger

	// Guards clients: the stats API reads counts from HTTP goroutines.
	mu sync.RWMutex
}

type inboundFrame struct {
	client *Client
	data   []byte
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame, 256),
		limiters:   ratelimit.NewPerConn(messagesPerSecond, messageBurst),
		log:        log,
	}
}

// Session implements protocol.Directory.
func (h *Hub) Session(id string) (protocol.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[id]
	if !ok {
		return nil, false
	}
	return c, true
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run processes registry changes and inbound frames one at a time.
// Membership removal happens here, synchronously with the disconnect, so
// the registry and the room store never disagree.
func (h *Hub) Run(router *protocol.Router) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			count := len(h.clients)
			h.mu.Unlock()

			metrics.ConnectionsTotal.Inc()
			metrics.ActiveClients.Set(float64(count))
			h.log.Info("client connected", "conn", client.id, "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			_, known := h.clients[client.id]
			if known {
				delete(h.clients, client.id)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()

			if !known {
				continue
			}
			router.Disconnect(client)
			h.limiters.Remove(client.id)

			metrics.ActiveClients.Set(float64(count))
			h.log.Info("client disconnected", "conn", client.id, "clients", count)

		case frame := <-h.inbound:
			// Frames queue in a buffered channel, so a client's
			// unregister can be selected before its last frames.
			// Dispatching those would send on the closed send channel
			// and re-add the dead connection to the room store, with
			// no disconnect ever coming to clean it up. Drop them.
			h.mu.RLock()
			_, known := h.clients[frame.client.id]
			h.mu.RUnlock()
			if !known {
				continue
			}
			router.Dispatch(frame.client, frame.data)
		}
	}
}
