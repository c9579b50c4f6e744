package webview

import (
	"log/slog"
	"sync"
	"time"

	"swotrace/internal/stream"
)

// DefaultBacklog is the number of recent lines replayed to new clients.
const DefaultBacklog = 200

// Line is one emitted channel line as sent to websocket clients.
type Line struct {
	Channel uint8     `json:"channel"`
	Text    string    `json:"text"`
	Time    time.Time `json:"time"`
}

// Client represents a single websocket connection.
type Client struct {
	ID string
	// Channels limits delivery to the listed channels. Empty means all.
	Channels map[uint8]bool
	Send     chan Line
	Done     chan struct{}
}

func (c *Client) wants(channel uint8) bool {
	return len(c.Channels) == 0 || c.Channels[channel]
}

// Hub fans lines out to websocket clients and keeps a short backlog.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	backlog []Line
	limit   int
	now     func() time.Time
}

// NewHub creates a hub that remembers the last backlog lines.
func NewHub(backlog int) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		limit:   backlog,
		now:     time.Now,
	}
}

// RegisterClient registers a client and queues the backlog for it. Lines
// that do not fit into the client's Send channel are skipped.
func (h *Hub) RegisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, line := range h.backlog {
		if !client.wants(line.Channel) {
			continue
		}
		select {
		case client.Send <- line:
		default:
		}
	}
	h.clients[client.ID] = client
	slog.Info("Web client registered", "clientID", client.ID)
}

// UnregisterClient removes a client from the hub.
// The client's Done channel is closed by the handler that created the client.
func (h *Hub) UnregisterClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[clientID]; ok {
		delete(h.clients, clientID)
		slog.Info("Web client unregistered", "clientID", clientID)
	}
}

// Broadcast delivers line to all interested clients without blocking.
func (h *Hub) Broadcast(line Line) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.limit > 0 {
		if len(h.backlog) == h.limit {
			copy(h.backlog, h.backlog[1:])
			h.backlog = h.backlog[:len(h.backlog)-1]
		}
		h.backlog = append(h.backlog, line)
	}

	for _, client := range h.clients {
		if !client.wants(line.Channel) {
			continue
		}
		select {
		case client.Send <- line:
		case <-client.Done:
			// Client disconnected
		default:
			slog.Warn("Web client channel full, dropping line", "clientID", client.ID, "channel", line.Channel)
		}
	}
}

// Backlog returns a copy of the remembered lines, oldest first.
func (h *Hub) Backlog() []Line {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Line(nil), h.backlog...)
}

// Sink returns a stream sink that broadcasts the lines of channel.
func (h *Hub) Sink(channel uint8) stream.Sink {
	return stream.SinkFunc(func(text string) error {
		h.Broadcast(Line{Channel: channel, Text: text, Time: h.now().UTC()})
		return nil
	})
}
