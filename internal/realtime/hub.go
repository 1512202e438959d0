package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/anonto42/nano-midea/socialgraph/pkg/logger"
)

// Hub maps identities to their live connections on this process.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	users   map[string]map[*Client]struct{}
	log     *zap.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		users:   make(map[string]map[*Client]struct{}),
		log:     logger.Named("realtime"),
	}
}

// attach tracks a connection for broadcasts before it has joined any identity.
func (h *Hub) attach(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Register binds c to userID. A connection belongs to at most one identity,
// so re-registering moves it.
func (h *Hub) Register(c *Client, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	if c.userID != "" && c.userID != userID {
		h.unbindLocked(c)
	}
	set, ok := h.users[userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.users[userID] = set
	}
	set[c] = struct{}{}
	c.userID = userID
}

// Deregister removes c. It reports whether c was the identity's last connection.
func (h *Hub) Deregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, c)
	return h.unbindLocked(c)
}

func (h *Hub) unbindLocked(c *Client) bool {
	if c.userID == "" {
		return false
	}
	userID := c.userID
	c.userID = ""
	set, ok := h.users[userID]
	if !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.users, userID)
		return true
	}
	return false
}

// UserOf returns the identity c is bound to, or "".
func (h *Hub) UserOf(c *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.userID
}

func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish delivers to every connection bound to userID on this process.
func (h *Hub) Publish(_ context.Context, userID, event string, payload any) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		h.log.Error("encode event", zap.String("event", event), zap.Error(err))
		return
	}
	h.deliver(userID, frame)
}

// Broadcast delivers to every connection, joined or not.
func (h *Hub) Broadcast(_ context.Context, event string, payload any) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		h.log.Error("encode event", zap.String("event", event), zap.Error(err))
		return
	}
	h.deliverAll(frame)
}

func (h *Hub) deliver(userID string, frame []byte) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	return h.enqueueAll(targets, frame)
}

func (h *Hub) deliverAll(frame []byte) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	return h.enqueueAll(targets, frame)
}

func (h *Hub) enqueueAll(targets []*Client, frame []byte) int {
	delivered := 0
	for _, c := range targets {
		if c.enqueue(frame) {
			delivered++
		} else {
			h.log.Debug("dropped frame for slow connection", zap.String("conn_id", c.id))
		}
	}
	return delivered
}
