package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Client is one live connection.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string // guarded by hub.mu

	authUserID string
	relay      Publisher
	typing     *rate.Limiter
	log        *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// Options configures a served connection.
type Options struct {
	// AuthUserID is the identity proven at upgrade time. Empty means the
	// connection may receive broadcasts but cannot join or send typing events.
	AuthUserID string
	// Relay routes typing indicators. Defaults to the hub itself.
	Relay Publisher
	// TypingPerSecond throttles typing relays per connection. Zero disables
	// throttling.
	TypingPerSecond float64
}

func newClient(h *Hub, conn *websocket.Conn, opts Options) *Client {
	relay := opts.Relay
	if relay == nil {
		relay = h
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.TypingPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.TypingPerSecond), 1)
	}
	id := uuid.NewString()
	return &Client{
		id:         id,
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		authUserID: opts.AuthUserID,
		relay:      relay,
		typing:     limiter,
		log:        h.log.With(zap.String("conn_id", id)),
		done:       make(chan struct{}),
	}
}

func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) reply(event string, payload any) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return
	}
	c.enqueue(frame)
}

func (c *Client) replyError(message string) {
	c.reply(EventError, map[string]string{"message": message})
}

// Serve runs conn until it closes. It blocks, so callers invoke it from the
// upgrading handler.
func (h *Hub) Serve(conn *websocket.Conn, opts Options) {
	c := newClient(h, conn, opts)
	h.attach(c)
	if c.authUserID != "" {
		h.Register(c, c.authUserID)
	}
	c.log.Debug("connection opened", zap.String("user_id", c.authUserID))

	c.reply(EventConnected, map[string]any{
		"connectionId": c.id,
		"userId":       c.authUserID,
	})

	go c.writePump()
	c.readPump()

	wentOffline := h.Deregister(c)
	c.close()
	c.log.Debug("connection closed", zap.Bool("went_offline", wentOffline))
}

func (c *Client) readPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handle(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("websocket write failed", zap.Error(err))
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

type joinPayload struct {
	UserID string `json:"userId"`
}

type typingPayload struct {
	RecipientID string `json:"recipientId"`
	IsTyping    bool   `json:"isTyping"`
}

func (c *Client) handle(message []byte) {
	var in Frame
	if err := json.Unmarshal(message, &in); err != nil {
		c.replyError("malformed frame")
		return
	}

	switch in.Event {
	case ClientPing:
		c.reply("pong", map[string]int64{"ts": time.Now().UnixMilli()})

	case ClientJoin:
		var p joinPayload
		if err := json.Unmarshal(in.Data, &p); err != nil || p.UserID == "" {
			c.replyError("join requires userId")
			return
		}
		if c.authUserID == "" {
			c.replyError("authentication required")
			return
		}
		if p.UserID != c.authUserID {
			c.replyError("cannot join another identity")
			return
		}
		c.hub.Register(c, p.UserID)
		c.reply(EventJoined, joinPayload{UserID: p.UserID})

	case ClientTyping:
		sender := c.hub.UserOf(c)
		if sender == "" {
			c.replyError("join before sending typing events")
			return
		}
		var p typingPayload
		if err := json.Unmarshal(in.Data, &p); err != nil || p.RecipientID == "" {
			c.replyError("typing requires recipientId")
			return
		}
		if !c.typing.Allow() {
			return
		}
		c.relay.Publish(context.Background(), p.RecipientID, EventTyping, TypingEvent{
			SenderID: sender,
			IsTyping: p.IsTyping,
		})

	default:
		c.replyError("unknown event")
	}
}
