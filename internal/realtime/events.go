package realtime

import (
	"context"
	"encoding/json"
)

// Server to client event names.
const (
	EventConnected       = "connected"
	EventError           = "error"
	EventNewNotification = "newNotification"
	EventNewMessage      = "newMessage"
	EventMessageSent     = "messageSent"
	EventMessageDeleted  = "messageDeleted"
	EventMessageReaction = "messageReaction"
	EventNewPost         = "newPost"
	EventRequestAccepted = "requestAccepted"
	EventTyping          = "typing"
	EventJoined          = "joined"
)

// Client to server event names.
const (
	ClientJoin   = "join"
	ClientTyping = "typing"
	ClientPing   = "ping"
)

// Frame is the wire shape in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// TypingEvent is relayed to the recipient of a typing indicator.
type TypingEvent struct {
	SenderID string `json:"senderId"`
	IsTyping bool   `json:"isTyping"`
}

// Publisher delivers events to identities. Implementations never block the
// caller on network I/O and never report delivery failure: an offline user
// simply receives nothing.
type Publisher interface {
	Publish(ctx context.Context, userID, event string, payload any)
	Broadcast(ctx context.Context, event string, payload any)
}

// Presence answers whether an identity has a live connection here.
type Presence interface {
	IsOnline(userID string) bool
}

func encodeFrame(event string, payload any) ([]byte, error) {
	return json.Marshal(outboundFrame{Event: event, Data: payload})
}
