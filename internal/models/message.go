package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message belongs to the unordered pair {SenderID, RecipientID}.
type Message struct {
	ID              primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	ConversationKey string              `json:"-" bson:"conversation_key"`
	SenderID        primitive.ObjectID  `json:"senderId" bson:"sender_id"`
	RecipientID     primitive.ObjectID  `json:"recipientId" bson:"recipient_id"`
	Content         string              `json:"content,omitempty" bson:"content,omitempty"`
	MediaURL        string              `json:"media,omitempty" bson:"media_url,omitempty"`
	ReplyTo         *primitive.ObjectID `json:"replyTo,omitempty" bson:"reply_to,omitempty"`
	Reactions       []Reaction          `json:"reactions" bson:"reactions"`
	CreatedAt       time.Time           `json:"createdAt" bson:"created_at"`
}

// Reaction holds at most one entry per user on a message.
type Reaction struct {
	UserID    primitive.ObjectID `json:"userId" bson:"user_id"`
	Emoji     string             `json:"emoji" bson:"emoji"`
	CreatedAt time.Time          `json:"createdAt" bson:"created_at"`
}

// ConversationKey is the same for (a, b) and (b, a).
func ConversationKey(a, b primitive.ObjectID) string {
	x, y := a.Hex(), b.Hex()
	if x > y {
		x, y = y, x
	}
	return x + ":" + y
}

func (m *Message) HasParticipant(id primitive.ObjectID) bool {
	return m.SenderID == id || m.RecipientID == id
}

// ToggleReaction applies the reaction toggle in memory: the same emoji again
// removes it, a different emoji replaces the user's entry, otherwise it is appended.
func (m *Message) ToggleReaction(userID primitive.ObjectID, emoji string, now time.Time) {
	kept := m.Reactions[:0:0]
	same := false
	for _, r := range m.Reactions {
		if r.UserID != userID {
			kept = append(kept, r)
			continue
		}
		if r.Emoji == emoji {
			same = true
		}
	}
	if !same {
		kept = append(kept, Reaction{UserID: userID, Emoji: emoji, CreatedAt: now})
	}
	m.Reactions = kept
}

type SendMessageRequest struct {
	RecipientID string `form:"recipientId" validate:"required,objectid"`
	Content     string `form:"content" validate:"max=4000"`
	ReplyToID   string `form:"replyToId" validate:"omitempty,objectid"`
}

type ReactRequest struct {
	Emoji string `json:"emoji" validate:"required,max=32"`
}

// MessageDeletedEvent is the payload of messageDeleted.
type MessageDeletedEvent struct {
	MessageID primitive.ObjectID `json:"messageId"`
}

// MessageReactionEvent is the payload of messageReaction.
type MessageReactionEvent struct {
	MessageID primitive.ObjectID `json:"messageId"`
	Reactions []Reaction         `json:"reactions"`
}
