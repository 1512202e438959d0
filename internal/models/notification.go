package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationType string

const (
	NotificationLike          NotificationType = "like"
	NotificationComment       NotificationType = "comment"
	NotificationReply         NotificationType = "reply"
	NotificationFollow        NotificationType = "follow"
	NotificationFollowRequest NotificationType = "follow_request"
	NotificationSystem        NotificationType = "system"
	NotificationPortalInvite  NotificationType = "portal_invite"
	NotificationMessage       NotificationType = "message"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationLike, NotificationComment, NotificationReply, NotificationFollow,
		NotificationFollowRequest, NotificationSystem, NotificationPortalInvite, NotificationMessage:
		return true
	}
	return false
}

// NotificationRefs points at whatever triggered the notification.
type NotificationRefs struct {
	PostID    *primitive.ObjectID `json:"postId,omitempty" bson:"post_id,omitempty"`
	CommentID *primitive.ObjectID `json:"commentId,omitempty" bson:"comment_id,omitempty"`
	MessageID *primitive.ObjectID `json:"messageId,omitempty" bson:"message_id,omitempty"`
	PortalID  string              `json:"portalId,omitempty" bson:"portal_id,omitempty"`
}

// Notification is immutable apart from Read.
type Notification struct {
	ID               primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	RecipientID      primitive.ObjectID  `json:"recipientId" bson:"recipient_id"`
	SenderID         *primitive.ObjectID `json:"senderId,omitempty" bson:"sender_id,omitempty"`
	Type             NotificationType    `json:"type" bson:"type"`
	NotificationRefs `bson:",inline"`
	Read             bool      `json:"read" bson:"read"`
	CreatedAt        time.Time `json:"createdAt" bson:"created_at"`
}

// EnrichedNotification includes sender info
type EnrichedNotification struct {
	Notification
	Sender *UserCompact `json:"sender,omitempty"`
}
