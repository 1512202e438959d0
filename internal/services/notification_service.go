package services

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/realtime"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
	"github.com/anonto42/nano-midea/socialgraph/pkg/logger"
)

// Emission describes one notification to create.
type Emission struct {
	Type      models.NotificationType
	Recipient primitive.ObjectID
	Sender    *primitive.ObjectID
	Refs      models.NotificationRefs
}

// Notifier is what graph, content and conversation code uses to notify users.
type Notifier interface {
	// Emit persists and pushes a notification. It returns nil, nil when the
	// emission is suppressed because the recipient is the sender.
	Emit(ctx context.Context, e Emission) (*models.Notification, error)
}

// NotificationService persists notifications and pushes them to the recipient.
type NotificationService struct {
	notifications repositories.NotificationRepository
	users         repositories.UserRepository
	publisher     realtime.Publisher
	log           *zap.Logger
}

func NewNotificationService(notifications repositories.NotificationRepository, users repositories.UserRepository, publisher realtime.Publisher) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		users:         users,
		publisher:     publisher,
		log:           logger.Named("notifications"),
	}
}

func (s *NotificationService) Emit(ctx context.Context, e Emission) (*models.Notification, error) {
	if !e.Type.Valid() {
		return nil, ErrInvalidNotifyType
	}
	if e.Sender != nil && *e.Sender == e.Recipient {
		return nil, nil
	}

	n := &models.Notification{
		RecipientID:      e.Recipient,
		SenderID:         e.Sender,
		Type:             e.Type,
		NotificationRefs: e.Refs,
	}
	if err := s.notifications.CreateNotification(ctx, n); err != nil {
		return nil, err
	}

	enriched := models.EnrichedNotification{Notification: *n}
	if e.Sender != nil {
		if sender, err := s.users.GetUserByID(ctx, *e.Sender); err == nil {
			compact := sender.ToCompact()
			enriched.Sender = &compact
		}
	}
	s.publisher.Publish(ctx, e.Recipient.Hex(), realtime.EventNewNotification, enriched)
	return n, nil
}

// emitQuietly is used after a state change has already committed: the
// notification is best effort and its failure must not undo or fail the action.
func emitQuietly(ctx context.Context, n Notifier, log *zap.Logger, e Emission) {
	if _, err := n.Emit(ctx, e); err != nil {
		log.Warn("notification not persisted",
			zap.String("type", string(e.Type)),
			zap.String("recipient_id", e.Recipient.Hex()),
			zap.Error(err))
	}
}

// List returns a page of the user's notifications, newest first, with sender details.
func (s *NotificationService) List(ctx context.Context, userID primitive.ObjectID, page, limit int) ([]models.EnrichedNotification, int64, error) {
	notifications, total, err := s.notifications.GetByRecipientID(ctx, userID, page, limit)
	if err != nil {
		return nil, 0, err
	}

	var senderIDs []primitive.ObjectID
	seen := make(map[primitive.ObjectID]bool)
	for _, n := range notifications {
		if n.SenderID != nil && !seen[*n.SenderID] {
			seen[*n.SenderID] = true
			senderIDs = append(senderIDs, *n.SenderID)
		}
	}
	senders := make(map[primitive.ObjectID]models.UserCompact, len(senderIDs))
	if len(senderIDs) > 0 {
		users, err := s.users.GetUsersByIDs(ctx, senderIDs)
		if err != nil {
			return nil, 0, err
		}
		for i := range users {
			senders[users[i].ID] = users[i].ToCompact()
		}
	}

	enriched := make([]models.EnrichedNotification, len(notifications))
	for i, n := range notifications {
		enriched[i] = models.EnrichedNotification{Notification: n}
		if n.SenderID != nil {
			if sender, ok := senders[*n.SenderID]; ok {
				enriched[i].Sender = &sender
			}
		}
	}
	return enriched, total, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return s.notifications.GetUnreadCount(ctx, userID)
}

// MarkRead marks one of the user's own notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID primitive.ObjectID) error {
	err := s.notifications.MarkAsRead(ctx, notificationID, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrNotificationGone
	}
	return err
}

// MarkAllRead marks every unread notification of the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return s.notifications.MarkAllAsRead(ctx, userID)
}
