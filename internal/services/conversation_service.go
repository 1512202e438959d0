package services

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/realtime"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
	"github.com/anonto42/nano-midea/socialgraph/internal/storage"
	"github.com/anonto42/nano-midea/socialgraph/pkg/logger"
)

const mediaFolder = "messages"

// SendInput is one outgoing message. Media is optional.
type SendInput struct {
	RecipientID primitive.ObjectID
	Content     string
	ReplyToID   *primitive.ObjectID
	Media       *storage.Upload
}

// ConversationService manages pairwise message threads.
type ConversationService struct {
	messages  repositories.MessageRepository
	users     repositories.UserRepository
	media     storage.MediaStore
	notifier  Notifier
	publisher realtime.Publisher
	presence  realtime.Presence
	log       *zap.Logger
}

// NewConversationService wires the thread manager. media may be nil, in
// which case attachments are rejected.
func NewConversationService(messages repositories.MessageRepository, users repositories.UserRepository, media storage.MediaStore, notifier Notifier, publisher realtime.Publisher, presence realtime.Presence) *ConversationService {
	return &ConversationService{
		messages:  messages,
		users:     users,
		media:     media,
		notifier:  notifier,
		publisher: publisher,
		presence:  presence,
		log:       logger.Named("conversations"),
	}
}

// Send persists a message and pushes newMessage to the recipient and
// messageSent to the sender's own sessions.
func (s *ConversationService) Send(ctx context.Context, senderID primitive.ObjectID, in SendInput) (*models.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" && in.Media == nil {
		return nil, ErrEmptyMessage
	}
	if senderID == in.RecipientID {
		return nil, ErrSelfMessage
	}
	if _, err := s.users.GetUserByID(ctx, in.RecipientID); err != nil {
		return nil, notFoundAs(err, ErrUserNotFound)
	}

	msg := &models.Message{
		SenderID:    senderID,
		RecipientID: in.RecipientID,
		Content:     content,
	}

	if in.ReplyToID != nil {
		parent, err := s.messages.GetMessageByID(ctx, *in.ReplyToID)
		if err != nil {
			return nil, notFoundAs(err, ErrInvalidReplyTo)
		}
		if parent.ConversationKey != models.ConversationKey(senderID, in.RecipientID) {
			return nil, ErrInvalidReplyTo
		}
		msg.ReplyTo = &parent.ID
	}

	if in.Media != nil {
		if s.media == nil {
			return nil, ErrMediaDisabled
		}
		url, err := s.media.Put(ctx, mediaFolder, *in.Media)
		if err != nil {
			return nil, err
		}
		msg.MediaURL = url
	}

	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, in.RecipientID.Hex(), realtime.EventNewMessage, msg)
	s.publisher.Publish(ctx, senderID.Hex(), realtime.EventMessageSent, msg)

	// Presence is this instance's hub. With the Redis backend a recipient
	// connected elsewhere still gets the notification.
	if s.presence != nil && !s.presence.IsOnline(in.RecipientID.Hex()) {
		emitQuietly(ctx, s.notifier, s.log, Emission{
			Type:      models.NotificationMessage,
			Recipient: in.RecipientID,
			Sender:    &senderID,
			Refs:      models.NotificationRefs{MessageID: &msg.ID},
		})
	}
	return msg, nil
}

func (s *ConversationService) participantMessage(ctx context.Context, userID, messageID primitive.ObjectID) (*models.Message, error) {
	msg, err := s.messages.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, notFoundAs(err, ErrMessageNotFound)
	}
	if !msg.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return msg, nil
}

// React toggles userID's reaction on a message and pushes the resulting
// reaction list to both participants.
func (s *ConversationService) React(ctx context.Context, userID, messageID primitive.ObjectID, emoji string) (*models.Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, ErrEmptyReaction
	}
	if _, err := s.participantMessage(ctx, userID, messageID); err != nil {
		return nil, err
	}

	updated, err := s.messages.ToggleReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return nil, notFoundAs(err, ErrMessageNotFound)
	}

	event := models.MessageReactionEvent{MessageID: updated.ID, Reactions: updated.Reactions}
	s.publisher.Publish(ctx, updated.SenderID.Hex(), realtime.EventMessageReaction, event)
	s.publisher.Publish(ctx, updated.RecipientID.Hex(), realtime.EventMessageReaction, event)
	return updated, nil
}

// Delete hard-deletes a message. Only its sender may do so.
func (s *ConversationService) Delete(ctx context.Context, userID, messageID primitive.ObjectID) error {
	msg, err := s.messages.GetMessageByID(ctx, messageID)
	if err != nil {
		return notFoundAs(err, ErrMessageNotFound)
	}
	if msg.SenderID != userID {
		return ErrNotMessageSender
	}
	if err := s.messages.DeleteMessage(ctx, messageID); err != nil {
		return notFoundAs(err, ErrMessageNotFound)
	}

	event := models.MessageDeletedEvent{MessageID: msg.ID}
	s.publisher.Publish(ctx, msg.SenderID.Hex(), realtime.EventMessageDeleted, event)
	s.publisher.Publish(ctx, msg.RecipientID.Hex(), realtime.EventMessageDeleted, event)
	return nil
}

// History returns a page of the conversation between userID and otherID, newest first.
func (s *ConversationService) History(ctx context.Context, userID, otherID primitive.ObjectID, page, limit int) ([]models.Message, int64, error) {
	if userID == otherID {
		return nil, 0, ErrSelfMessage
	}
	return s.messages.GetConversation(ctx, userID, otherID, page, limit)
}
