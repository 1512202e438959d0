package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/services"
	"github.com/anonto42/nano-midea/socialgraph/internal/storage"
)

const mediaField = "media"

// Conversations is the conversation service as seen by HTTP.
type Conversations interface {
	Send(ctx context.Context, senderID primitive.ObjectID, in services.SendInput) (*models.Message, error)
	React(ctx context.Context, userID, messageID primitive.ObjectID, emoji string) (*models.Message, error)
	Delete(ctx context.Context, userID, messageID primitive.ObjectID) error
	History(ctx context.Context, userID, otherID primitive.ObjectID, page, limit int) ([]models.Message, int64, error)
}

// MessageHandler handles direct messages.
type MessageHandler struct {
	conversations Conversations
}

func NewMessageHandler(conversations Conversations) *MessageHandler {
	return &MessageHandler{conversations: conversations}
}

func (h *MessageHandler) RegisterMessageRoutes(g *echo.Group) {
	g.POST("/messages", h.Send)
	g.POST("/messages/:id/react", h.React)
	g.DELETE("/messages/:id", h.Delete)
	g.GET("/messages/:userId", h.History)
}

// Send accepts a multipart form with recipientId, content, replyToId and an
// optional media file.
func (h *MessageHandler) Send(c echo.Context) error {
	senderID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req models.SendMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	in := services.SendInput{Content: req.Content}
	in.RecipientID, _ = primitive.ObjectIDFromHex(req.RecipientID)
	if req.ReplyToID != "" {
		replyTo, _ := primitive.ObjectIDFromHex(req.ReplyToID)
		in.ReplyToID = &replyTo
	}

	if fh, err := c.FormFile(mediaField); err == nil {
		file, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Unreadable media file")
		}
		defer file.Close()
		in.Media = &storage.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        file,
		}
	} else if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid multipart form")
	}

	msg, err := h.conversations.Send(c.Request().Context(), senderID, in)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusCreated, msg)
}

func (h *MessageHandler) React(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	messageID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req models.ReactRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	msg, err := h.conversations.React(c.Request().Context(), userID, messageID, req.Emoji)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, msg)
}

func (h *MessageHandler) Delete(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	messageID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	if err := h.conversations.Delete(c.Request().Context(), userID, messageID); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// History returns the conversation with :userId, newest first.
func (h *MessageHandler) History(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	otherID, err := pathID(c, "userId")
	if err != nil {
		return err
	}
	page, limit := pagination(c)

	msgs, total, err := h.conversations.History(c.Request().Context(), userID, otherID, page, limit)
	if err != nil {
		return httpError(c, err)
	}
	return paged(c, "messages", msgs, len(msgs), page, limit, total)
}
