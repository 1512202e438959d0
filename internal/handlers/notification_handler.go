package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
)

const groupedWindow = 50

// Notifications is the notification service as seen by HTTP.
type Notifications interface {
	List(ctx context.Context, userID primitive.ObjectID, page, limit int) ([]models.EnrichedNotification, int64, error)
	UnreadCount(ctx context.Context, userID primitive.ObjectID) (int64, error)
	MarkRead(ctx context.Context, userID, notificationID primitive.ObjectID) error
	MarkAllRead(ctx context.Context, userID primitive.ObjectID) (int64, error)
}

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	notifications Notifications
	now           func() time.Time
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notifications Notifications) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, now: time.Now}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.GET("/notifications/grouped", h.GetGroupedNotifications)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.PUT("/notifications/read", h.MarkAllAsRead)
	g.PUT("/notifications/:id/read", h.MarkAsRead)
}

// GetNotifications returns the caller's notifications, newest first.
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	page, limit := pagination(c)

	items, total, err := h.notifications.List(c.Request().Context(), userID, page, limit)
	if err != nil {
		return httpError(c, err)
	}
	return paged(c, "notifications", items, len(items), page, limit, total)
}

// GetGroupedNotifications buckets the most recent notifications by age.
func (h *NotificationHandler) GetGroupedNotifications(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	items, _, err := h.notifications.List(ctx, userID, 1, groupedWindow)
	if err != nil {
		return httpError(c, err)
	}
	unread, err := h.notifications.UnreadCount(ctx, userID)
	if err != nil {
		return httpError(c, err)
	}

	now := h.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := today.AddDate(0, 0, -1)
	weekAgo := today.AddDate(0, 0, -7)

	groups := map[string][]models.EnrichedNotification{
		"today":     {},
		"yesterday": {},
		"thisWeek":  {},
		"older":     {},
	}
	for _, n := range items {
		switch at := n.CreatedAt.In(now.Location()); {
		case !at.Before(today):
			groups["today"] = append(groups["today"], n)
		case !at.Before(yesterday):
			groups["yesterday"] = append(groups["yesterday"], n)
		case !at.Before(weekAgo):
			groups["thisWeek"] = append(groups["thisWeek"], n)
		default:
			groups["older"] = append(groups["older"], n)
		}
	}

	return success(c, http.StatusOK, echo.Map{
		"notifications": groups,
		"unreadCount":   unread,
	})
}

// GetUnreadCount returns the unread notification count
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	count, err := h.notifications.UnreadCount(c.Request().Context(), userID)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, echo.Map{"count": count})
}

// MarkAsRead marks one of the caller's notifications as read
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	notificationID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	if err := h.notifications.MarkRead(c.Request().Context(), userID, notificationID); err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, echo.Map{"success": true})
}

// MarkAllAsRead marks all notifications as read
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	updated, err := h.notifications.MarkAllRead(c.Request().Context(), userID)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, echo.Map{"updated": updated})
}
