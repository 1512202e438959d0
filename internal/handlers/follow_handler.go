package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
)

// FollowGraph is the follow service as seen by HTTP.
type FollowGraph interface {
	ToggleFollow(ctx context.Context, viewerID, targetID primitive.ObjectID) (*models.FollowStatus, error)
	Status(ctx context.Context, viewerID, targetID primitive.ObjectID) (*models.FollowStatus, error)
	AcceptRequest(ctx context.Context, ownerID, requesterID primitive.ObjectID) error
	DeclineRequest(ctx context.Context, ownerID, requesterID primitive.ObjectID) error
	RemoveFollower(ctx context.Context, ownerID, followerID primitive.ObjectID) error
	Followers(ctx context.Context, viewerID *primitive.ObjectID, userID primitive.ObjectID, page, limit int) ([]models.UserCompact, int, error)
	Following(ctx context.Context, viewerID *primitive.ObjectID, userID primitive.ObjectID, page, limit int) ([]models.UserCompact, int, error)
	PendingRequests(ctx context.Context, ownerID primitive.ObjectID, page, limit int) ([]models.UserCompact, int, error)
}

// FollowHandler handles follow-related HTTP requests
type FollowHandler struct {
	follows FollowGraph
}

func NewFollowHandler(follows FollowGraph) *FollowHandler {
	return &FollowHandler{follows: follows}
}

// RegisterFollowRoutes registers the authenticated follow routes.
func (h *FollowHandler) RegisterFollowRoutes(g *echo.Group) {
	g.GET("/follow/requests", h.PendingRequests)
	g.POST("/follow/:targetId", h.ToggleFollow)
	g.GET("/follow/:targetId", h.Status)
	g.POST("/follow/:targetId/accept", h.Accept)
	g.POST("/follow/:targetId/decline", h.Decline)
	g.DELETE("/followers/:followerId", h.RemoveFollower)
}

// RegisterGraphRoutes registers the follower lists, which anonymous callers may read.
func (h *FollowHandler) RegisterGraphRoutes(g *echo.Group) {
	g.GET("/users/:id/followers", h.Followers)
	g.GET("/users/:id/following", h.Following)
}

// ToggleFollow follows, unfollows, requests or cancels depending on the
// current relationship and the target's privacy.
func (h *FollowHandler) ToggleFollow(c echo.Context) error {
	viewerID, err := currentUser(c)
	if err != nil {
		return err
	}
	targetID, err := pathID(c, "targetId")
	if err != nil {
		return err
	}

	status, err := h.follows.ToggleFollow(c.Request().Context(), viewerID, targetID)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, status)
}

func (h *FollowHandler) Status(c echo.Context) error {
	viewerID, err := currentUser(c)
	if err != nil {
		return err
	}
	targetID, err := pathID(c, "targetId")
	if err != nil {
		return err
	}

	status, err := h.follows.Status(c.Request().Context(), viewerID, targetID)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, status)
}

// Accept approves the pending request from :targetId.
func (h *FollowHandler) Accept(c echo.Context) error {
	ownerID, err := currentUser(c)
	if err != nil {
		return err
	}
	requesterID, err := pathID(c, "targetId")
	if err != nil {
		return err
	}

	if err := h.follows.AcceptRequest(c.Request().Context(), ownerID, requesterID); err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, echo.Map{"accepted": true})
}

// Decline drops the pending request from :targetId.
func (h *FollowHandler) Decline(c echo.Context) error {
	ownerID, err := currentUser(c)
	if err != nil {
		return err
	}
	requesterID, err := pathID(c, "targetId")
	if err != nil {
		return err
	}

	if err := h.follows.DeclineRequest(c.Request().Context(), ownerID, requesterID); err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, echo.Map{"declined": true})
}

func (h *FollowHandler) RemoveFollower(c echo.Context) error {
	ownerID, err := currentUser(c)
	if err != nil {
		return err
	}
	followerID, err := pathID(c, "followerId")
	if err != nil {
		return err
	}

	if err := h.follows.RemoveFollower(c.Request().Context(), ownerID, followerID); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *FollowHandler) PendingRequests(c echo.Context) error {
	ownerID, err := currentUser(c)
	if err != nil {
		return err
	}
	page, limit := pagination(c)

	users, total, err := h.follows.PendingRequests(c.Request().Context(), ownerID, page, limit)
	if err != nil {
		return httpError(c, err)
	}
	return paged(c, "users", users, len(users), page, limit, int64(total))
}

func (h *FollowHandler) Followers(c echo.Context) error {
	return h.graphList(c, h.follows.Followers)
}

func (h *FollowHandler) Following(c echo.Context) error {
	return h.graphList(c, h.follows.Following)
}

type graphLister func(ctx context.Context, viewerID *primitive.ObjectID, userID primitive.ObjectID, page, limit int) ([]models.UserCompact, int, error)

func (h *FollowHandler) graphList(c echo.Context, list graphLister) error {
	userID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	page, limit := pagination(c)

	users, total, err := list(c.Request().Context(), viewerFrom(c), userID, page, limit)
	if err != nil {
		return httpError(c, err)
	}
	return paged(c, "users", users, len(users), page, limit, int64(total))
}
