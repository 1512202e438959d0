package handlers

import (
	"github.com/labstack/echo/v4"
)

// FeedHandler serves the home feed.
type FeedHandler struct {
	content Content
}

func NewFeedHandler(content Content) *FeedHandler {
	return &FeedHandler{content: content}
}

func (h *FeedHandler) RegisterFeedRoutes(g *echo.Group) {
	g.GET("/feed", h.GetFeed)
}

// GetFeed returns the caller's own posts and those of the accounts they
// follow, newest first.
func (h *FeedHandler) GetFeed(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	page, limit := pagination(c)

	items, err := h.content.Feed(c.Request().Context(), userID, page, limit)
	if err != nil {
		return httpError(c, err)
	}
	return paged(c, "posts", items, len(items), page, limit, -1)
}
