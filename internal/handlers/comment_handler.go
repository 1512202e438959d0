package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
)

// CommentHandler handles comments, replies and comment likes.
type CommentHandler struct {
	content Content
}

func NewCommentHandler(content Content) *CommentHandler {
	return &CommentHandler{content: content}
}

func (h *CommentHandler) RegisterCommentRoutes(g *echo.Group) {
	g.POST("/posts/:id/comments", h.AddComment)
	g.POST("/comments/:id/like", h.ToggleLike)
}

func (h *CommentHandler) RegisterPublicRoutes(g *echo.Group) {
	g.GET("/posts/:id/comments", h.ListComments)
}

// AddComment comments on a post, or replies when parentId is set.
func (h *CommentHandler) AddComment(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	postID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req models.CreateCommentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	comment, err := h.content.AddComment(c.Request().Context(), userID, postID, &req)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusCreated, comment)
}

func (h *CommentHandler) ListComments(c echo.Context) error {
	postID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	page, limit := pagination(c)

	comments, total, err := h.content.Comments(c.Request().Context(), viewerFrom(c), postID, page, limit)
	if err != nil {
		return httpError(c, err)
	}
	return paged(c, "comments", comments, len(comments), page, limit, total)
}

func (h *CommentHandler) ToggleLike(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	commentID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	result, err := h.content.ToggleCommentLike(c.Request().Context(), userID, commentID)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, result)
}
