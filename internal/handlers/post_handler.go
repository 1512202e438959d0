package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/services"
)

// Content is the content service as seen by HTTP.
type Content interface {
	CreatePost(ctx context.Context, authorID primitive.ObjectID, req *models.CreatePostRequest) (*models.Post, error)
	Feed(ctx context.Context, viewerID primitive.ObjectID, page, limit int) ([]services.FeedItem, error)
	GetPost(ctx context.Context, viewerID *primitive.ObjectID, postID primitive.ObjectID) (*services.FeedItem, error)
	AuthorPosts(ctx context.Context, viewerID *primitive.ObjectID, authorID primitive.ObjectID, page, limit int) ([]services.FeedItem, int64, error)
	TogglePostLike(ctx context.Context, userID, postID primitive.ObjectID) (*models.LikeResult, error)
	ToggleCommentLike(ctx context.Context, userID, commentID primitive.ObjectID) (*models.LikeResult, error)
	AddComment(ctx context.Context, userID, postID primitive.ObjectID, req *models.CreateCommentRequest) (*models.Comment, error)
	Comments(ctx context.Context, viewerID *primitive.ObjectID, postID primitive.ObjectID, page, limit int) ([]models.Comment, int64, error)
}

// PostHandler handles HTTP requests related to posts
type PostHandler struct {
	content Content
}

// NewPostHandler creates a new PostHandler
func NewPostHandler(content Content) *PostHandler {
	return &PostHandler{content: content}
}

// RegisterPostRoutes registers the authenticated post routes.
func (h *PostHandler) RegisterPostRoutes(g *echo.Group) {
	g.POST("/posts", h.CreatePost)
	g.POST("/posts/:id/like", h.ToggleLike)
}

// RegisterPublicRoutes registers post reads; visibility decides what an
// anonymous caller sees.
func (h *PostHandler) RegisterPublicRoutes(g *echo.Group) {
	g.GET("/posts/:id", h.GetPost)
	g.GET("/users/:id/posts", h.AuthorPosts)
}

// CreatePost creates a new post and announces it to connected clients.
func (h *PostHandler) CreatePost(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req models.CreatePostRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	post, err := h.content.CreatePost(c.Request().Context(), userID, &req)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusCreated, post)
}

// GetPost retrieves a post by ID
func (h *PostHandler) GetPost(c echo.Context) error {
	postID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	item, err := h.content.GetPost(c.Request().Context(), viewerFrom(c), postID)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, item)
}

func (h *PostHandler) AuthorPosts(c echo.Context) error {
	authorID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	page, limit := pagination(c)

	items, total, err := h.content.AuthorPosts(c.Request().Context(), viewerFrom(c), authorID, page, limit)
	if err != nil {
		return httpError(c, err)
	}
	return paged(c, "posts", items, len(items), page, limit, total)
}

func (h *PostHandler) ToggleLike(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	postID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	result, err := h.content.TogglePostLike(c.Request().Context(), userID, postID)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, result)
}
