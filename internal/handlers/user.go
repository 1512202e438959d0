package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/services"
)

// Accounts is the account service as seen by HTTP.
type Accounts interface {
	Profile(ctx context.Context, viewerID *primitive.ObjectID, userID primitive.ObjectID) (*models.Profile, error)
	SetPrivacy(ctx context.Context, userID primitive.ObjectID, private bool) (*models.User, error)
	DeleteAccount(ctx context.Context, userID primitive.ObjectID) (*services.DeletionReport, error)
}

// UserHandler handles profile and account requests
type UserHandler struct {
	accounts Accounts
}

func NewUserHandler(accounts Accounts) *UserHandler {
	return &UserHandler{accounts: accounts}
}

// RegisterProfileRoutes registers routes that act on the caller's own account.
func (h *UserHandler) RegisterProfileRoutes(g *echo.Group) {
	g.GET("/users/me", h.Me)
	g.PUT("/users/me/privacy", h.UpdatePrivacy)
	g.DELETE("/users/me", h.DeleteAccount)
}

// RegisterPublicRoutes registers profile reads open to anonymous callers.
func (h *UserHandler) RegisterPublicRoutes(g *echo.Group) {
	g.GET("/users/:id", h.GetProfile)
}

func (h *UserHandler) Me(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	profile, err := h.accounts.Profile(c.Request().Context(), nil, userID)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, profile)
}

// GetProfile returns a user with the caller's relationship flags.
func (h *UserHandler) GetProfile(c echo.Context) error {
	userID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	profile, err := h.accounts.Profile(c.Request().Context(), viewerFrom(c), userID)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, profile)
}

func (h *UserHandler) UpdatePrivacy(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req models.UpdatePrivacyRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.accounts.SetPrivacy(c.Request().Context(), userID, *req.IsPrivate)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, user)
}

// DeleteAccount removes the caller and every reference to them.
func (h *UserHandler) DeleteAccount(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	report, err := h.accounts.DeleteAccount(c.Request().Context(), userID)
	if err != nil {
		return httpError(c, err)
	}
	return success(c, http.StatusOK, report)
}
