package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/nano-midea/socialgraph/internal/middleware"
	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
)

// TokenIssuer signs local session tokens.
type TokenIssuer interface {
	IssueToken(userID primitive.ObjectID) (string, error)
}

// AccountStore is what sign-up needs from the user collection.
type AccountStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByFirebaseUID(ctx context.Context, uid string) (*models.User, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	users        AccountStore
	tokens       TokenIssuer
	firebaseAuth middleware.IDTokenVerifier
}

// NewAuthHandler creates a new AuthHandler. firebaseAuth may be nil, which
// disables /firebase-login.
func NewAuthHandler(users AccountStore, tokens TokenIssuer, firebaseAuth middleware.IDTokenVerifier) *AuthHandler {
	return &AuthHandler{
		users:        users,
		tokens:       tokens,
		firebaseAuth: firebaseAuth,
	}
}

// RegisterAuthRoutes registers authentication-related routes
func (h *AuthHandler) RegisterAuthRoutes(g *echo.Group) {
	g.POST("/register", h.Register)
	g.POST("/firebase-login", h.FirebaseLogin)
}

func (h *AuthHandler) session(c echo.Context, status int, user *models.User) error {
	token, err := h.tokens.IssueToken(user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}
	return success(c, status, echo.Map{"token": token, "user": user})
}

// Register creates a local account and returns a session token.
func (h *AuthHandler) Register(c echo.Context) error {
	var req models.RegisterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user := &models.User{
		Username:    strings.ToLower(req.Username),
		DisplayName: strings.TrimSpace(req.DisplayName),
		IsPrivate:   req.IsPrivate,
	}
	if user.DisplayName == "" {
		user.DisplayName = req.Username
	}
	if err := h.users.CreateUser(c.Request().Context(), user); err != nil {
		return httpError(c, err)
	}
	return h.session(c, http.StatusCreated, user)
}

// FirebaseLogin verifies a Firebase ID token, creates the bound account on
// first use and issues a local JWT.
func (h *AuthHandler) FirebaseLogin(c echo.Context) error {
	if h.firebaseAuth == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Firebase login is not enabled")
	}

	var req models.FirebaseLoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	token, err := h.firebaseAuth.VerifyIDToken(ctx, req.IDToken)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid Firebase ID token")
	}

	user, err := h.users.GetUserByFirebaseUID(ctx, token.UID)
	if err == nil {
		return h.session(c, http.StatusOK, user)
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return httpError(c, err)
	}

	user = &models.User{
		Username:    usernameFor(req, token),
		DisplayName: req.DisplayName,
		FirebaseUID: token.UID,
	}
	if user.DisplayName == "" {
		if name, ok := token.Claims["name"].(string); ok {
			user.DisplayName = name
		} else {
			user.DisplayName = user.Username
		}
	}
	if err := h.users.CreateUser(ctx, user); err != nil {
		return httpError(c, err)
	}
	return h.session(c, http.StatusCreated, user)
}

func usernameFor(req models.FirebaseLoginRequest, token *auth.Token) string {
	if req.Username != "" {
		return strings.ToLower(req.Username)
	}
	uid := strings.ToLower(token.UID)
	if len(uid) > 12 {
		uid = uid[:12]
	}
	return "user_" + uid
}
