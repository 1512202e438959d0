package router

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/anonto42/nano-midea/socialgraph/internal/handlers"
	"github.com/anonto42/nano-midea/socialgraph/internal/middleware"
	"github.com/anonto42/nano-midea/socialgraph/internal/realtime"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
	"github.com/anonto42/nano-midea/socialgraph/internal/services"
	"github.com/anonto42/nano-midea/socialgraph/internal/storage"
	"github.com/anonto42/nano-midea/socialgraph/pkg/logger"
)

// Fanout is the configured realtime backend: the hub itself, or Redis
// pub/sub in front of it.
type Fanout interface {
	realtime.Publisher
	realtime.Presence
}

// Dependencies are the process-wide pieces the routes are built from.
// Firebase and Media are optional and must be left nil when not configured.
type Dependencies struct {
	Database *mongo.Database
	Ping     func(ctx context.Context) error

	Hub             *realtime.Hub
	Fanout          Fanout
	TypingPerSecond float64

	Authn    middleware.Authenticator
	Tokens   handlers.TokenIssuer
	Firebase middleware.IDTokenVerifier
	Media    storage.MediaStore
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, deps *Dependencies) {
	log := logger.Named("router")

	// --- Repositories ---
	userRepo := repositories.NewMongoUserRepository(deps.Database)
	postRepo := repositories.NewMongoPostRepository(deps.Database)
	commentRepo := repositories.NewMongoCommentRepository(deps.Database)
	notificationRepo := repositories.NewMongoNotificationRepository(deps.Database)
	messageRepo := repositories.NewMongoMessageRepository(deps.Database)

	// --- Services ---
	notifier := services.NewNotificationService(notificationRepo, userRepo, deps.Fanout)
	visibility := services.NewVisibility(userRepo)
	followService := services.NewFollowService(userRepo, userRepo, notifier, deps.Fanout)
	contentService := services.NewContentService(postRepo, commentRepo, visibility, notifier, deps.Fanout)
	conversationService := services.NewConversationService(messageRepo, userRepo, deps.Media, notifier, deps.Fanout, deps.Fanout)
	accountService := services.NewAccountService(userRepo, userRepo, messageRepo, notificationRepo, postRepo, commentRepo)

	// --- Handlers ---
	healthHandler := handlers.NewHealthHandler(deps.Ping, deps.Hub.ConnectionCount)
	authHandler := handlers.NewAuthHandler(userRepo, deps.Tokens, deps.Firebase)
	userHandler := handlers.NewUserHandler(accountService)
	followHandler := handlers.NewFollowHandler(followService)
	postHandler := handlers.NewPostHandler(contentService)
	feedHandler := handlers.NewFeedHandler(contentService)
	commentHandler := handlers.NewCommentHandler(contentService)
	notificationHandler := handlers.NewNotificationHandler(notifier)
	messageHandler := handlers.NewMessageHandler(conversationService)
	wsHandler := handlers.NewWSHandler(deps.Hub, deps.Fanout, deps.TypingPerSecond)

	// Health check - always accessible
	e.GET("/health", healthHandler.HealthCheck)

	authHandler.RegisterAuthRoutes(e.Group("/auth"))

	// --- Reads open to anonymous callers; a token, if sent, must be valid ---
	public := e.Group("", middleware.OptionalAuth(deps.Authn))
	userHandler.RegisterPublicRoutes(public)
	followHandler.RegisterGraphRoutes(public)
	postHandler.RegisterPublicRoutes(public)
	commentHandler.RegisterPublicRoutes(public)
	wsHandler.RegisterWSRoutes(public)

	// --- Protected routes ---
	api := e.Group("", middleware.RequireAuth(deps.Authn))
	userHandler.RegisterProfileRoutes(api)
	followHandler.RegisterFollowRoutes(api)
	postHandler.RegisterPostRoutes(api)
	feedHandler.RegisterFeedRoutes(api)
	commentHandler.RegisterCommentRoutes(api)
	notificationHandler.RegisterNotificationRoutes(api)
	messageHandler.RegisterMessageRoutes(api)

	log.Info("routes configured")
}
