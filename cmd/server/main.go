package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/anonto42/nano-midea/socialgraph/internal/middleware"
	"github.com/anonto42/nano-midea/socialgraph/internal/realtime"
	"github.com/anonto42/nano-midea/socialgraph/internal/repair"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
	"github.com/anonto42/nano-midea/socialgraph/internal/router"
	"github.com/anonto42/nano-midea/socialgraph/internal/storage"
	"github.com/anonto42/nano-midea/socialgraph/pkg/config"
	"github.com/anonto42/nano-midea/socialgraph/pkg/firebase"
	"github.com/anonto42/nano-midea/socialgraph/pkg/logger"
	"github.com/anonto42/nano-midea/socialgraph/pkg/redis"
	"github.com/anonto42/nano-midea/socialgraph/validators"
)

func main() {
	if err := run(); err != nil {
		logger.Get().Error("server exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Env); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connections
	db, err := config.InitDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.CloseDB()

	if err := repositories.EnsureIndexes(ctx, db.Database); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	deps := &router.Dependencies{
		Database:        db.Database,
		Ping:            db.Ping,
		Hub:             realtime.NewHub(),
		TypingPerSecond: float64(cfg.TypingEventsPerSecond),
	}

	// --- Realtime backend ---
	// stays nil, and so never ready, for the in-process backend
	var backendDone chan error
	switch cfg.RealtimeBackend {
	case config.RealtimeRedis:
		rdb, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		if err := rdb.Ping(ctx); err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}
		backend := realtime.NewRedisBackend(rdb.Client, deps.Hub)
		deps.Fanout = backend
		backendDone = make(chan error, 1)
		go func() { backendDone <- backend.Run(ctx) }()
		log.Info("realtime fan-out via redis")
	default:
		deps.Fanout = deps.Hub
		log.Info("realtime fan-out in process")
	}

	// --- Authentication ---
	jwtAuth := middleware.NewJWTAuth(cfg.SigningSecret())
	deps.Authn, deps.Tokens = jwtAuth, jwtAuth
	if cfg.FirebaseCredentialsPath != "" {
		fb, err := firebase.NewAuthClient(ctx, cfg.FirebaseCredentialsPath)
		if err != nil {
			return err
		}
		deps.Firebase = fb
		if cfg.AuthMode == config.AuthFirebase {
			deps.Authn = middleware.NewFirebaseAuth(fb, repositories.NewMongoUserRepository(db.Database))
		}
	}
	log.Info("authentication configured", zap.String("mode", cfg.AuthMode))

	// --- Media ---
	if cfg.MediaEnabled() {
		media, err := storage.NewS3Store(ctx, cfg)
		if err != nil {
			return err
		}
		deps.Media = media
		log.Info("message attachments enabled", zap.String("bucket", cfg.S3Bucket))
	}

	// --- Scheduled repair ---
	repairService, err := newRepairService(db, cfg.RepairConcurrency)
	if err != nil {
		return err
	}
	scheduler := repair.NewScheduler(repairService, cfg.RepairInterval)
	scheduler.Start()
	defer scheduler.Stop()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()
	config.SetupMiddleware(e)
	router.SetupRoutes(e, deps)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		return err
	case err := <-backendDone:
		if err != nil {
			return fmt.Errorf("realtime backend stopped: %w", err)
		}
		log.Info("realtime backend stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// newRepairService wires the repair pass, recording runs in Postgres when configured.
func newRepairService(db *config.DB, concurrency int) (*repair.Service, error) {
	var runs repositories.RepairRunRepository
	if db.Postgres != nil {
		r, err := repositories.NewGormRepairRunRepository(db.Postgres)
		if err != nil {
			return nil, fmt.Errorf("repair audit table: %w", err)
		}
		runs = r
	}
	return repair.NewService(
		repositories.NewMongoUserRepository(db.Database),
		repositories.NewMongoPostRepository(db.Database),
		repositories.NewMongoCommentRepository(db.Database),
		runs,
		concurrency,
	), nil
}
