// Package server contains the HTTP handlers for the forum API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"forum/internal/config"
	"forum/internal/featureflags"
	"forum/internal/middleware"
	"forum/internal/models"
	"forum/internal/notifications"
	"forum/internal/repository"
	"forum/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	auth           *middleware.Authenticator
	limiter        *middleware.RateLimiter
	runner         *repository.Runner
	featureFlags   *featureflags.Manager
	dispatcher     *notifications.Dispatcher
	threads        *service.ThreadService
	likes          *service.LikeService
	views          *service.ViewService
	moderation     *service.ModerationService
	profiles       *service.ProfileService
}

// NewServerWithDeps creates a Server over an already-connected database.
// redisClient may be nil; caching, rate limiting and cross-process wake-ups
// are then disabled.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	runner := repository.NewRunner(db, repository.RetryPolicy{
		MaxAttempts:     uint(cfg.StoreRetryAttempts),
		InitialInterval: cfg.StoreRetryInitial(),
		MaxInterval:     cfg.StoreRetryMax(),
	})
	repos := service.NewRepositories(db)
	flags := featureflags.NewManager(cfg.FeatureFlags)

	var notifier *notifications.Notifier
	if redisClient != nil {
		notifier = notifications.NewNotifier(redisClient)
	}
	dispatcher := notifications.NewDispatcher(runner, notifications.Options{
		DedupeWindow: cfg.NotifyDedupeWindow(),
		BatchSize:    cfg.NotifyBatchSize,
		PollInterval: cfg.NotifyPollInterval(),
		Flags:        flags,
		Notifier:     notifier,
	})

	return &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("forum-api"),
		auth:           middleware.NewAuthenticator(cfg),
		limiter:        middleware.NewRateLimiter(redisClient, cfg.Env),
		runner:         runner,
		featureFlags:   flags,
		dispatcher:     dispatcher,
		threads:        service.NewThreadService(runner, repos, dispatcher, nil),
		likes:          service.NewLikeService(runner, repos, dispatcher),
		views:          service.NewViewService(runner, repos.Threads),
		moderation:     service.NewModerationService(runner, repos, dispatcher),
		profiles:       service.NewProfileService(runner, repos),
	}, nil
}

// NewApp builds the Fiber app with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Forum API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled request error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS
	// headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || s.config.Env == "test"
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api", s.auth.OptionalAuth())
	authed := s.auth.AuthRequired()

	api.Get("/categories", s.GetCategories)
	api.Get("/categories/:slug/threads", s.GetCategoryThreads)
	api.Get("/search", s.limiter.Limit(30, time.Minute, "search"), s.Search)
	api.Get("/members", s.GetMembers)

	// Specific /threads routes before the generic /:id routes.
	api.Get("/threads/recent", s.GetRecentThreads)
	api.Get("/threads/active", s.GetActiveThreads)
	api.Post("/threads", authed, s.limiter.Limit(5, 5*time.Minute, "create_thread"), s.CreateThread)
	api.Get("/threads/:id/posts", s.GetThreadPosts)
	api.Post("/threads/:id/posts", authed, s.limiter.Limit(10, time.Minute, "create_post"), s.CreatePost)
	api.Post("/threads/:id/view", s.limiter.Limit(120, time.Minute, "view_thread"), s.ViewThread)
	api.Get("/threads/:id", s.GetThread)
	api.Delete("/threads/:id", authed, s.DeleteThread)

	api.Post("/posts/:id/like", authed, s.limiter.Limit(60, time.Minute, "like"), s.ToggleLike)
	api.Delete("/posts/:id", authed, s.DeletePost)

	// /users/me before /users/:id.
	api.Post("/users/me", authed, s.RegisterProfile)
	api.Get("/users/me", authed, s.GetMyProfile)
	api.Put("/users/me", authed, s.UpdateMyProfile)
	api.Get("/users/me/feature-flags", authed, s.GetFeatureFlags)
	api.Get("/users/:id", s.GetUserProfile)

	notifs := api.Group("/notifications", authed)
	notifs.Get("/", s.GetNotifications)
	notifs.Get("/unread-count", s.GetUnreadCount)
	notifs.Post("/read-all", s.MarkAllNotificationsRead)
	notifs.Post("/:id/read", s.MarkNotificationRead)
	notifs.Delete("/:id", s.DeleteNotification)

	mod := api.Group("/mod", authed)
	mod.Get("/stats", s.GetModerationStats)
	mod.Get("/log", s.GetModerationLog)
	mod.Get("/users", s.GetModerationUsers)
	mod.Get("/posts", s.GetModerationPosts)
	mod.Post("/threads/:id/pin", s.moderate(s.moderation.Pin))
	mod.Post("/threads/:id/unpin", s.moderate(s.moderation.Unpin))
	mod.Post("/threads/:id/lock", s.moderate(s.moderation.Lock))
	mod.Post("/threads/:id/unlock", s.moderate(s.moderation.Unlock))
	mod.Delete("/threads/:id", s.DeleteThread)
	mod.Delete("/posts/:id", s.DeletePost)
	mod.Post("/users/:id/ban", s.moderate(s.moderation.Ban))
	mod.Post("/users/:id/unban", s.moderate(s.moderation.Unban))
	mod.Post("/users/:id/promote", s.moderate(s.moderation.Promote))
	mod.Post("/users/:id/demote", s.moderate(s.moderation.Demote))
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional; only
// the database decides readiness.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "degraded"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start runs the notification dispatcher and the receipt janitor, then
// serves HTTP until Shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.NewApp()

	go s.dispatcher.Run(ctx)
	go s.pruneReceipts(ctx, time.Hour)

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// pruneReceipts deletes idempotency receipts older than the configured
// retention on every tick.
func (s *Server) pruneReceipts(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		cutoff := time.Now().UTC().Add(-s.config.ReceiptRetention())
		if n, err := s.runner.PruneReceipts(ctx, cutoff); err != nil {
			if ctx.Err() != nil {
				return
			}
			middleware.Logger.ErrorContext(ctx, "receipt prune failed", slog.String("error", err.Error()))
		} else if n > 0 {
			middleware.Logger.InfoContext(ctx, "pruned operation receipts", slog.Int64("rows", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	// Flush whatever committed work is still queued in the outbox.
	if n, err := s.dispatcher.Drain(ctx); err != nil {
		middleware.Logger.Warn("final outbox drain failed", slog.String("error", err.Error()))
	} else if n > 0 {
		middleware.Logger.Info("final outbox drain", slog.Int("rows", n))
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
