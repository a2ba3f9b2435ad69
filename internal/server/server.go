// Package server contains the HTTP handlers for the portal API.
package server

import (
	"context"
	"fmt"
	"time"

	"atrium/internal/bootstrap"
	"atrium/internal/config"
	"atrium/internal/middleware"
	"atrium/internal/models"
	"atrium/internal/permissions"
	"atrium/internal/repository"
	"atrium/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware fiber.Handler
	checker        permissions.Checker
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo       repository.UserRepository
	tileRepo       repository.TileRepository
	requestRepo    repository.RequestRepository
	assignmentRepo repository.AssignmentRepository
	syncLogRepo    repository.SyncLogRepository
	settingsRepo   repository.SettingsRepository
	auditRepo      repository.AuditRepository

	requestService *service.RequestService
	syncService    *service.CatalogSyncService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, redisClient, err := bootstrap.InitRuntime(cfg)
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, db, redisClient)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis and
// optionally performs explicit seeding.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	middleware.InitMiddleware(cfg)
	middleware.SetBlacklistClient(redisClient)

	ctx, cancel := context.WithCancel(context.Background())

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		checker:        permissions.NewStaticChecker(),
		shutdownCtx:    ctx,
		shutdownFn:     cancel,
		userRepo:       repository.NewUserRepository(db),
		tileRepo:       repository.NewTileRepository(db),
		requestRepo:    repository.NewRequestRepository(db),
		assignmentRepo: repository.NewAssignmentRepository(db),
		syncLogRepo:    repository.NewSyncLogRepository(db),
		settingsRepo:   repository.NewSettingsRepository(db),
		auditRepo:      repository.NewAuditRepository(db),
	}

	server.requestService = service.NewRequestService(db,
		server.requestRepo, server.tileRepo, server.assignmentRepo, server.auditRepo)
	// Detached sync runs are bound to the server's lifetime context, not to
	// the request that triggered them.
	server.syncService = service.NewCatalogSyncService(ctx, db,
		server.tileRepo, server.syncLogRepo, server.settingsRepo, server.auditRepo)

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for correlation
	app.Use(requestid.New())

	// Propagate request ID into context.Context for the logger
	app.Use(middleware.ContextMiddleware())

	// Prometheus HTTP metrics
	if s.promMiddleware != nil {
		app.Use(s.promMiddleware)
	}

	// Security headers
	app.Use(helmet.New())

	// Structured logging (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// Request tracing; a noop tracer provider makes this free when disabled
	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// CORS must run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting per IP
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they are handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/signup", middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "signup"), s.Signup)
	auth.Post("/login", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "login"), s.Login)
	auth.Post("/logout", s.Logout)

	// Everything below requires an authenticated principal. The second
	// ContextMiddleware pass picks up the user ID and role that AuthRequired
	// just stored in locals.
	protected := api.Group("", middleware.AuthRequired, middleware.ContextMiddleware())

	// Store and assigned apps
	protected.Get("/store", s.PermissionRequired(permissions.StoreView), s.GetStore)
	apps := protected.Group("/apps")
	apps.Get("/me", s.PermissionRequired(permissions.AssignmentsViewOwn), s.GetMyApps)
	apps.Post("/:id/launch", s.PermissionRequired(permissions.AssignmentsViewOwn),
		middleware.RateLimit(s.redis, 30, time.Minute, "launch"), s.LaunchApp)

	// App request lifecycle
	requests := protected.Group("/requests")
	requests.Post("/", s.PermissionRequired(permissions.RequestsCreate),
		middleware.RateLimit(s.redis, 10, time.Minute, "submit_request"), s.CreateRequest)
	requests.Get("/", s.PermissionRequired(permissions.RequestsViewOwn), s.GetRequests)
	requests.Get("/:id", s.PermissionRequired(permissions.RequestsViewOwn), s.GetRequest)
	requests.Delete("/:id", s.PermissionRequired(permissions.RequestsViewOwn), s.CancelRequest)

	// Review queue
	admin := protected.Group("/admin")
	adminRequests := admin.Group("/requests")
	adminRequests.Get("/", s.PermissionRequired(permissions.RequestsRead), s.GetAdminRequests)
	adminRequests.Post("/:id/review", s.PermissionRequired(permissions.RequestsApprove), s.StartRequestReview)
	adminRequests.Post("/:id/approve", s.PermissionRequired(permissions.RequestsApprove), s.ApproveRequest)
	adminRequests.Post("/:id/deny", s.PermissionRequired(permissions.RequestsDeny), s.DenyRequest)

	// Catalog administration
	tiles := admin.Group("/tiles", s.PermissionRequired(permissions.CatalogManage))
	tiles.Get("/", s.GetAdminTiles)
	tiles.Post("/", s.CreateTile)
	tiles.Put("/:id", s.UpdateTile)
	tiles.Delete("/:id", s.DeleteTile)

	// Direct assignment management
	assignments := admin.Group("/assignments", s.PermissionRequired(permissions.AssignmentsManage))
	assignments.Post("/", s.GrantAssignment)
	assignments.Delete("/:id", s.RevokeAssignment)

	// Catalog sync
	sync := protected.Group("/catalog/sync", s.PermissionRequired(permissions.CatalogSync))
	sync.Post("/", s.TriggerCatalogSync)
	sync.Get("/status", s.GetCatalogSyncStatus)
	sync.Get("/logs", s.GetCatalogSyncLogs)
	sync.Put("/settings", s.UpdateCatalogSyncSettings)
}

// PermissionRequired returns middleware that rejects principals whose role
// does not hold the given permission slug. Must be placed after AuthRequired
// so that userRole is available in locals.
func (s *Server) PermissionRequired(slug string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("userRole").(string)
		if !s.checker.Allowed(role, slug) {
			return models.RespondWithError(c,
				models.NewForbiddenError("You do not have permission to perform this action"))
		}
		return c.Next()
	}
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	// Redis is optional; the portal degrades to uncached, unlimited mode.
	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
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

// Start starts the server
func (s *Server) Start() error {
	app := fiber.New(fiber.Config{
		AppName: "Atrium Portal API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "error", err.Error())
			return models.RespondWithError(c, models.NewInternalError(err))
		},
	})
	s.app = app

	s.promMiddleware = middleware.InitMetrics(app)
	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	if err := s.syncService.StartScheduler(s.shutdownCtx); err != nil {
		return fmt.Errorf("starting sync scheduler: %w", err)
	}

	middleware.Logger.Info("server starting", "port", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server. In-flight sync runs are allowed
// to finish before connections close: the server lifetime context, which
// detached reconciles run against, is cancelled only after Wait returns.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", "error", err.Error())
		}
	}

	s.syncService.StopScheduler()
	s.syncService.Wait()

	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", "error", cerr.Error())
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", "error", rerr.Error())
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
