// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"log"
	"time"

	_ "huddle/docs" // swagger docs
	"huddle/internal/bootstrap"
	"huddle/internal/cache"
	"huddle/internal/config"
	"huddle/internal/featureflags"
	"huddle/internal/middleware"
	"huddle/internal/models"
	"huddle/internal/relay"
	"huddle/internal/repository"
	"huddle/internal/seed"
	"huddle/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	mongo          *mongo.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo        repository.UserRepository
	followRepo      repository.FollowRepository
	eventRepo       repository.EventRepository
	eventChatRepo   repository.EventChatRepository
	privateChatRepo repository.PrivateChatRepository

	userService        *service.UserService
	followService      *service.FollowService
	eventService       *service.EventService
	eventChatService   *service.EventChatService
	privateChatService *service.PrivateChatService

	notifier     *relay.Notifier
	hub          *relay.Hub
	featureFlags *featureflags.Manager
}

// Option customizes a Server built by NewServerWithDeps.
type Option func(*Server)

// WithPrivateChatRepository replaces the SQL private chat store.
func WithPrivateChatRepository(repo repository.PrivateChatRepository) Option {
	return func(s *Server) { s.privateChatRepo = repo }
}

// WithMongoClient hands the server a Mongo client to disconnect on shutdown
// and to probe for readiness.
func WithMongoClient(client *mongo.Client) Option {
	return func(s *Server) { s.mongo = client }
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Redis is optional; without it the relay runs single-instance.
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{
		SeedIfEmpty: cfg.SeedDemoData,
		Seed:        seed.DefaultOptions(),
	})
	if err != nil {
		return nil, err
	}

	var opts []Option
	if rt.PrivateChats != nil {
		opts = append(opts, WithPrivateChatRepository(rt.PrivateChats), WithMongoClient(rt.Mongo))
	}
	return NewServerWithDeps(cfg, rt.DB, rt.Redis, opts...)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis itself.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, opts ...Option) (*Server, error) {
	if cfg.UserCacheTTLSeconds > 0 {
		cache.SetUserTTL(time.Duration(cfg.UserCacheTTLSeconds) * time.Second)
	}

	server := &Server{
		config:          cfg,
		db:              db,
		redis:           redisClient,
		promMiddleware:  middleware.InitMetrics("huddle-api"),
		userRepo:        repository.NewUserRepository(db),
		followRepo:      repository.NewFollowRepository(db),
		eventRepo:       repository.NewEventRepository(db),
		eventChatRepo:   repository.NewEventChatRepository(db),
		privateChatRepo: repository.NewPrivateChatRepository(db),
		featureFlags:    featureflags.NewManager(cfg.FeatureFlags),
	}
	for _, opt := range opts {
		opt(server)
	}

	server.userService = service.NewUserService(server.userRepo, server.followRepo, cfg.JWTSecret)
	server.followService = service.NewFollowService(server.followRepo, server.userRepo)
	server.eventService = service.NewEventService(server.eventRepo, server.userRepo)
	server.eventChatService = service.NewEventChatService(server.eventChatRepo, server.eventRepo, server.userRepo)
	server.privateChatService = service.NewPrivateChatService(server.privateChatRepo, server.followRepo, server.userRepo)

	server.notifier = relay.NewNotifier(redisClient)
	server.hub = relay.NewHub(relay.Options{
		MaxConnections: cfg.RelayMaxConnections,
		Flags:          server.featureFlags,
		Redis:          redisClient,
		Notifier:       server.notifier,
	})

	return server, nil
}

// App builds the Fiber application on first use and returns it.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:      "Huddle API",
		ErrorHandler: s.handleError,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	middleware.Logger.ErrorContext(c.UserContext(), "Unhandled request error", "error", err)
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
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

// authenticate is strict when AUTH_REQUIRED is set and otherwise only
// attaches the caller when a token is present.
func (s *Server) authenticate() fiber.Handler {
	if s.config.AuthRequired {
		return middleware.AuthRequired(s.config.JWTSecret)
	}
	return middleware.OptionalAuth(s.config.JWTSecret)
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api.Get("/swagger/*", swagger.HandlerDefault)

	auth := api.Group("/auth")
	auth.Post("/register", middleware.RateLimit(s.redis, 5, 10*time.Minute, "register"), s.Register)
	auth.Post("/login", middleware.RateLimit(s.redis, 10, 5*time.Minute, "login"), s.Login)

	// Specific routes before generic /:id
	users := api.Group("/user", s.authenticate())
	users.Get("/", s.ListUsers)
	users.Get("/search", middleware.RateLimit(s.redis, 30, time.Minute, "user_search"), s.SearchUsers)
	users.Get("/:id/profile", s.GetUserProfile)
	users.Get("/:id/followers", s.GetFollowers)
	users.Get("/:id/followings", s.GetFollowings)
	users.Put("/:id/location", s.UpdateLocation)
	users.Put("/:id/follow", s.FollowUser)
	users.Put("/:id/unfollow", s.UnfollowUser)
	users.Get("/:id", s.GetUser)
	users.Put("/:id", s.UpdateUser)
	users.Delete("/:id", s.DeleteUser)

	events := api.Group("/event", s.authenticate())
	events.Post("/", s.CreateEvent)
	events.Get("/mapData", s.GetMapData)
	events.Get("/search", middleware.RateLimit(s.redis, 30, time.Minute, "event_search"), s.SearchEvents)
	events.Post("/filter", s.FilterEvents)
	events.Get("/nearby/:userId", s.GetNearbyEvents)
	events.Get("/user/:id", s.GetEventsForUser)
	events.Get("/details/:id", s.GetEventDetails)
	events.Get("/:id/participants", s.GetEventParticipants)
	events.Put("/:id/join", s.JoinEvent)
	events.Put("/:id/leave", s.LeaveEvent)
	events.Get("/:id", s.GetEvent)
	events.Put("/:id", s.UpdateEvent)

	chats := api.Group("/chat", s.authenticate())
	chats.Post("/:eventId", middleware.RateLimit(s.redis, 30, time.Minute, "event_chat"), s.PostEventMessage)
	chats.Get("/:eventId", s.GetEventMessages)

	private := api.Group("/privateChat", s.authenticate())
	private.Post("/getOrCreate", s.GetOrCreatePrivateChat)
	private.Get("/user/:id", s.GetPrivateChatsForUser)
	private.Get("/available/:id", s.GetAvailablePartners)
	private.Post("/:chatId/message", middleware.RateLimit(s.redis, 30, time.Minute, "private_chat"), s.PostPrivateMessage)
	private.Get("/:chatId", s.GetPrivateChat)

	app.Get("/ws", middleware.WebSocketAuth(s.config.JWTSecret, s.config.AuthRequired), s.RelayUpgrade, s.RelayHandler())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional, so its
// absence is reported but does not fail readiness.
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

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	checks := fiber.Map{
		"database": dbStatus,
		"redis":    redisStatus,
		"relay":    fiber.Map{"connections": s.hub.Connections(), "fanout": s.notifier.Enabled()},
	}

	mongoStatus := ""
	if s.mongo != nil {
		mongoStatus = "healthy"
		if err := s.mongo.Ping(ctx, nil); err != nil {
			mongoStatus = "unhealthy"
		}
		checks["mongo"] = mongoStatus
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" || mongoStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": checks,
		"time":   time.Now(),
	})
}

// Start wires the relay to Redis and listens on the configured port.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.App()

	if err := s.hub.StartWiring(s.shutdownCtx); err != nil {
		log.Printf("failed to start relay fan-out, continuing single-instance: %v", err)
	}

	log.Printf("Feature flags: %s", s.featureFlags)
	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop relay wiring
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		log.Printf("error shutting down relay: %v", err)
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	if s.mongo != nil {
		if err := s.mongo.Disconnect(ctx); err != nil {
			log.Printf("error disconnecting mongo: %v", err)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
