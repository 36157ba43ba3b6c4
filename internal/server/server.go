// Package server contains the HTTP handlers and route wiring for the API.
package server

import (
	"context"
	"fmt"
	"time"

	"tidepool/internal/cache"
	"tidepool/internal/config"
	"tidepool/internal/database"
	"tidepool/internal/mailer"
	"tidepool/internal/middleware"
	"tidepool/internal/observability"
	"tidepool/internal/repository"
	"tidepool/internal/reset"
	"tidepool/internal/service"
	"tidepool/internal/session"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
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
	promMiddleware *fiberprometheus.FiberPrometheus
	tracingStop    func(context.Context) error
	userRepo       repository.UserRepository
	postRepo       repository.PostRepository
	authService    *service.AuthService
	postService    *service.PostService
}

// NewServer creates a server instance, establishing the database and Redis
// connections itself.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Sessions and reset tokens live in Redis; a dead Redis is fatal here,
	// unlike a pure cache.
	redisClient, err := cache.InitRedis(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewServerWithDeps(cfg, db, redisClient)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Tests and bootstrap layers that establish DB/Redis themselves use this.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)

	var mail mailer.Mailer
	if cfg.SMTPHost != "" {
		mail = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
	} else {
		mail = &mailer.LogMailer{Logger: middleware.Logger}
	}

	tracingStop, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "tidepool-api",
		ServiceVersion: "1.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TraceExporter != "",
		Exporter:       cfg.TraceExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: observability.InitMetrics("tidepool-api"),
		tracingStop:    tracingStop,
		userRepo:       userRepo,
		postRepo:       postRepo,
	}
	server.authService = service.NewAuthService(
		userRepo,
		session.NewStore(redisClient),
		reset.NewStore(redisClient),
		mail,
		cfg.ResetURLBase,
		middleware.Logger,
	)
	server.postService = service.NewPostService(postRepo)

	return server, nil
}

// SetupMiddleware registers the global middleware stack.
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
	}))
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.RequestLogger())

	s.promMiddleware.RegisterAt(app, "/metrics")
	app.Use(s.promMiddleware.Middleware)
}

// SetupRoutes registers all API routes.
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", middleware.RateLimit(s.redis, "register", 10, time.Minute), s.Register)
	auth.Post("/login", middleware.RateLimit(s.redis, "login", 20, time.Minute), s.Login)
	auth.Post("/logout", s.Logout)
	auth.Get("/me", middleware.AuthRequired(s.authService), s.Me)
	auth.Post("/forgot-password", middleware.RateLimit(s.redis, "forgot", 5, time.Minute), s.ForgotPassword)
	auth.Post("/change-password", middleware.RateLimit(s.redis, "change", 10, time.Minute), s.ChangePassword)

	posts := api.Group("/posts")
	posts.Get("/", s.ListPosts)
	posts.Get("/:id", s.GetPost)
	posts.Post("/", middleware.AuthRequired(s.authService), s.CreatePost)
	posts.Put("/:id", middleware.AuthRequired(s.authService), s.UpdatePost)
	posts.Delete("/:id", middleware.AuthRequired(s.authService), s.DeletePost)
}

// Shutdown releases server-owned resources.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if s.tracingStop != nil {
		if err := s.tracingStop(ctx); err != nil {
			firstErr = err
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
