package routes

import (
	"time"

	"github.com/casevault/casevault/internal/config"
	"github.com/casevault/casevault/internal/handlers"
	"github.com/casevault/casevault/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	db *gorm.DB,
	authHandler *handlers.AuthHandler,
	caseHandler *handlers.CaseHandler,
	recordingHandler *handlers.RecordingHandler,
	adminHandler *handlers.AdminHandler,
	healthHandler *handlers.HealthHandler,
) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", healthHandler.Check)

	// Auth endpoints are public but carry a stricter rate limit on top of
	// the account lockout policy
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh", authHandler.Refresh)

	protected := middleware.JWTProtected(cfg)

	api.Post("/auth/logout", protected, authHandler.Logout)
	api.Post("/auth/password", protected, authHandler.ChangePassword)

	// Cases
	api.Get("/cases", protected, caseHandler.List)
	api.Post("/cases", protected, caseHandler.GetOrCreate)
	api.Get("/cases/search", protected, caseHandler.Search)
	api.Get("/cases/:id", protected, caseHandler.Get)
	api.Post("/cases/:id/recordings", protected, recordingHandler.Upload)

	// Recordings and the processing pipeline
	api.Get("/recordings/:id", protected, recordingHandler.Get)
	api.Get("/recordings/:id/audio", protected, recordingHandler.Audio)
	api.Post("/recordings/:id/transcribe", protected, recordingHandler.Transcribe)
	api.Post("/recordings/:id/summarize", protected, recordingHandler.Summarize)
	api.Patch("/recordings/:id", protected, recordingHandler.Edit)

	// Admin
	admin := api.Group("/admin", protected, middleware.AdminRequired(db))
	admin.Post("/users", adminHandler.CreateUser)
	admin.Get("/users", adminHandler.ListUsers)
	admin.Get("/users/stats", adminHandler.UserStats)
	admin.Put("/users/:id/active", adminHandler.SetActive)
	admin.Put("/users/:id/password", adminHandler.ResetPassword)
	admin.Get("/audit", adminHandler.ListAudit)
}
