package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"geoform-backend/internal/admin"
	"geoform-backend/internal/apperr"
	"geoform-backend/internal/audit"
	"geoform-backend/internal/auth"
	"geoform-backend/internal/config"
	"geoform-backend/internal/metadata"
	"geoform-backend/internal/public"
	"geoform-backend/internal/routing"
	"geoform-backend/internal/sample"
	"geoform-backend/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, driver: %s)", cfg.Server.Port, cfg.Database.Driver)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Register applications and entities
	reg := metadata.NewRegistry()
	if err := sample.Register(reg); err != nil {
		log.Fatalf("Failed to register demo application: %v", err)
	}

	// 4. Create tables
	migrator := store.NewMigrator(db)
	if err := migrator.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}
	if err := migrator.MigrateAll(ctx, reg); err != nil {
		log.Fatalf("Failed to migrate entity tables: %v", err)
	}
	log.Println("Tables ready")

	// 5. Seed the bootstrap admin account
	if err := auth.EnsureUser(ctx, db, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		log.Fatalf("Failed to create admin user: %v", err)
	}

	// 6. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 7. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 8. Controllers
	recorder := audit.NewRecorder(db, 100, 5*time.Second)
	defer recorder.Stop()

	adminCtl, err := admin.NewController(db, reg)
	if err != nil {
		log.Fatalf("Failed to build admin controller: %v", err)
	}
	adminCtl.WithAudit(recorder)
	publicCtl, err := public.NewController(db, reg, cfg.Captcha)
	if err != nil {
		log.Fatalf("Failed to build public controller: %v", err)
	}
	authHandler := auth.NewHandler(db, cfg.JWTSecret)

	// 9. Routes
	routing.Register(app, reg, adminCtl, publicCtl, authHandler, cfg.JWTSecret)

	// 10. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(apperr.ErrorResponse{Error: appErr})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(code).JSON(apperr.ErrorResponse{
		Error: &apperr.AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}
