package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"whatsapp-bot/config"
	"whatsapp-bot/handlers"
	"whatsapp-bot/middleware"
	"whatsapp-bot/services"
	"whatsapp-bot/webhooks"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found")
	}

	// Initialize structured logger
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(logHandler))

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize MongoDB
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := services.InitMongoDB(ctx, cfg.MongoURI)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer db.Disconnect(ctx)

	// Initialize services and indexes
	services.InitServices(db, cfg.DatabaseName)

	// Initialize the notification publisher
	notifier, err := services.NewNotifier(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		slog.Error("Failed to connect notifier", "error", err)
		// Continue anyway - notifications are fire and forget
		notifier, _ = services.NewNotifier("", "")
	}
	defer notifier.Close()

	// Wire the inbound message pipeline
	pipeline := services.NewPipeline(cfg, notifier)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			slog.Error("Request error", "error", err, "status", code)
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())

	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:5173, http://localhost:3000",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Tenant-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path}\n",
	}))

	// Register webhook routes
	webhooks.RegisterRoutes(app, cfg, pipeline)

	// Admin endpoints (tenant-scoped)
	admin := app.Group("/admin", middleware.RequireTenant)

	admin.Get("/sellers", handlers.ListSellers)
	admin.Post("/sellers", handlers.CreateSeller)
	admin.Post("/sellers/:sellerId/activate", handlers.ActivateSeller)
	admin.Post("/sellers/:sellerId/deactivate", handlers.DeactivateSeller)

	admin.Post("/leads/:phone/reset", handlers.ResetLeadToAI)
	admin.Post("/leads/:phone/archive", handlers.ArchiveLead)

	// Dashboard API endpoints (tenant-scoped)
	dashboard := app.Group("/api/dashboard", middleware.RequireTenant)

	dashboard.Get("/leads", handlers.ListLeads)
	dashboard.Get("/leads/:phone/messages", handlers.GetLeadConversation)

	// WebSocket endpoint for live dashboard updates
	dashboard.Get("/ws", handlers.WebSocketUpgrade, websocket.New(handlers.HandleWebSocket))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "whatsapp-bot",
		})
	})

	// Start server
	slog.Info("Server starting", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("Server failed to start", "error", err)
		os.Exit(1)
	}
}
