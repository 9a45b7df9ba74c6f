package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	contenthttp "keepsake/internal/content/adapter/http"
	"keepsake/internal/content/config"
	"keepsake/internal/di"
	"keepsake/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("Failed to load server configuration: %v", err)
	}

	appLogger := logger.NewLogger().WithComponent("server")
	appLogger.Info("Keepsake server starting")

	container := di.NewContainer(cfg, appLogger)
	defer func() {
		if err := container.Close(); err != nil {
			appLogger.Errorf("Failed to close container: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := container.ConnectMongo(ctx); err != nil {
		cancel()
		appLogger.Fatalf("%v", err)
	}
	if err := container.ConnectRedis(ctx); err != nil {
		cancel()
		appLogger.Fatalf("%v", err)
	}
	cancel()

	if err := container.InitializeContent(); err != nil {
		appLogger.Fatalf("Failed to initialize content module: %v", err)
	}

	app := fiber.New(fiber.Config{
		AppName:               "Keepsake API v1",
		BodyLimit:             cfg.BodyLimit,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           60 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          contenthttp.ErrorHandler(appLogger),
	})

	app.Use(recover.New())
	app.Use(contenthttp.CORS())
	app.Use(contenthttp.RequestID())
	app.Use(contenthttp.PropagateRequestID())

	// Readiness covers every external dependency; /health only the record store.
	app.Get("/ready", func(c *fiber.Ctx) error {
		readyCtx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
		defer cancel()

		if err := container.HealthCheck(readyCtx); err != nil {
			appLogger.Errorf("Readiness check failed: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"status":    "ready",
			"relay":     container.RedisClient != nil,
			"timestamp": time.Now().UTC(),
		})
	})

	module := container.GetContentModule()
	module.RegisterRoutes(app)

	realtimeCtx, stopRealtime := context.WithCancel(context.Background())
	defer stopRealtime()
	module.StartRealtimeServices(realtimeCtx)

	serverAddr := cfg.Addr()
	appLogger.Infof("Listening on %s (public base %s)", serverAddr, cfg.BaseURL())

	serverShutdown := make(chan error, 1)
	go func() {
		serverShutdown <- app.Listen(serverAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverShutdown:
		if err != nil {
			appLogger.Errorf("Server stopped: %v", err)
		}
	case sig := <-quit:
		appLogger.Infof("Received shutdown signal: %v", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			appLogger.Errorf("Server forced to shutdown: %v", err)
		}
	}

	appLogger.Info("Server stopped")
}
