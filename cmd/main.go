package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"leadflow/internal/di"
	"leadflow/internal/leadflow"
	httpadapter "leadflow/internal/leadflow/adapter/http"
	"leadflow/internal/leadflow/config"
	"leadflow/internal/shared/logger"
	"leadflow/internal/shared/tracing"

	"github.com/caarlos0/env/v6"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            string        `env:"PORT" envDefault:"8000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	serverCfg := &ServerConfig{}
	if err := env.Parse(serverCfg); err != nil {
		log.Fatalf("Failed to load server configuration: %v", err)
	}

	appLogger := logger.NewLogger()

	leadflowCfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load leadflow configuration: %v", err)
	}
	appLogger.Info("Application configuration loaded successfully")

	shutdownTracing, err := tracing.Setup(leadflowCfg.Tracing.Enabled, leadflowCfg.Tracing.ServiceName)
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Dependency Injection Container
	container := di.NewContainer(appLogger)
	if err := container.InitializeLeadflow(ctx, leadflowCfg); err != nil {
		log.Fatalf("Failed to initialize Leadflow module: %v", err)
	}
	// Flushed by container.Close after the module has stopped.
	container.Register(shutdownTracing)

	module, err := di.GetService[*leadflow.LeadflowModule](container)
	if err != nil {
		log.Fatalf("Failed to resolve Leadflow module: %v", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      "Leadflow API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			}
			if code >= fiber.StatusInternalServerError {
				appLogger.Errorf("HTTP error on %s: %v", c.Path(), err)
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   "http_error",
				"message": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, " + httpadapter.RequestIDHeader,
	}))
	app.Use(httpadapter.RequestID())

	app.Get("/health", func(c *fiber.Ctx) error {
		healthCtx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
		defer cancel()

		if err := container.HealthCheck(healthCtx); err != nil {
			appLogger.Errorf("Health check failed: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":  "UNHEALTHY",
				"error":   err.Error(),
				"message": "One or more services are unhealthy",
			})
		}

		return c.JSON(fiber.Map{
			"status":    "HEALTHY",
			"message":   "Leadflow API is running",
			"timestamp": time.Now().UTC(),
			"backend":   module.Store.Backend,
			"journal":   module.Journal != nil,
		})
	})

	module.RegisterRoutes(app)

	serverAddr := fmt.Sprintf("%s:%s", serverCfg.Host, serverCfg.Port)
	appLogger.Infof("Starting HTTP server on %s", serverAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Listen(serverAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			appLogger.Errorf("Server forced to shutdown: %v", err)
		}
		if err := container.Close(); err != nil {
			appLogger.Errorf("Failed to close container: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		appLogger.Errorf("Server stopped with error: %v", err)
	}
	appLogger.Info("Application stopped")
}
