package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/isoplanner/backend/internal/config"
	"github.com/isoplanner/backend/internal/delivery/http"
	"github.com/isoplanner/backend/internal/logging"
	"github.com/isoplanner/backend/internal/observability"
	"github.com/isoplanner/backend/internal/repository/mysql"
	"github.com/isoplanner/backend/internal/repository/postgres"
	"github.com/isoplanner/backend/internal/service"
)

func main() {
	// Configuration
	cfg, loaded := config.Load()
	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if !loaded {
		log.Info(context.Background(), "no .env file found, using system environment")
	}

	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		log.Error(ctx, "tracing setup failed, continuing without tracing", logging.Err(err))
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	metrics, err := observability.NewCollector(nil)
	if err != nil {
		log.Error(ctx, "metrics setup failed", logging.Err(err))
		os.Exit(1)
	}

	// Dependency Injection: Repositories
	exportRepo, closeRepo := openRepository(ctx, cfg, log)
	defer closeRepo()

	// Dependency Injection: Services
	if cfg.Routing.APIKey == "" {
		log.Warn(ctx, "ORS_API_KEY is not set; isochrone requests will be rejected upstream")
	}
	routing := service.NewRoutingClient(cfg.Routing)
	orchestrator := service.NewOrchestrator(routing, metrics, log)
	registry := service.NewSessionRegistry(orchestrator, metrics, log)

	// Fiber App
	app := fiber.New(fiber.Config{
		AppName:      "Isochrone Planner API v1.0",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Routing.Timeout + 10*time.Second,
		ErrorHandler: http.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,Authorization",
		ExposeHeaders: "Content-Disposition",
	}))

	// Routes
	handler := http.SetupRoutes(app, registry, exportRepo, metrics, log)

	// Graceful shutdown
	go func() {
		log.Info(ctx, "server starting", logging.String("port", cfg.Port), logging.String("env", cfg.Env))
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error(ctx, "server error", logging.Err(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(ctx, "shutting down server")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Warn(ctx, "server forced to shutdown", logging.Err(err))
	}
	handler.WaitBackground()
	log.Info(ctx, "server exited gracefully")
}

// openRepository picks the export history store: PostgreSQL when DATABASE_URL
// is set, MySQL when MYSQL_DSN is set, otherwise the in-memory mock.
func openRepository(ctx context.Context, cfg *config.Config, log logging.Logger) (service.ExportRepository, func()) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err == nil {
			err = pool.Ping(ctx)
			if err != nil {
				pool.Close()
			}
		}
		if err != nil {
			log.Warn(ctx, "could not connect to PostgreSQL, running with in-memory export history", logging.Err(err))
			return postgres.NewMockRepository(), func() {}
		}
		repo := postgres.NewPostgresRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			log.Warn(ctx, "export history schema not applied", logging.Err(err))
		}
		log.Info(ctx, "connected to PostgreSQL")
		return repo, pool.Close
	}

	if cfg.MySQLDSN != "" {
		repo, err := mysql.Open(cfg.MySQLDSN)
		if err == nil {
			err = repo.Health(ctx)
			if err != nil {
				repo.Close()
			}
		}
		if err != nil {
			log.Warn(ctx, "could not connect to MySQL, running with in-memory export history", logging.Err(err))
			return postgres.NewMockRepository(), func() {}
		}
		if err := repo.Migrate(ctx); err != nil {
			log.Warn(ctx, "export history schema not applied", logging.Err(err))
		}
		log.Info(ctx, "connected to MySQL")
		return repo, func() { repo.Close() }
	}

	log.Info(ctx, "no database configured, running with in-memory export history")
	return postgres.NewMockRepository(), func() {}
}
