package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/isoplanner/backend/internal/logging"
	"github.com/isoplanner/backend/internal/observability"
	"github.com/isoplanner/backend/internal/service"
)

// SetupRoutes configures all HTTP routes and returns the handler so the
// caller can wait for its background work on shutdown.
func SetupRoutes(
	app *fiber.App,
	registry *service.SessionRegistry,
	repo service.ExportRepository,
	metrics *observability.Collector,
	log logging.Logger,
) *Handler {
	handler := NewHandler(registry, repo, log)

	// Health check and metrics
	app.Get("/health", handler.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	// API v1 routes
	api := app.Group("/api/v1")
	{
		api.Post("/sessions", handler.CreateSession)
		api.Get("/exports", handler.ListExports)

		session := api.Group("/sessions/:id")
		session.Get("/", handler.GetSession)
		session.Delete("/", handler.DeleteSession)
		session.Post("/reset", handler.ResetSession)
		session.Get("/points", handler.ListPoints)
		session.Post("/points", handler.AddPoint)
		session.Put("/points/:pointId", handler.MovePoint)
		session.Delete("/points/:pointId", handler.RemovePoint)
		session.Post("/avoid-polygons", handler.AddAvoidPolygon)
		session.Put("/avoid-polygons", handler.EditAvoidPolygon)
		session.Delete("/avoid-polygons", handler.ResetAvoidPolygons)
		session.Post("/isochrones", handler.GenerateIsochrones)
		session.Get("/table", handler.GetTable)
		session.Get("/export", handler.Export)
	}

	return handler
}
