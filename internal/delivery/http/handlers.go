package http

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"

	"github.com/isoplanner/backend/internal/domain"
	"github.com/isoplanner/backend/internal/logging"
	"github.com/isoplanner/backend/internal/service"
	"github.com/isoplanner/backend/pkg/utils"
)

const (
	defaultExportLimit = 20
	maxExportLimit     = 100
)

// Handler contains all HTTP handlers
type Handler struct {
	registry *service.SessionRegistry
	repo     service.ExportRepository
	log      logging.Logger

	wgBg sync.WaitGroup // tracks background export saves for graceful shutdown
}

// NewHandler creates a new handler
func NewHandler(registry *service.SessionRegistry, repo service.ExportRepository, log logging.Logger) *Handler {
	if log == nil {
		log = logging.Noop()
	}
	return &Handler{
		registry: registry,
		repo:     repo,
		log:      log,
	}
}

// WaitBackground blocks until all background export saves have finished
func (h *Handler) WaitBackground() {
	h.wgBg.Wait()
}

type pointRequest struct {
	Lng *float64 `json:"lng"`
	Lat *float64 `json:"lat"`
}

func (r pointRequest) coord() (orb.Point, error) {
	if r.Lng == nil || r.Lat == nil {
		return orb.Point{}, fiber.NewError(fiber.StatusBadRequest, "lng and lat are required")
	}
	if *r.Lat < -90 || *r.Lat > 90 || *r.Lng < -180 || *r.Lng > 180 {
		return orb.Point{}, fiber.NewError(fiber.StatusBadRequest, "coordinates out of range")
	}
	return orb.Point{*r.Lng, *r.Lat}, nil
}

type ringRequest struct {
	Ring orb.Ring `json:"ring"`
}

type ringEditRequest struct {
	Old orb.Ring `json:"old"`
	New orb.Ring `json:"new"`
}

type isochroneRequest struct {
	Times string `json:"times"`
	Mode  string `json:"mode"`
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	storage := "ok"
	if err := h.repo.Health(ctx); err != nil {
		h.log.Warn(ctx, "storage health check failed", logging.Err(err))
		storage = "unavailable"
	}

	return c.JSON(fiber.Map{
		"status":   "ok",
		"service":  "isochrone-backend",
		"version":  "1.0.0",
		"storage":  storage,
		"sessions": h.registry.Len(),
	})
}

// CreateSession opens a new planning session
func (h *Handler) CreateSession(c *fiber.Ctx) error {
	s := h.registry.Create()
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    s.Snapshot(),
	})
}

// DeleteSession closes a session
func (h *Handler) DeleteSession(c *fiber.Ctx) error {
	if err := h.registry.Delete(c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetSession returns the full session snapshot
func (h *Handler) GetSession(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    s.Snapshot(),
	})
}

// ResetSession clears points, results and avoidance polygons
func (h *Handler) ResetSession(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	s.Reset()
	return c.JSON(fiber.Map{
		"success": true,
		"data":    s.Snapshot(),
	})
}

// ListPoints returns the live points
func (h *Handler) ListPoints(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    s.Points(),
	})
}

// AddPoint places a point on the map
func (h *Handler) AddPoint(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req pointRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	coord, err := req.coord()
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    s.AddPoint(coord),
	})
}

// MovePoint drags a point to a new coordinate
func (h *Handler) MovePoint(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req pointRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	coord, err := req.coord()
	if err != nil {
		return err
	}

	p, err := s.MovePoint(c.Params("pointId"), coord)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    p,
	})
}

// RemovePoint deletes a point
func (h *Handler) RemovePoint(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	if err := s.RemovePoint(c.Params("pointId")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AddAvoidPolygon stores a drawn avoidance polygon
func (h *Handler) AddAvoidPolygon(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req ringRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if len(req.Ring) < 3 {
		return domain.ErrInvalidRing
	}

	s.AddAvoidance(req.Ring)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    s.AvoidPolygons(),
	})
}

// EditAvoidPolygon replaces an edited avoidance polygon. Edits that match no
// stored polygon are ignored and reported with matched=false.
func (h *Handler) EditAvoidPolygon(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req ringEditRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if len(req.Old) == 0 || len(req.New) < 3 {
		return domain.ErrInvalidRing
	}

	matched := s.ReplaceAvoidance(req.Old, req.New)
	return c.JSON(fiber.Map{
		"success": true,
		"matched": matched,
		"data":    s.AvoidPolygons(),
	})
}

// ResetAvoidPolygons removes every avoidance polygon
func (h *Handler) ResetAvoidPolygons(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	s.ResetAvoidance()
	return c.SendStatus(fiber.StatusNoContent)
}

// GenerateIsochrones requests isochrones for every point and travel time
func (h *Handler) GenerateIsochrones(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req isochroneRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	times, err := service.ParseTimes(req.Times)
	if err != nil {
		return err
	}
	mode, err := service.ParseMode(req.Mode)
	if err != nil {
		return err
	}

	results, err := s.Generate(c.UserContext(), times, mode)
	if err != nil {
		return err
	}

	rows := make([]domain.TableRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, r.Row())
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    rows,
		"count":   len(rows),
	})
}

// GetTable returns every table row recorded in the session
func (h *Handler) GetTable(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	rows := s.Table()
	return c.JSON(fiber.Map{
		"success": true,
		"data":    rows,
		"count":   len(rows),
	})
}

// Export downloads the session's isochrones as GeoJSON or a zipped shapefile
func (h *Handler) Export(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	format := c.Query("format", service.FormatGeoJSON)
	var (
		doc         service.ExportDocument
		filename    string
		contentType string
	)
	switch format {
	case service.FormatGeoJSON:
		doc, err = s.ExportGeoJSON()
		filename, contentType = service.GeoJSONFilename, "application/geo+json"
	case service.FormatShapefile:
		doc, err = s.ExportShapefile()
		filename, contentType = service.ShapefileFilename, "application/zip"
	default:
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		h.log.Error(c.UserContext(), "export failed", logging.String("format", format), logging.Err(err))
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to build export")
	}

	h.recordExport(domain.ExportRecord{
		SessionID:    s.ID(),
		Format:       doc.Format,
		FeatureCount: doc.FeatureCount,
		PointCount:   doc.PointCount,
		Document:     doc.Data,
		CreatedAt:    time.Now(),
	})

	c.Attachment(filename)
	c.Set(fiber.HeaderContentType, contentType)
	return c.Send(doc.Data)
}

// ListExports returns the export history
func (h *Handler) ListExports(c *fiber.Ctx) error {
	limit := int(utils.Clamp(float64(c.QueryInt("limit", defaultExportLimit)), 1, maxExportLimit))

	records, err := h.repo.ListExports(c.UserContext(), limit)
	if err != nil {
		h.log.Error(c.UserContext(), "failed to list exports", logging.Err(err))
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to fetch export history")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    records,
		"count":   len(records),
	})
}

// recordExport persists the export history entry without delaying the download
func (h *Handler) recordExport(rec domain.ExportRecord) {
	h.wgBg.Add(1)
	go func() {
		defer h.wgBg.Done()
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.repo.SaveExport(bgCtx, rec); err != nil {
			h.log.Error(bgCtx, "failed to save export record",
				logging.String("session_id", rec.SessionID),
				logging.String("format", rec.Format),
				logging.Err(err),
			)
		}
	}()
}

func (h *Handler) session(c *fiber.Ctx) (*service.IsochroneSession, error) {
	return h.registry.Get(c.Params("id"))
}

// ErrorHandler renders every error as {error: true, message}. Domain input
// errors map to 400 and unknown sessions or points to 404.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
		message = fe.Message
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrPointNotFound):
		code = fiber.StatusNotFound
		message = err.Error()
	case errors.Is(err, domain.ErrNoPoints),
		errors.Is(err, domain.ErrNoTimes),
		errors.Is(err, domain.ErrInvalidTimes),
		errors.Is(err, domain.ErrUnknownMode),
		errors.Is(err, domain.ErrInvalidRing):
		code = fiber.StatusBadRequest
		message = err.Error()
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
