package domain

import (
	"context"
	"time"
)

// ExportRecord describes one export handed to a user.
type ExportRecord struct {
	SessionID    string    `json:"session_id"`
	Format       string    `json:"format"`
	FeatureCount int       `json:"feature_count"`
	PointCount   int       `json:"point_count"`
	Document     []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// ExportRepository defines the interface for export history persistence
type ExportRepository interface {
	// SaveExport persists an export record
	SaveExport(ctx context.Context, rec ExportRecord) error

	// ListExports returns the most recent exports, newest first
	ListExports(ctx context.Context, limit int) ([]ExportRecord, error)

	// Health checks storage connectivity
	Health(ctx context.Context) error
}
